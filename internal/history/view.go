package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/schoolbooks/admin-console/internal/audit"
	"github.com/schoolbooks/admin-console/internal/telemetry"
)

// State is the lifecycle state of a view.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Row is a displayed record with its derived view state.
type Row struct {
	Record       audit.Record
	UndoEligible bool
	Changes      []audit.FieldChange
	HasChanges   bool
	Expanded     bool
	Undoing      bool
}

// Snapshot is a consistent copy of the view state.
type Snapshot struct {
	State  State
	Filter Filter
	Page   PageResult
	Rows   []Row
	// Err is the last load error: ErrAuthRequired or a *FetchError.
	Err error
	// Loaded is set once any page has loaded successfully.
	Loaded     bool
	Generation uint64
	UpdatedAt  time.Time
}

// AuthRequired reports whether the last load failed for lack of credentials.
func (s Snapshot) AuthRequired() bool { return errors.Is(s.Err, ErrAuthRequired) }

// Options configures a View.
type Options struct {
	AutoRefresh     bool
	RefreshInterval time.Duration
	Logger          *slog.Logger
	// Now is the clock used for UpdatedAt and export file names.
	Now func() time.Time
}

// View is one open audit-history screen. All methods are safe for
// concurrent use. After Close no method changes state and no snapshot is
// delivered to subscribers.
type View struct {
	api  API
	log  *slog.Logger
	opts Options

	mu        sync.Mutex
	state     State
	filter    Filter
	page      PageResult
	err       error
	loaded    bool
	updatedAt time.Time
	issued    uint64
	inflight  int
	undoing   map[string]struct{}
	mutating  int
	bulk      bool
	expanded  map[audit.ID]bool
	subs      map[int]chan Snapshot
	nextSub   int
	opened    bool
	closed    bool

	life      context.Context
	stop      context.CancelFunc
	scheduler gocron.Scheduler
}

// New creates a view over api starting from filter f. The view stays Idle
// until Open.
func New(api API, f Filter, opts Options) *View {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = 10 * time.Second
	}
	if f.limit == 0 {
		f = NewFilter(DefaultLimit)
	}
	life, stop := context.WithCancel(context.Background())
	return &View{
		api:      api,
		log:      opts.Logger,
		opts:     opts,
		state:    StateIdle,
		filter:   f,
		undoing:  make(map[string]struct{}),
		expanded: make(map[audit.ID]bool),
		subs:     make(map[int]chan Snapshot),
		life:     life,
		stop:     stop,
	}
}

// Open performs the first load and, when enabled, starts auto-refresh. It
// returns the first load's error; the view stays usable either way.
func (v *View) Open(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if v.opened {
		v.mu.Unlock()
		return fmt.Errorf("history view already open")
	}
	v.opened = true
	v.mu.Unlock()

	if v.opts.AutoRefresh {
		if err := v.startAutoRefresh(); err != nil {
			return fmt.Errorf("failed to start auto-refresh: %w", err)
		}
	}
	return v.load(ctx, false)
}

// Close cancels in-flight requests, stops auto-refresh and closes every
// subscription channel. It is safe to call more than once.
func (v *View) Close() error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.closed = true
	for id, ch := range v.subs {
		close(ch)
		delete(v.subs, id)
	}
	sched := v.scheduler
	v.scheduler = nil
	v.mu.Unlock()

	v.stop()
	if sched != nil {
		if err := sched.Shutdown(); err != nil {
			return fmt.Errorf("failed to stop auto-refresh: %w", err)
		}
	}
	return nil
}

// Subscribe returns a channel that receives the latest snapshot after every
// state change. Slow readers only ever see the most recent snapshot. The
// channel is closed by cancel or Close.
func (v *View) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		close(ch)
		return ch, func() {}
	}
	id := v.nextSub
	v.nextSub++
	v.subs[id] = ch
	ch <- v.snapshotLocked()

	return ch, func() {
		v.mu.Lock()
		defer v.mu.Unlock()
		if c, ok := v.subs[id]; ok {
			close(c)
			delete(v.subs, id)
		}
	}
}

// Snapshot returns the current state.
func (v *View) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.snapshotLocked()
}

// Filter returns the current filter.
func (v *View) Filter() Filter {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filter
}

// Reload fetches the current filter again.
func (v *View) Reload(ctx context.Context) error {
	return v.load(ctx, false)
}

// Apply changes the filter through fn and loads the result. Filter setters
// take care of returning to page 1.
func (v *View) Apply(ctx context.Context, fn func(*Filter)) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	f := v.filter
	fn(&f)
	v.filter = f
	v.mu.Unlock()
	return v.load(ctx, false)
}

// GoToPage moves to page n (clamped to at least 1) and loads it.
func (v *View) GoToPage(ctx context.Context, n int) error {
	return v.Apply(ctx, func(f *Filter) { f.SetPage(n) })
}

// ToggleDetail flips the expanded state of the record's detail panel and
// returns the new state. Expansion survives reloads for records that are
// still on the loaded page; it is dropped for records that left it.
func (v *View) ToggleDetail(id audit.ID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return false
	}
	if v.expanded[id] {
		delete(v.expanded, id)
	} else {
		v.expanded[id] = true
	}
	v.publishLocked()
	return v.expanded[id]
}

// load issues a fetch under a new generation. A quiet load (auto-refresh)
// does not pass through Loading and leaves the state alone on failures other
// than ErrAuthRequired.
func (v *View) load(ctx context.Context, quiet bool) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrClosed
	}
	if quiet && (v.mutating > 0 || v.inflight > 0) {
		v.mu.Unlock()
		return ErrRefreshSkipped
	}
	v.issued++
	gen := v.issued
	f := v.filter
	v.inflight++
	if !quiet {
		v.state = StateLoading
		v.publishLocked()
	}
	v.mu.Unlock()

	ctx, cancel := v.bind(ctx)
	defer cancel()

	start := time.Now()
	page, err := FetchPage(ctx, v.api, f)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.inflight--

	if v.closed {
		return ErrClosed
	}
	if gen != v.issued {
		telemetry.StaleResponsesDiscardedTotal.Inc()
		v.log.Debug("discarding superseded page response", "generation", gen, "latest", v.issued)
		return ErrStaleResponse
	}

	switch {
	case err == nil:
		v.page = page
		v.state = StateReady
		v.err = nil
		v.loaded = true
		v.pruneExpandedLocked()
		v.updatedAt = v.opts.Now()
		v.log.Debug("audit page loaded", "generation", gen, "page", page.Page,
			"records", len(page.Records), "total", page.Total, "elapsed", time.Since(start))

	case errors.Is(err, ErrAuthRequired):
		v.page = PageResult{Records: []audit.Record{}, Page: f.page, Limit: f.limit}
		v.state = StateError
		v.err = ErrAuthRequired
		v.log.Warn("audit history requires authentication", "generation", gen)

	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		if !quiet {
			v.state = v.settledStateLocked()
			v.publishLocked()
		}
		return err

	case quiet:
		return err

	default:
		if !v.loaded {
			v.page = PageResult{Records: []audit.Record{}, Page: f.page, Limit: f.limit}
		}
		v.state = StateError
		v.err = err
		v.log.Warn("failed to load audit history", "generation", gen, "error", err)
	}

	v.publishLocked()
	return err
}

// pruneExpandedLocked forgets expanded panels of records not on the page.
func (v *View) pruneExpandedLocked() {
	if len(v.expanded) == 0 {
		return
	}
	onPage := make(map[audit.ID]bool, len(v.page.Records))
	for _, rec := range v.page.Records {
		onPage[rec.ID] = true
	}
	for id := range v.expanded {
		if !onPage[id] {
			delete(v.expanded, id)
		}
	}
}

// settledStateLocked is the state to fall back to when a load is abandoned.
func (v *View) settledStateLocked() State {
	switch {
	case v.inflight > 0:
		return StateLoading
	case v.err != nil:
		return StateError
	case v.loaded:
		return StateReady
	}
	return StateIdle
}

// bind returns a context that ends with either ctx or the view.
func (v *View) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(v.life, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (v *View) snapshotLocked() Snapshot {
	rows := make([]Row, len(v.page.Records))
	for i, rec := range v.page.Records {
		changes, ok := rec.Changes()
		_, busy := v.undoing[string(rec.ID)]
		rows[i] = Row{
			Record:       rec,
			UndoEligible: rec.UndoEligible(),
			Changes:      changes,
			HasChanges:   ok,
			Expanded:     v.expanded[rec.ID],
			Undoing:      busy,
		}
	}
	return Snapshot{
		State:      v.state,
		Filter:     v.filter,
		Page:       v.page,
		Rows:       rows,
		Err:        v.err,
		Loaded:     v.loaded,
		Generation: v.issued,
		UpdatedAt:  v.updatedAt,
	}
}

func (v *View) publishLocked() {
	if len(v.subs) == 0 {
		return
	}
	snap := v.snapshotLocked()
	for _, ch := range v.subs {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
