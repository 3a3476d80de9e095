package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/schoolbooks/admin-console/internal/adminapi"
	"github.com/schoolbooks/admin-console/internal/audit"
	"github.com/schoolbooks/admin-console/internal/history"
	"github.com/schoolbooks/admin-console/internal/safego"
	"github.com/schoolbooks/admin-console/internal/storage"
	"github.com/schoolbooks/admin-console/internal/telemetry"
)

func (a *app) list(ctx context.Context, args []string) error {
	f, _, err := parseFilterArgs("list", args, a.cfg.History.PageSize, nil)
	if err != nil {
		return err
	}
	v, err := a.openView(ctx, f)
	if err != nil {
		return err
	}
	defer v.Close()
	renderPage(os.Stdout, v.Snapshot())
	return nil
}

// findRow returns the row of the loaded page with record id.
func findRow(snap history.Snapshot, id string) (history.Row, bool) {
	for _, row := range snap.Rows {
		if string(row.Record.ID) == id {
			return row, true
		}
	}
	return history.Row{}, false
}

func (a *app) show(ctx context.Context, args []string) error {
	f, pos, err := parseFilterArgs("show", args, a.cfg.History.PageSize, nil)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return fmt.Errorf("usage: admin-console show <id> [filter flags]")
	}
	v, err := a.openView(ctx, f)
	if err != nil {
		return err
	}
	defer v.Close()

	row, ok := findRow(v.Snapshot(), pos[0])
	if !ok {
		return fmt.Errorf("record %s is not on page %d of %s", pos[0], f.Page(), f)
	}
	renderRecord(os.Stdout, row)
	return nil
}

func (a *app) undo(ctx context.Context, args []string) error {
	f, pos, err := parseFilterArgs("undo", args, a.cfg.History.PageSize, nil)
	if err != nil {
		return err
	}
	if len(pos) != 1 {
		return fmt.Errorf("usage: admin-console undo <id> [filter flags]")
	}
	id := pos[0]

	v, err := a.openView(ctx, f)
	if err != nil {
		return err
	}
	defer v.Close()

	if row, ok := findRow(v.Snapshot(), id); ok && !row.UndoEligible {
		a.log.Warn("record is not normally undoable; asking the backend anyway", "record_id", id, "action", row.Record.Action)
	}
	if err := v.Undo(ctx, id); err != nil {
		return err
	}
	fmt.Printf("Undid %s.\n\n", id)
	renderPage(os.Stdout, v.Snapshot())
	return nil
}

func (a *app) export(ctx context.Context, args []string) error {
	var all bool
	f, _, err := parseFilterArgs("export", args, a.cfg.History.PageSize, func(fs *flag.FlagSet) {
		fs.BoolVar(&all, "all", false, "export every matching record, not just the page")
	})
	if err != nil {
		return err
	}

	sink, err := storage.NewStorage(&a.cfg.Export)
	if err != nil {
		return fmt.Errorf("failed to initialise export backend: %w", err)
	}

	var res *history.ExportResult
	if all {
		v := a.newView(f, false)
		defer v.Close()
		res, err = v.ExportFilteredCSV(ctx, sink)
	} else {
		var v *history.View
		if v, err = a.openView(ctx, f); err != nil {
			return err
		}
		defer v.Close()
		res, err = v.ExportCurrentPageCSV(ctx, sink)
	}
	if err != nil {
		return err
	}
	renderExport(os.Stdout, res)
	return nil
}

// watch follows the history with auto-refresh and a small line-based command
// loop on stdin.
func (a *app) watch(ctx context.Context, args []string) error {
	f, _, err := parseFilterArgs("watch", args, a.cfg.History.PageSize, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.cfg.Telemetry.Metrics.Enabled {
		port := a.cfg.Telemetry.Metrics.PrometheusPort
		safego.Go("metrics-server", func() {
			if err := telemetry.ServeMetrics(ctx, port); err != nil {
				a.log.Error("metrics server error", "error", err)
			}
		})
	}
	if a.tokenFile != nil {
		safego.Go("token-watcher", func() {
			if err := a.tokenFile.Watch(ctx); err != nil {
				a.log.Warn("token file watch stopped", "path", a.tokenFile.Path(), "error", err)
			}
		})
	}

	v := a.newView(f, true)
	defer v.Close()

	snaps, unsubscribe := v.Subscribe()
	defer unsubscribe()

	if err := v.Open(ctx); err != nil && !errors.Is(err, history.ErrAuthRequired) {
		var fe *history.FetchError
		if !errors.As(err, &fe) {
			return err
		}
	}

	safego.Go("watch-input", func() {
		runWatchInput(ctx, v, cancel)
	})

	fmt.Println("Watching audit history. Commands: n(ext) p(rev) r(eload) d <id> (details) u <id> (undo) q(uit)")
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-snaps:
			if !ok {
				return nil
			}
			if snap.State == history.StateLoading {
				continue
			}
			fmt.Println()
			renderPage(os.Stdout, snap)
		}
	}
}

// runWatchInput reads commands from stdin until EOF, "q" or ctx ends.
func runWatchInput(ctx context.Context, v *history.View, quit context.CancelFunc) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		var err error
		page := v.Snapshot().Page
		switch fields[0] {
		case "q", "quit":
			quit()
			return
		case "n", "next":
			if page.HasNext() {
				err = v.GoToPage(ctx, page.Page+1)
			}
		case "p", "prev":
			if page.HasPrev() {
				err = v.GoToPage(ctx, page.Page-1)
			}
		case "r", "reload":
			err = v.Reload(ctx)
		case "g", "page":
			if len(fields) == 2 {
				n, convErr := strconv.Atoi(fields[1])
				if convErr != nil {
					err = fmt.Errorf("page must be a number")
				} else {
					err = v.GoToPage(ctx, n)
				}
			}
		case "d", "details":
			if len(fields) == 2 {
				v.ToggleDetail(audit.ID(fields[1]))
			}
		case "u", "undo":
			if len(fields) == 2 {
				id := fields[1]
				safego.Go("watch-undo", func() {
					if err := v.Undo(ctx, id); err != nil {
						fmt.Fprintf(os.Stderr, "undo %s: %s\n", id, adminapi.Message(err))
					}
				})
			}
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n", fields[0])
		}
		if err != nil && !errors.Is(err, history.ErrStaleResponse) {
			fmt.Fprintf(os.Stderr, "%s\n", adminapi.Message(err))
		}
	}
}

func (a *app) keys(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: admin-console keys list|create|delete|assign")
	}
	sub, args := args[0], args[1:]

	switch sub {
	case "list":
		fs := newFlagSet("keys list")
		school := fs.String("school", "", "school id")
		if err := fs.Parse(args); err != nil {
			return err
		}
		keys, err := a.client.ListRegistrationKeys(ctx, *school)
		if err != nil {
			return err
		}
		renderKeys(os.Stdout, keys)
		return nil

	case "create":
		fs := newFlagSet("keys create")
		school := fs.String("school", "", "school id")
		role := fs.String("role", "student", "student, teacher or admin")
		maxUses := fs.Int("max-uses", 1, "number of sign-ups the key allows")
		if err := fs.Parse(args); err != nil {
			return err
		}
		if *school == "" {
			return fmt.Errorf("keys create: --school is required")
		}
		key, err := a.client.CreateRegistrationKey(ctx, adminapi.CreateKeyRequest{
			SchoolID: *school,
			Role:     *role,
			MaxUses:  *maxUses,
		})
		if err != nil {
			return err
		}
		renderKeys(os.Stdout, []adminapi.RegistrationKey{*key})
		return nil

	case "delete":
		if len(args) != 1 {
			return fmt.Errorf("usage: admin-console keys delete <id>")
		}
		if err := a.client.DeleteRegistrationKey(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted registration key %s.\n", args[0])
		return nil

	case "assign":
		if len(args) != 2 {
			return fmt.Errorf("usage: admin-console keys assign <keyId> <studentId>")
		}
		if err := a.client.AssignStudent(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Printf("Assigned student %s to key %s.\n", args[1], args[0])
		return nil
	}
	return fmt.Errorf("unknown keys command: %s", sub)
}

// replace runs a bulk text replace as a view mutation so the refreshed
// history shows the new record.
func (a *app) replace(ctx context.Context, args []string) error {
	var caseSensitive bool
	f, pos, err := parseFilterArgs("replace", args, a.cfg.History.PageSize, func(fs *flag.FlagSet) {
		fs.BoolVar(&caseSensitive, "case-sensitive", false, "match case exactly")
	})
	if err != nil {
		return err
	}
	if len(pos) != 3 {
		return fmt.Errorf("usage: admin-console replace <bookId> <find> <replace> [--case-sensitive]")
	}
	bookID, find, repl := pos[0], pos[1], pos[2]

	v := a.newView(f, false)
	defer v.Close()

	var replaced int
	err = v.Mutate(ctx, "replace-text", func(ctx context.Context) error {
		res, err := a.client.ReplaceText(ctx, bookID, adminapi.ReplaceRequest{
			Find:          find,
			Replace:       repl,
			CaseSensitive: caseSensitive,
		})
		if err != nil {
			return err
		}
		replaced = res.ReplacedCount
		return nil
	})
	if err != nil {
		return err
	}
	fmt.Printf("Replaced %d occurrence(s) in book %s.\n\n", replaced, bookID)
	renderPage(os.Stdout, v.Snapshot())
	return nil
}
