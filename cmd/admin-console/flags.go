package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/schoolbooks/admin-console/internal/history"
)

// filterFlags are the audit filter options shared by list, show, undo, export
// and watch.
type filterFlags struct {
	search     string
	action     string
	entityType string
	user       string
	entityID   string
	from       string
	to         string
	page       int
	limit      int
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func (ff *filterFlags) register(fs *flag.FlagSet, defaultLimit int) {
	fs.StringVar(&ff.search, "search", "", "free-text search")
	fs.StringVar(&ff.action, "action", "", "action tag (create, update, delete, login, logout, access)")
	fs.StringVar(&ff.entityType, "entity-type", "", "entity tag (book, chapter, block, user, school, registration_key)")
	fs.StringVar(&ff.user, "user", "", "user id")
	fs.StringVar(&ff.entityID, "entity-id", "", "entity id")
	fs.StringVar(&ff.from, "from", "", "start date (YYYY-MM-DD)")
	fs.StringVar(&ff.to, "to", "", "end date (YYYY-MM-DD), inclusive")
	fs.IntVar(&ff.page, "page", 1, "page number")
	fs.IntVar(&ff.limit, "limit", defaultLimit, "page size (10, 25, 50 or 100)")
}

// filter builds the history filter. The page is applied last because every
// other setter returns to page 1.
func (ff *filterFlags) filter() (history.Filter, error) {
	f := history.NewFilter(ff.limit)
	if err := f.SetLimit(ff.limit); err != nil {
		return f, err
	}
	f.SetSearch(ff.search)
	f.SetAction(ff.action)
	f.SetEntityType(ff.entityType)
	f.SetUserID(ff.user)
	f.SetEntityID(ff.entityID)

	start, err := parseDay(ff.from)
	if err != nil {
		return f, fmt.Errorf("--from: %w", err)
	}
	end, err := parseDay(ff.to)
	if err != nil {
		return f, fmt.Errorf("--to: %w", err)
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return f, fmt.Errorf("--to %s is before --from %s", ff.to, ff.from)
	}
	f.SetDateRange(start, end)
	f.SetPage(ff.page)
	return f, nil
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.DateOnly, s)
}

// parseFilterArgs parses args into a filter and returns the positional
// arguments. Flags may come before or after positionals.
func parseFilterArgs(name string, args []string, defaultLimit int, extra func(*flag.FlagSet)) (history.Filter, []string, error) {
	fs := newFlagSet(name)
	var ff filterFlags
	ff.register(fs, defaultLimit)
	if extra != nil {
		extra(fs)
	}
	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return history.Filter{}, nil, fmt.Errorf("%s: %w", name, err)
	}
	f, err := ff.filter()
	if err != nil {
		return history.Filter{}, nil, fmt.Errorf("%s: %w", name, err)
	}
	return f, positional, nil
}

// parseInterspersed lets positional arguments appear between flags, which the
// flag package alone stops at.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}
