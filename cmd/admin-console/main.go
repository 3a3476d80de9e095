// Package main is the admin console CLI. It dispatches its subcommands with a
// switch on os.Args so the whole command surface reads in one place:
//
//	list, show, undo, export, watch, keys, replace, version
//
// Configuration comes from config.Load (CONFIG_PATH or the default search
// path) with ADMC_ environment overrides. Commands print results to stdout
// and logs to stderr. The exit status is 2 when the backend requires a new
// sign-in and 1 for any other failure.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/schoolbooks/admin-console/internal/adminapi"
	"github.com/schoolbooks/admin-console/internal/config"
	"github.com/schoolbooks/admin-console/internal/history"
	"github.com/schoolbooks/admin-console/internal/session"
	"github.com/schoolbooks/admin-console/internal/telemetry"

	// Export backends register themselves with the storage factory.
	_ "github.com/schoolbooks/admin-console/internal/storage/azure"
	_ "github.com/schoolbooks/admin-console/internal/storage/gcs"
	_ "github.com/schoolbooks/admin-console/internal/storage/local"
	_ "github.com/schoolbooks/admin-console/internal/storage/s3"
)

const version = "0.3.0"

const usage = `usage: admin-console <command> [flags]

commands:
  list    [filter flags]              show one page of audit history
  show    <id> [filter flags]         show one record of the page with its changes
  undo    <id> [filter flags]         reverse the change recorded by <id>
  export  [--all] [filter flags]      write the page (or every match) as CSV
  watch   [filter flags]              follow the history with auto-refresh
  keys    list|create|delete|assign   manage registration keys
  replace <bookId> <find> <replace>   bulk-replace text in a book
  version                             print the version

filter flags:
  --search --action --entity-type --user --entity-id --from --to --page --limit`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, history.ErrAuthRequired) {
			fmt.Fprintln(os.Stderr, "Sign in again and retry.")
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no command given\n%s", usage)
	}
	command, rest := args[0], args[1:]

	switch command {
	case "version":
		fmt.Printf("Admin Console v%s\n", version)
		return nil
	case "help", "-h", "--help":
		fmt.Println(usage)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(cfg)
	if err != nil {
		return err
	}

	switch command {
	case "list":
		return app.list(ctx, rest)
	case "show":
		return app.show(ctx, rest)
	case "undo":
		return app.undo(ctx, rest)
	case "export":
		return app.export(ctx, rest)
	case "watch":
		return app.watch(ctx, rest)
	case "keys":
		return app.keys(ctx, rest)
	case "replace":
		return app.replace(ctx, rest)
	default:
		return fmt.Errorf("unknown command: %s\n%s", command, usage)
	}
}

// app carries what every command needs.
type app struct {
	cfg    *config.Config
	client *adminapi.Client
	tokens session.Source
	// tokenFile is set when the token comes from a watched file.
	tokenFile *session.FileSource
	log       *slog.Logger
}

func newApp(cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, log: slog.Default()}
	if cfg.API.TokenFile != "" {
		a.tokenFile = session.NewFileSource(cfg.API.TokenFile)
		a.tokens = a.tokenFile
	} else {
		a.tokens = session.Static(cfg.API.Token)
	}

	client, err := adminapi.New(cfg.API.BaseURL, a.tokens,
		adminapi.WithTimeout(cfg.API.Timeout),
		adminapi.WithUserAgent("admin-console/"+version),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}
	a.client = client
	return a, nil
}

// newView builds a history view over the configured backend.
func (a *app) newView(f history.Filter, autoRefresh bool) *history.View {
	return history.New(a.client, f, history.Options{
		AutoRefresh:     autoRefresh,
		RefreshInterval: a.cfg.History.RefreshInterval,
		Logger:          a.log,
	})
}

// openView opens a view on f and returns it once the first page is loaded.
func (a *app) openView(ctx context.Context, f history.Filter) (*history.View, error) {
	v := a.newView(f, false)
	if err := v.Open(ctx); err != nil {
		_ = v.Close()
		return nil, err
	}
	return v, nil
}
