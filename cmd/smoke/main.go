// Package main is a smoke check for a deployed admin API. It signs in with the
// configured token, requests the first audit-log page through the console's
// client and prints what came back, without needing curl or the full CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/schoolbooks/admin-console/internal/adminapi"
	"github.com/schoolbooks/admin-console/internal/config"
	"github.com/schoolbooks/admin-console/internal/session"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Printf("Error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	client, err := adminapi.New(cfg.API.BaseURL, session.Static(cfg.API.Token), adminapi.WithTimeout(cfg.API.Timeout))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	start := time.Now()
	page, err := client.ListAuditLogs(ctx, adminapi.AuditLogQuery{Page: 1, Limit: 10})
	elapsed := time.Since(start).Round(time.Millisecond)
	switch {
	case errors.Is(err, adminapi.ErrAuthRequired):
		fmt.Printf("FAIL %s: token rejected (401) after %s\n", client.BaseURL(), elapsed)
		os.Exit(2)
	case err != nil:
		fmt.Printf("FAIL %s: %s after %s\n", client.BaseURL(), adminapi.Message(err), elapsed)
		os.Exit(1)
	}

	fmt.Printf("OK %s in %s\n", client.BaseURL(), elapsed)
	fmt.Printf("Records: %d of %d (page %d, limit %d)\n", len(page.Logs), page.Total, page.Page, page.Limit)
	for _, r := range page.Logs {
		fmt.Printf("  %s  %-8s %-16s %s\n", r.CreatedAt.Format(time.RFC3339), r.Action, r.EntityType, r.Description)
	}
}
