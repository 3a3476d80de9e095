// Package main runs the in-memory development admin API. It serves the audit
// log, registration key and book endpoints the console talks to, seeded with
// synthetic history, so the console can be exercised without a real backend.
//
// The bearer token it accepts is taken from api.token when set, otherwise a
// random one is generated and printed at startup. Set dev_api.jwt_secret to
// also accept signed tokens from POST /api/dev/token.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/schoolbooks/admin-console/internal/config"
	"github.com/schoolbooks/admin-console/internal/devapi"
	"github.com/schoolbooks/admin-console/internal/safego"
	"github.com/schoolbooks/admin-console/internal/telemetry"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	nested := flag.Bool("nested", false, "serve audit pages as {data: {logs, pagination}}")
	seed := flag.Uint64("rand-seed", 1, "seed for the synthetic history")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	token := cfg.API.Token
	if token == "" {
		if token, err = randomToken(); err != nil {
			return fmt.Errorf("failed to generate dev token: %w", err)
		}
	}

	store := devapi.NewStore()
	if err := devapi.Seed(store, cfg.DevAPI.Seed, *seed, time.Now()); err != nil {
		return fmt.Errorf("failed to seed history: %w", err)
	}
	slog.Info("seeded development history", "records", cfg.DevAPI.Seed)

	router := devapi.NewRouter(store, devapi.Options{
		Token:       token,
		JWTSecret:   cfg.DevAPI.JWTSecret,
		Logger:      slog.Default(),
		NestedShape: *nested,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Metrics.Enabled {
		port := cfg.Telemetry.Metrics.PrometheusPort
		safego.Go("metrics-server", func() {
			if err := telemetry.ServeMetrics(ctx, port); err != nil {
				slog.Error("metrics server error", "error", err)
			}
		})
	}

	server := &http.Server{
		Addr:              cfg.DevAPI.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		separator := strings.Repeat("═", 66)
		log.Println(separator)
		log.Printf("  Development admin API on http://%s", cfg.DevAPI.Address())
		log.Printf("  Bearer token: %s", token)
		if cfg.DevAPI.JWTSecret != "" {
			log.Println("  Signed tokens: POST /api/dev/token {\"userId\": \"...\"}")
		}
		log.Println(separator)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down development API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Println("Development API stopped")
	return nil
}

func randomToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "dev_" + hex.EncodeToString(b), nil
}
