package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kirkomrk2-web/registry-worker/internal/browser"
	"github.com/kirkomrk2-web/registry-worker/internal/config"
	"github.com/kirkomrk2-web/registry-worker/internal/db"
	"github.com/kirkomrk2-web/registry-worker/internal/lease"
	"github.com/kirkomrk2-web/registry-worker/internal/observability"
	"github.com/kirkomrk2-web/registry-worker/internal/server"
	"github.com/kirkomrk2-web/registry-worker/internal/worker"
)

var errLeaseLost = errors.New("worker lease lost")

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll pending jobs and resolve them against the registry",
	Long: `Start the worker loop: every POLL_INTERVAL the oldest pending job is
resolved in a headless browser and its result stored. Also serves /health,
/metrics and /status on OPS_ADDR. Stops cleanly on SIGINT or SIGTERM.`,
	RunE: runWorker,
}

var runMigrate bool

func init() {
	runCmd.Flags().BoolVar(&runMigrate, "migrate", false, "Apply database migrations before starting")
	rootCmd.AddCommand(runCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lk, err := lease.New(cfg.RedisURL, cfg.LeaseFile, cfg.LeaseTTL)
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}
	defer func() {
		if err := lk.Close(); err != nil {
			log.Printf("[lease] %v", err)
		}
	}()
	if err := lk.Acquire(ctx); err != nil {
		return fmt.Errorf("failed to acquire lease: %w", err)
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer database.Close()

	if runMigrate {
		if err := database.RunMigrations(ctx); err != nil {
			return err
		}
	}

	session := browser.NewSession(cfg.BrowserConfig())
	if err := session.Init(ctx); err != nil {
		return err
	}
	defer session.Close() //nolint:errcheck

	observability.Register()
	processor := worker.NewProcessor(database, session, cfg.WorkerOptions())
	poller := worker.NewPoller(database, processor, cfg.PollInterval)
	ops := server.New(server.Config{Addr: cfg.OpsAddr}, poller, database)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(ops.Start)
	g.Go(func() error {
		if err := poller.Start(gctx); err != nil {
			return err
		}
		defer poller.Stop()

		select {
		case <-gctx.Done():
			return nil
		case <-lk.Lost():
			return errLeaseLost
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return ops.Shutdown(shutdownCtx)
	})

	log.Printf("Worker started (poll every %s, ops on %s)", cfg.PollInterval, cfg.OpsAddr)
	if err := g.Wait(); err != nil {
		return err
	}
	log.Println("Shutting down...")
	return nil
}
