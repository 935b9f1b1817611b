package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/formsync/internal/metrics"
	"github.com/TheMichaelB/formsync/internal/models"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run sync tasks until interrupted",
	Long: `Serve keeps sync tasks running in this process until it receives
SIGINT or SIGTERM. Tasks do not resume on their own after a restart:
pass --start for specific projects or --resume to restart every project
whose persisted status is syncing.

On shutdown tasks are cancelled but their persisted status is kept, so
"formsync status" shows them as syncing and inactive.`,
	Example: `  formsync serve --resume
  formsync serve --start 7 --start 12 --metrics-addr :9090`,
	RunE: runServe,
}

var (
	serveStart       []string
	serveResume      bool
	serveMetricsAddr string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringSliceVar(&serveStart, "start", nil,
		"Project to start syncing (repeatable)")
	serveCmd.Flags().BoolVar(&serveResume, "resume", false,
		"Start every project whose status is syncing")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", "",
		"Expose Prometheus metrics on this address (overrides metrics.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	projects, err := projectsToStart(ctx)
	if err != nil {
		return fail("List projects", err)
	}

	for _, id := range projects {
		snap, err := apiClient.Sync.Start(ctx, id)
		if err != nil {
			return fail("Start project "+id, err)
		}
		if !jsonOutput {
			printSuccess("Syncing project %s (next sync %s)", id, formatTime(snap.NextSyncTime))
		}
	}

	addr := serveMetricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}

	errCh := make(chan error, 1)
	var server *http.Server
	if addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler(apiClient.Registry))
		server = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
		logger.WithField("addr", addr).Info("Serving metrics")
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": true,
			"started": projects,
			"metrics": addr,
		})
	} else {
		printInfo("formsync is running with %d sync task(s). Press Ctrl+C to stop.", len(projects))
	}

	select {
	case <-ctx.Done():
		if !jsonOutput {
			printWarning("Shutting down...")
		}
	case err := <-errCh:
		logger.WithError(err).Error("Server failed")
		return fail("Serve", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("Metrics server shutdown failed")
		}
	}

	if err := apiClient.Sync.Shutdown(shutdownCtx); err != nil {
		return fail("Shutdown", err)
	}

	if !jsonOutput {
		printSuccess("Shutdown complete")
	}
	return nil
}

func projectsToStart(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string

	for _, id := range serveStart {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	if !serveResume {
		return ids, nil
	}

	all, err := apiClient.Sync.ListAllStatuses(ctx)
	if err != nil {
		return nil, err
	}
	for _, snap := range all {
		if snap.Status == models.StatusSyncing && !seen[snap.ProjectID] {
			seen[snap.ProjectID] = true
			ids = append(ids, snap.ProjectID)
		}
	}
	return ids, nil
}
