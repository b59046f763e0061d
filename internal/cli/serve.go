package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"jobmate/acquisition-service/internal/db"
	"jobmate/acquisition-service/internal/grpcserver"
	"jobmate/acquisition-service/internal/httpapi"
	"jobmate/acquisition-service/internal/model"
	"jobmate/acquisition-service/internal/scheduler"
	"jobmate/acquisition-service/internal/scraper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the acquisition daemon",
	Long: `Apply migrations, then serve HTTP and gRPC health, and run the acquisition
scheduler for every active search config.

Examples:
  acquisition serve
  SCRAPE_INTERVAL_HOURS=1 acquisition serve -v`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if err := db.Migrate(ctx, a.pool, logger); err != nil {
		return err
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	httpapi.NewHandler(a.controller, a.ledger, a.pool, a.costs(), logger).RegisterRoutes(mux)
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	httpErr := make(chan error, 1)
	go func() {
		logger.Info("http listening", "port", cfg.HTTPPort, "version", Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- err
		}
	}()

	// ── gRPC ──────────────────────────────────────────────────────────────────
	lis, err := net.Listen("tcp", fmt.Sprintf(":%s", cfg.GRPCPort))
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}
	grpcSrv := grpcserver.New(a.pool, 10*time.Second, logger)
	grpcSrv.RegisterAcquisition(a.controller, a.ledger, a.costs())
	go grpcSrv.Watch(ctx)
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server stopped", "err", err)
		}
	}()

	// ── Scheduler ────────────────────────────────────────────────────────────
	var sched *scheduler.Scheduler
	if a.fetcher.Configured() {
		loadConfigs := func(ctx context.Context) ([]model.SearchConfig, error) {
			return scraper.LoadActiveConfigs(ctx, a.pool)
		}
		sched = scheduler.New(loadConfigs, a.worker, cfg.ScrapeIntervalHours, cfg.RunConcurrency, logger)
		if err := sched.Start(ctx); err != nil {
			return err
		}
	} else {
		logger.Warn("ADZUNA_APP_ID / ADZUNA_APP_KEY not set, scheduler disabled")
	}

	// ── Graceful shutdown ────────────────────────────────────────────────────
	select {
	case <-ctx.Done():
	case err = <-httpErr:
		logger.Error("http server error", "err", err)
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if sched != nil {
		sched.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", "err", err)
	}
	grpcSrv.Stop()
	logger.Info("stopped")
	return err
}
