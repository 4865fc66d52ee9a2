package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tariff-sync/internal/scheduler"
	"github.com/sells-group/tariff-sync/internal/server"
)

var (
	servePort    int
	serveNoSched bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		loc, err := cfg.Location()
		if err != nil {
			return err
		}

		sched := scheduler.New(env.Pipeline,
			scheduler.WithLocation(loc),
			scheduler.WithTaskTimeout(time.Duration(cfg.Scheduler.TaskTimeoutSecs)*time.Second),
		)
		if !serveNoSched {
			if err := startTasks(ctx, sched); err != nil {
				return err
			}
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		api := server.New(env.Pipeline,
			server.WithDestinations(cfg.Sheets.Destinations),
			server.WithLocation(loc),
			server.WithAllowedOrigins(cfg.Server.AllowedOrigins),
		)
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- eris.Wrap(err, "server listen")
			}
			close(errCh)
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			if err != nil {
				sched.StopAll()
				return err
			}
		}

		// Graceful shutdown
		zap.L().Info("shutting down")
		sched.StopAll()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeoutSecs)*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			zap.L().Warn("server shutdown", zap.Error(err))
		}
		if err := sched.Wait(shutdownCtx); err != nil {
			zap.L().Warn("in-flight tasks did not finish before shutdown", zap.Error(err))
		}
		return nil
	},
}

// startTasks starts the tariff sync, then the sheets sync once the first
// tariff sync has finished.
func startTasks(ctx context.Context, sched *scheduler.Scheduler) error {
	done, err := sched.StartTariffSync(cfg.Scheduler.TariffCron)
	if err != nil {
		return err
	}

	if len(cfg.Sheets.Destinations) == 0 {
		zap.L().Info("no export destinations configured, sheets sync disabled")
		return nil
	}

	go func() {
		err := sched.StartSheetsSyncAfter(ctx, done, cfg.Sheets.Destinations, cfg.Scheduler.SheetsCron)
		if err != nil && ctx.Err() == nil {
			zap.L().Error("failed to start sheets sync", zap.Error(err))
		}
	}()
	return nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveNoSched, "no-scheduler", false, "serve the API without running scheduled tasks")
	rootCmd.AddCommand(serveCmd)
}
