package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/therapy-scheduler/internal/application"
	"github.com/example/therapy-scheduler/internal/config"
	httptransport "github.com/example/therapy-scheduler/internal/http"
	"github.com/example/therapy-scheduler/internal/persistence/sqlite"
	"github.com/example/therapy-scheduler/internal/rotation"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:           "rotationd",
		Short:         "Therapy room rotation scheduler",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(logger), newMigrateCmd(logger))

	if err := root.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newServeCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduling API and the rotation transition worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(logger)
		},
	}
}

func newMigrateCmd(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			pool, err := sqlite.Open(cfg.SQLiteDSN)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer func() {
				if cerr := pool.Close(); cerr != nil {
					logger.Error("failed to close storage", "error", cerr)
				}
			}()

			if err := sqlite.Migrate(cmd.Context(), pool); err != nil {
				return fmt.Errorf("apply migrations: %w", err)
			}

			logger.Info("migrations applied", "dsn", cfg.SQLiteDSN)
			return nil
		},
	}
}

func runServe(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	pool, err := sqlite.Open(cfg.SQLiteDSN)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if cerr := pool.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	if err := sqlite.Migrate(context.Background(), pool); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	idGenerator := uuid.NewString
	now := time.Now

	sessionRepo := sqlite.NewSessionRepository(pool)
	roomRepo := sqlite.NewRoomRepository(pool)
	allocationRepo := sqlite.NewAllocationRepository(pool)

	policy := rotation.Policy{
		FlexibleSlotDuration:    time.Duration(cfg.FlexibleSlotMinutes) * time.Minute,
		StandardSessionDuration: time.Duration(cfg.StandardSessionMinutes) * time.Minute,
	}
	detector := application.NewAlertDetector(application.AlertConfig{
		RotationWarnWindow: cfg.RotationWarnWindow,
		ArrivalThreshold:   cfg.ArrivalThreshold,
	})

	schedulingService := application.NewSchedulingService(sessionRepo, roomRepo, policy, idGenerator, now, logger)
	occupancyService := application.NewOccupancyService(sessionRepo, roomRepo, allocationRepo, policy, detector, now, logger)
	roomService := application.NewRoomService(roomRepo, allocationRepo, idGenerator, logger)
	worker := application.NewTransitionWorker(sessionRepo, roomRepo, policy, cfg.TickInterval, now, logger)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		worker.Run(ctx)
	}()

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Sessions:   httptransport.NewSessionHandler(schedulingService, logger),
		Agenda:     httptransport.NewAgendaHandler(occupancyService, now, logger),
		Rooms:      httptransport.NewRoomHandler(roomService, logger),
		Middleware: []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("rotation scheduler listening", "addr", server.Addr, "tick_interval", cfg.TickInterval)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}

	<-workerDone
	return nil
}
