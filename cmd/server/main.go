// Package main is the entry point for the Warden autonomous economy
// regulator. It wires one host adapter, the closed-loop controller, the
// HTTP/WebSocket server and the optional auto-tick scheduler, then waits
// for a shutdown signal.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/warden/internal/adapter"
	"github.com/aristath/warden/internal/config"
	"github.com/aristath/warden/internal/controller"
	"github.com/aristath/warden/internal/scheduler"
	"github.com/aristath/warden/internal/server"
	"github.com/aristath/warden/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("mode", cfg.Mode).
		Str("adapter", cfg.Adapter).
		Int("port", cfg.Port).
		Msg("Starting warden")

	var host adapter.Adapter
	switch cfg.Adapter {
	case "http":
		host = adapter.NewHTTP(adapter.HTTPConfig{
			BaseURL: cfg.HostBaseURL,
			APIKey:  cfg.HostAPIKey,
			Timeout: cfg.HostTimeout,
		}, log)
	default:
		host = adapter.NewMemory(nil)
	}

	ctrl := controller.New(controller.Config{
		Mode:                  controller.Mode(cfg.Mode),
		GracePeriod:           cfg.GracePeriod,
		CheckInterval:         cfg.CheckInterval,
		SettlementWindowTicks: cfg.SettlementWindowTicks,
		CooldownTicks:         cfg.CooldownTicks,
		ComplexityBudgetMax:   cfg.ComplexityBudgetMax,
		DecisionLogEntries:    cfg.DecisionLogEntries,
		ValidateRegistry:      cfg.ValidateRegistry,
		DominantRoles:         cfg.DominantRoles,
		Thresholds:            cfg.Thresholds,
	}, host, log)
	ctrl.Start()

	srv := server.New(server.Config{
		Port:          cfg.Port,
		APIKey:        cfg.APIKey,
		AllowedOrigin: cfg.AllowedOrigin,
		DevMode:       cfg.DevMode,
	}, ctrl, log)

	var sched *scheduler.Scheduler
	if cfg.AutoTickSchedule != "" {
		sched = scheduler.New(log)
		job := scheduler.NewAutoTickJob(ctrl, host, cfg.HostTimeout, log)
		if err := sched.AddJob(cfg.AutoTickSchedule, job); err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.AutoTickSchedule).Msg("Invalid auto-tick schedule")
		}
		sched.Start()
	}

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	if sched != nil {
		sched.Stop()
	}
	ctrl.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
