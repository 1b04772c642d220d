package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"

	"github.com/BrandonDHaskell/Portunus/presence/internal/config"
	"github.com/BrandonDHaskell/Portunus/presence/internal/db"
	"github.com/BrandonDHaskell/Portunus/presence/internal/healthcheck"
	"github.com/BrandonDHaskell/Portunus/presence/internal/httpapi"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/service"
	"github.com/BrandonDHaskell/Portunus/presence/internal/presence/store/sqlite"
)

func main() {
	logger := log.New(os.Stdout, "presence-server ", log.LstdFlags|log.LUTC)

	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, db.Config{Path: cfg.DBPath, Env: cfg.Env})
	if err != nil {
		logger.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if cfg.Env == "dev" {
		seed := db.DefaultSeed()
		if cfg.SeedFile != "" {
			if seed, err = db.LoadSeedFile(cfg.SeedFile); err != nil {
				logger.Fatalf("seed: %v", err)
			}
		}
		if err := db.SeedDev(ctx, conn, seed); err != nil {
			logger.Fatalf("seed: %v", err)
		}
		logger.Printf("dev seed applied places=%d users=%d grants=%d",
			len(seed.Places), len(seed.Users), len(seed.Grants))
	}

	writer := db.NewWorker(conn)
	defer writer.Close()

	// Stores
	presenceStore := sqlite.New(conn, writer)
	eventStore := sqlite.NewPresenceEventStore(conn, writer)

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Services
	tracker := service.NewTracker(service.TrackerDeps{
		Store:   presenceStore,
		Events:  eventStore,
		Policy:  service.ExitPolicy{BlockOnOutstandingLoan: cfg.BlockExitOnLoan},
		Metrics: service.NewMetrics(reg),
		Logger:  logger,
	})
	places := service.NewPlaceDirectory(presenceStore)

	pruner := service.NewEventPruner(eventStore, service.PrunerConfig{
		RetentionDays: cfg.EventRetentionDays,
		IntervalHours: cfg.PruneIntervalHours,
	}, logger)
	pruner.Start(ctx)
	defer pruner.Stop()

	// HTTP
	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:     logger,
		Addr:       cfg.HTTPAddr,
		Tracker:    tracker,
		Places:     places,
		AdminToken: cfg.AdminToken,
		Metrics:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	go func() {
		logger.Printf("listening on %s", cfg.HTTPAddr)
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server error: %v", err)
			stop()
		}
	}()

	// gRPC health
	var health *healthcheck.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			logger.Fatalf("grpc listen: %v", err)
		}
		health = healthcheck.New(conn, logger)
		go func() {
			logger.Printf("grpc health listening on %s", cfg.GRPCAddr)
			if err := health.Serve(lis); err != nil {
				logger.Printf("grpc health error: %v", err)
			}
		}()
	}

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if health != nil {
		health.Stop()
	}
	_ = srv.Shutdown(shutdownCtx)
}
