package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"graphclone/backend/internal/api"
	"graphclone/backend/internal/bootstrap"
	"graphclone/backend/internal/clone"
	"graphclone/backend/internal/metrics"
	"graphclone/backend/internal/schema"
	"graphclone/backend/internal/update"
	"graphclone/backend/pkg/config"
	"graphclone/backend/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting HTTP API server...")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("Server failed", zap.Error(err))
	}
	log.Info("Server exited")
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	reg, err := schema.LoadFile(cfg.SchemaFile)
	if err != nil {
		return err
	}
	log.Info("Schema loaded", zap.String("file", cfg.SchemaFile), zap.Strings("types", reg.Names()))

	s, closeStore, err := bootstrap.OpenStore(ctx, cfg, reg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)
	cloner := clone.NewCloner(s,
		clone.WithExcludedTypes(cfg.NonCloneableTypes...),
		clone.WithMetrics(m),
		clone.WithLogger(log.Named("clone")),
	)
	applier := update.NewApplier(s,
		update.WithMetrics(m),
		update.WithLogger(log.Named("update")),
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := api.NewHandler(s, cloner, applier, log.Named("api"))
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: api.NewEngine(handler, promReg, log),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server started", zap.String("port", cfg.Port), zap.String("store", cfg.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server forced to shutdown", zap.Error(err))
			return err
		}
		return nil
	})
	return g.Wait()
}
