package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/skillsenselab/whisper-server/internal/api"
	"github.com/skillsenselab/whisper-server/internal/config"
	"github.com/skillsenselab/whisper-server/internal/logger"
	"github.com/skillsenselab/whisper-server/internal/metrics"
	"github.com/skillsenselab/whisper-server/internal/server"
	"github.com/skillsenselab/whisper-server/internal/transcribe"
	"github.com/skillsenselab/whisper-server/internal/transcribe/whisper"
)

const serviceName = "server"

func main() {
	cfg, err := config.Load(serviceName)
	if err != nil {
		logger.NewDefault("whisper-server").Fatal("Failed to load configuration", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	}

	logger.Init(cfg.Logging, cfg.Name)
	log := logger.GetGlobalLogger()
	log.Info("Starting "+cfg.Name, map[string]interface{}{
		"version":     cfg.Version,
		"environment": cfg.Environment,
		"workers":     cfg.Transcription.Workers,
		"model":       cfg.Transcription.Model,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := transcribe.NewPool(ctx, cfg.Transcription.Workers, whisper.Factory(cfg.Whisper, log), log)
	if err != nil {
		log.Fatal("Failed to load transcription engines", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	}
	pool.Start()

	var core *metrics.Core
	var gateOpts []transcribe.GateOption
	if cfg.Metrics.Enabled {
		provider, err := metrics.Init(ctx, cfg.Metrics, cfg.Name, cfg.Version)
		if err != nil {
			log.Fatal("Failed to initialize metrics", map[string]interface{}{
				logger.FieldError: err.Error(),
			})
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := provider.Shutdown(shutdownCtx); err != nil {
				log.Warn("Metrics shutdown failed", map[string]interface{}{
					logger.FieldError: err.Error(),
				})
			}
		}()

		tracerProvider, err := metrics.InitTracer(ctx, cfg.Metrics, cfg.Name, cfg.Version)
		if err != nil {
			log.Fatal("Failed to initialize tracing", map[string]interface{}{
				logger.FieldError: err.Error(),
			})
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
				log.Warn("Tracer shutdown failed", map[string]interface{}{
					logger.FieldError: err.Error(),
				})
			}
		}()

		core, err = metrics.NewCore(pool)
		if err != nil {
			log.Fatal("Failed to register metrics instruments", map[string]interface{}{
				logger.FieldError: err.Error(),
			})
		}
		gateOpts = append(gateOpts,
			transcribe.WithAdmitHook(core.JobAdmitted),
			transcribe.WithReleaseHook(core.SlotReleased),
		)
	}

	gate := transcribe.NewGate(cfg.Transcription.MaxConcurrent, gateOpts...)
	validator := transcribe.NewValidator(cfg.Transcription, whisper.NewProber())
	svc := transcribe.NewService(cfg.Transcription, validator, gate, pool, log)

	srv := server.New(cfg.Server, log)
	srv.ApplyMiddleware()
	api.NewHandler(svc, cfg.Transcription, core, log, cfg.Name, cfg.Version).Register(srv.Engine())

	if err := srv.Start(ctx); err != nil {
		log.Fatal("Failed to start HTTP server", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	}
	log.Info("Server listening", map[string]interface{}{"addr": srv.Addr()})

	<-ctx.Done()
	log.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown failed", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	}
	if err := pool.Stop(shutdownCtx); err != nil {
		log.Warn("Worker pool shutdown failed", map[string]interface{}{
			logger.FieldError: err.Error(),
		})
	}
	log.Info("Shutdown complete")
}
