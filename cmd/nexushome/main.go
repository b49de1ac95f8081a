package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/levenlabs/go-lflag"
	"golang.org/x/sync/errgroup"

	"github.com/aaronseq12/NexusHome-IoT/pkg/bus"
	"github.com/aaronseq12/NexusHome-IoT/pkg/cache"
	"github.com/aaronseq12/NexusHome-IoT/pkg/controller"
	"github.com/aaronseq12/NexusHome-IoT/pkg/executor"
	"github.com/aaronseq12/NexusHome-IoT/pkg/log"
	"github.com/aaronseq12/NexusHome-IoT/pkg/scheduler"
	"github.com/aaronseq12/NexusHome-IoT/pkg/server"
	"github.com/aaronseq12/NexusHome-IoT/pkg/storage"
)

func main() {
	// init packages
	s := storage.Configured()
	b := bus.Configured()
	fc := cache.Configured()
	exec := executor.Configured(b, s, b)
	ctrl := controller.Configured(s, b, b, exec, fc)
	sched := scheduler.Configured(ctrl)
	deferred := scheduler.NewDeferred(b)
	ctrl.SetDeferredScheduler(deferred)

	// init server
	srv := server.Configured(ctrl)
	srv.AddHealthCheck("cache", fc)

	ingest := lflag.Bool("telemetry-ingest", true, "Consume telemetry from the bus when brokers are configured")
	runScheduler := lflag.Bool("scheduler", true, "Run optimization and maintenance on an interval")

	// parse flags
	lflag.Configure()

	level, err := log.ConfiguredLevel()
	if err != nil {
		panic(err)
	}
	log.SetDefaultLogLevel(level)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	slog.Debug("logger configured", slog.String("level", level.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// If initialization inside lflag.Do failed, we wouldn't be here (panic).
	defer func() {
		deferred.Stop()
		if err := b.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close bus", slog.Any("error", err))
		}
		if err := fc.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close cache", slog.Any("error", err))
		}
		if err := s.Close(); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to close storage", slog.Any("error", err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if *runScheduler {
		g.Go(func() error {
			return sched.Run(gctx)
		})
	}
	if *ingest && b.Enabled() {
		consumer, err := b.TelemetryConsumer(s)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to create telemetry consumer", slog.Any("error", err))
			os.Exit(1)
		}
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	// Wait blocks until ctx is cancelled or a component fails
	if err := g.Wait(); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "nexushome failed", slog.Any("error", err))
		os.Exit(1)
	}
	log.Ctx(ctx).InfoContext(ctx, "nexushome exited cleanly")
}
