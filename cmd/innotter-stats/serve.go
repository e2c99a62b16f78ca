package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/innotter/stats/cache"
	"github.com/innotter/stats/db/drivers/redis"
	flight_trace_middleware "github.com/innotter/stats/http/middleware/flight_trace"
	"github.com/innotter/stats/http/router"
	httpserver "github.com/innotter/stats/http/server"
	"github.com/innotter/stats/observability/profiling"
	"github.com/innotter/stats/projector"
	"github.com/innotter/stats/s3"
	"github.com/innotter/stats/stats"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve GET /api/v1/stats/{user_id}",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().Bool("consume", false, "also run the projector in this process")
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	consume, err := cmd.Flags().GetBool("consume")
	if err != nil {
		return err
	}

	a, err := bootstrap(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	engine := stats.New(a.store, a.tracer)

	cacheOpts, err := authCacheTier(ctx, a)
	if err != nil {
		return err
	}

	users := cache.New(a.cfg, a.store, cacheOpts...)
	if err := users.Register(a.monitoring.Prometheus); err != nil {
		return fmt.Errorf("register auth cache metrics: %w", err)
	}

	handler, err := router.New(a.log, a.tracer, a.cfg, engine, users, a.monitoring.Prometheus)
	if err != nil {
		return fmt.Errorf("init router: %w", err)
	}

	recorder, err := profiling.NewRecorder(a.cfg)
	if err != nil {
		return err
	}

	if recorder != nil {
		defer recorder.Stop()

		opts, err := flightArchive(ctx, a)
		if err != nil {
			return err
		}

		handler = flight_trace_middleware.FlightTrace(recorder, a.log, a.cfg, opts...)(handler)
	}

	// built before any listener starts
	var p *projector.Projector

	if consume {
		p, err = newProjector(ctx, a)
		if err != nil {
			return err
		}
	}

	server := httpserver.New(ctx, handler, httpserver.LoadConfig(a.cfg), a.tracer, a.cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.monitoring.Serve(gctx, a.tracer)
	})

	g.Go(func() error {
		a.log.Info("Run API", slog.String("addr", server.Addr))

		return listen(gctx, server)
	})

	if p != nil {
		g.Go(func() error {
			return runProjector(gctx, p)
		})
	}

	return g.Wait()
}

// authCacheTier shares resolved users through Redis when
// AUTH_CACHE_REDIS_ENABLED is set. The connection uses the STORE_REDIS_*
// settings.
func authCacheTier(ctx context.Context, a *app) ([]cache.Option, error) {
	a.cfg.SetDefault("AUTH_CACHE_REDIS_ENABLED", false)

	if !a.cfg.GetBool("AUTH_CACHE_REDIS_ENABLED") {
		return nil, nil
	}

	conn := redis.New(a.tracer, a.monitoring.Metrics, a.cfg)
	if err := conn.Init(ctx); err != nil {
		return nil, fmt.Errorf("init auth cache redis: %w", err)
	}

	a.onClose(func() { _ = conn.Close() })
	a.monitoring.AddReadinessCheck("auth_cache", func() error {
		return conn.Ping(ctx)
	})

	return []cache.Option{cache.WithRedis(conn.Client())}, nil
}

// flightArchive uploads flight dumps to S3 when FLIGHT_RECORDER_S3_ENABLED
// is set.
func flightArchive(ctx context.Context, a *app) ([]flight_trace_middleware.Option, error) {
	a.cfg.SetDefault("FLIGHT_RECORDER_S3_ENABLED", false)

	if !a.cfg.GetBool("FLIGHT_RECORDER_S3_ENABLED") {
		return nil, nil
	}

	client, err := s3.New(ctx, a.log, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("init flight dump archive: %w", err)
	}

	return []flight_trace_middleware.Option{flight_trace_middleware.WithArchiver(client)}, nil
}

// listen serves until ctx is done and then drains in-flight requests.
func listen(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}

	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

func newProjector(ctx context.Context, a *app) (*projector.Projector, error) {
	client, err := a.messaging(ctx)
	if err != nil {
		return nil, err
	}

	p, err := projector.New(a.log, a.cfg, a.store, client, a.tracer, a.monitoring.Metrics)
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("init projector: %w", err)
	}

	return p, nil
}

// runProjector consumes until ctx is done. The router is closed on the
// way out so the broker channel is released.
func runProjector(ctx context.Context, p *projector.Projector) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- p.Run(ctx)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("projector: %w", err)
		}

		return nil
	case <-ctx.Done():
	}

	if err := p.Stop(); err != nil {
		return fmt.Errorf("projector stop: %w", err)
	}

	return <-errCh
}
