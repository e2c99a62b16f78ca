/*
Package profiling exposes pprof and fgprof on a dedicated port for operators.
*/
package profiling

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"runtime"

	"github.com/felixge/fgprof"

	"github.com/innotter/stats/config"
	httpserver "github.com/innotter/stats/http/server"
	"github.com/innotter/stats/logger"
)

// Handler returns the profiling routes.
func Handler() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	for _, profile := range []string{"goroutine", "heap", "allocs", "mutex", "block", "threadcreate"} {
		mux.Handle("/debug/pprof/"+profile, pprof.Handler(profile))
	}

	mux.Handle("/debug/pprof/fgprof", fgprof.Handler())

	return mux
}

// Start serves Handler on PROFILING_PORT when PROFILING_ENABLED is set.
// The server stops with ctx.
func Start(ctx context.Context, log logger.Logger, cfg *config.Config) {
	cfg.SetDefault("PROFILING_ENABLED", false)
	cfg.SetDefault("PROFILING_PORT", 7071)
	cfg.SetDefault("PROFILING_TIMEOUT", "30s")

	if !cfg.GetBool("PROFILING_ENABLED") {
		return
	}

	serverConfig := httpserver.Config{
		Port:    cfg.GetInt("PROFILING_PORT"),
		Timeout: cfg.GetDuration("PROFILING_TIMEOUT"),
	}

	server := httpserver.New(ctx, Handler(), serverConfig, nil, cfg)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("pprof server stopped", slog.String("error", err.Error()))
		}
	}()

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	log.Info("pprof server started",
		slog.String("addr", server.Addr),
	)

	runtime.SetMutexProfileFraction(10)
	runtime.SetBlockProfileRate(10)
}
