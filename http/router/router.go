/*
Package router mounts the stats API on a chi router.
*/
package router

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"

	"github.com/innotter/stats/auth/session"
	"github.com/innotter/stats/config"
	"github.com/innotter/stats/http/api"
	jwt_middleware "github.com/innotter/stats/http/middleware/jwt"
	logger_middleware "github.com/innotter/stats/http/middleware/logger"
	metrics_middleware "github.com/innotter/stats/http/middleware/metrics"
	pprof_labels_middleware "github.com/innotter/stats/http/middleware/pprof_labels"
	request_size_middleware "github.com/innotter/stats/http/middleware/request_size"
	singleflight_middleware "github.com/innotter/stats/http/middleware/singleflight"
	span_middleware "github.com/innotter/stats/http/middleware/span"
	"github.com/innotter/stats/logger"
)

// BasePath prefixes every API route.
const BasePath = "/api/v1"

// New returns the API handler:
//
//	GET /api/v1/stats/{user_id}
//
// Concurrent requests for the same path by the same token user share a
// single aggregation. reg receives the HTTP request metrics; nil means the
// default registerer.
func New(
	log logger.Logger,
	tracer trace.TracerProvider,
	cfg *config.Config,
	engine api.Engine,
	users jwt_middleware.Users,
	reg prometheus.Registerer,
) (http.Handler, error) {
	auth, err := jwt_middleware.JWT(log, tracer, cfg, users)
	if err != nil {
		return nil, err
	}

	metrics, err := metrics_middleware.NewMetrics(reg)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StripSlashes)
	r.Use(span_middleware.Span())
	r.Use(logger_middleware.Logger(log))
	r.Use(metrics)
	r.Use(request_size_middleware.RequestSize(request_size_middleware.Limit(cfg)))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		api.WriteJSON(w, http.StatusNotFound, map[string]string{"detail": "Not Found"})
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		api.WriteJSON(w, http.StatusMethodNotAllowed, map[string]string{"detail": "Method Not Allowed"})
	})

	r.Route(BasePath, func(r chi.Router) {
		r.With(
			pprof_labels_middleware.Labels("stats"),
			auth,
			singleflight_middleware.SingleFlight(log, singleflight_middleware.WithKeyFn(flightKey)),
		).Method(http.MethodGet, "/stats/{"+api.UserIDParam+"}", api.NewStatsHandler(log, engine))
	})

	return r, nil
}

// flightKey scopes coalescing to the token user. The ownership check runs
// in the handler, so a follower must never share a leader of another user.
func flightKey(r *http.Request) string {
	owner := "anonymous"
	if claims, err := session.GetClaims(r.Context()); err == nil {
		owner = strconv.FormatInt(claims.UserID, 10)
	}

	return owner + " " + r.URL.Path + "?" + r.URL.RawQuery
}
