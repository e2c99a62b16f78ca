package pprof_labels_middleware

import (
	"context"
	"net/http"
	"runtime/pprof"
)

// Labels tags the goroutine serving the request with the handler name and
// the HTTP method, so CPU and goroutine profiles can be split per route.
// The raw path is left out to keep label cardinality bounded.
func Labels(handler string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			pprof.Do(r.Context(), pprof.Labels(
				"handler", handler,
				"method", r.Method,
			), func(ctx context.Context) {
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		})
	}
}
