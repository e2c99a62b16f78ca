package request_size_middleware

import (
	"net/http"

	"github.com/innotter/stats/config"
	"github.com/innotter/stats/http/api"
)

// DefaultLimit caps request bodies at 1KB; the API only serves GETs.
const DefaultLimit = 1 << 10

// Limit reads HTTP_MAX_BODY_BYTES from cfg.
func Limit(cfg *config.Config) int64 {
	cfg.SetDefault("HTTP_MAX_BODY_BYTES", DefaultLimit)

	return cfg.GetInt64("HTTP_MAX_BODY_BYTES")
}

// RequestSize rejects a declared Content-Length above limit with 413 and
// caps undeclared bodies with MaxBytesReader.
func RequestSize(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				api.WriteError(w, api.ErrTooLarge)

				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
