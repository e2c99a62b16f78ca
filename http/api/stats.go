/*
Package api serves the per-user statistics read endpoint.
*/
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/innotter/stats/auth/session"
	"github.com/innotter/stats/logger"
	"github.com/innotter/stats/stats"
)

// UserIDParam is the route parameter holding the requested user.
const UserIDParam = "user_id"

// Engine computes the statistics of one user.
type Engine interface {
	Compute(ctx context.Context, userID int64) (*stats.Stats, error)
}

type StatsHandler struct {
	log    logger.Logger
	engine Engine
}

func NewStatsHandler(log logger.Logger, engine Engine) *StatsHandler {
	return &StatsHandler{
		log:    log,
		engine: engine,
	}
}

// ServeHTTP expects the token claims in the request context.
func (h *StatsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claims, err := session.GetClaims(ctx)
	if err != nil {
		WriteError(w, ErrAuthenticate)

		return
	}

	userID, err := strconv.ParseInt(chi.URLParam(r, UserIDParam), 10, 64)
	if err != nil {
		h.log.WarnWithContext(ctx, "access denied, the given params are invalid",
			slog.String(UserIDParam, chi.URLParam(r, UserIDParam)),
		)
		WriteError(w, ErrInvalidParams)

		return
	}

	if claims.UserID != userID {
		h.log.WarnWithContext(ctx, "access denied, the user has no permission to view this page",
			slog.Int64("token_user_id", claims.UserID),
			slog.Int64(UserIDParam, userID),
		)
		WriteError(w, ErrNoPermission)

		return
	}

	result, err := h.engine.Compute(ctx, userID)
	if err != nil {
		h.log.ErrorWithContext(ctx, "failed to compute stats",
			slog.Int64(UserIDParam, userID),
			slog.String("error", err.Error()),
		)
		WriteError(w, err)

		return
	}

	WriteJSON(w, http.StatusOK, result)
}
