package jwt_middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/innotter/stats/auth/session"
	"github.com/innotter/stats/codec"
	"github.com/innotter/stats/config"
	"github.com/innotter/stats/db"
	"github.com/innotter/stats/domain"
	"github.com/innotter/stats/http/api"
	"github.com/innotter/stats/logger"
)

const tracerName = "github.com/innotter/stats/http/middleware/jwt"

// Users looks up projected users.
type Users interface {
	Get(ctx context.Context, table string, id int64) (codec.Record, error)
}

// jwtMiddleware holds the middleware configuration.
type jwtMiddleware struct {
	log    logger.Logger
	tracer trace.Tracer
	parser *jwt.Parser
	secret []byte
	users  Users
}

// claims are the claims issued by the primary system.
type claims struct {
	jwt.RegisteredClaims
	UserID *int64 `json:"user_id"`
}

// JWT creates the bearer authentication middleware.
// A request passes when the token is signed with JWT_SECRET_KEY using
// JWT_SIGNING_METHOD, has not expired, and its user_id exists in users.
// A nil tracer disables the validation span.
//
// Configuration:
//   - JWT_SECRET_KEY: shared HMAC secret (required)
//   - JWT_SIGNING_METHOD: HS256, HS384 or HS512 (default: HS256)
func JWT(log logger.Logger, tracer trace.TracerProvider, cfg *config.Config, users Users) (func(next http.Handler) http.Handler, error) {
	cfg.SetDefault("JWT_SIGNING_METHOD", jwt.SigningMethodHS256.Alg())

	secret := cfg.GetString("JWT_SECRET_KEY")
	if secret == "" {
		return nil, ErrMissingSecret
	}

	method := strings.ToUpper(strings.TrimSpace(cfg.GetString("JWT_SIGNING_METHOD")))
	if _, ok := jwt.GetSigningMethod(method).(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, method)
	}

	if tracer == nil {
		tracer = noop.NewTracerProvider()
	}

	return jwtMiddleware{
		log:    log,
		tracer: tracer.Tracer(tracerName),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{method}),
		),
		secret: []byte(secret),
		users:  users,
	}.middleware, nil
}

func (j jwtMiddleware) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := j.tracer.Start(r.Context(), "jwt.validate",
			trace.WithAttributes(attribute.String("component", "jwt_middleware")),
			trace.WithSpanKind(trace.SpanKindInternal),
		)
		defer span.End()

		tokenString := extractBearerToken(r)
		if tokenString == "" {
			span.SetStatus(codes.Error, "missing bearer token")
			j.log.WarnWithContext(ctx, "access denied, invalid authentication scheme")
			api.WriteError(w, api.ErrAuthenticate)

			return
		}

		tokenClaims, err := j.verify(ctx, tokenString)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())

			if errors.Is(err, ErrInvalidToken) {
				j.log.WarnWithContext(ctx, "access denied, the token is invalid", slog.String("error", err.Error()))
				api.WriteError(w, api.ErrInvalidToken)

				return
			}

			j.log.ErrorWithContext(ctx, "failed to verify token", slog.String("error", err.Error()))
			api.WriteError(w, err)

			return
		}

		span.SetStatus(codes.Ok, "token validated")
		span.SetAttributes(attribute.Int64("user.id", tokenClaims.UserID))

		ctx = session.WithClaims(ctx, tokenClaims)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// verify checks the signature, the registered claims and that the user is
// projected. Store failures other than a missing user are returned as is.
func (j jwtMiddleware) verify(ctx context.Context, tokenString string) (*session.Claims, error) {
	parsed := &claims{}

	_, err := j.parser.ParseWithClaims(tokenString, parsed, func(*jwt.Token) (any, error) {
		return j.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if parsed.UserID == nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, ErrMissingUserID)
	}

	_, err = j.users.Get(ctx, domain.EntityUser.Table(), *parsed.UserID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w: %d", ErrInvalidToken, ErrUnknownUser, *parsed.UserID)
	}

	if err != nil {
		return nil, err
	}

	out := &session.Claims{
		UserID: *parsed.UserID,
		Issuer: parsed.Issuer,
	}

	if parsed.IssuedAt != nil {
		out.IssuedAt = parsed.IssuedAt.Unix()
	}

	if parsed.ExpiresAt != nil {
		out.ExpiresAt = parsed.ExpiresAt.Unix()
	}

	return out, nil
}

// extractBearerToken extracts the JWT from the Authorization header.
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}

	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
