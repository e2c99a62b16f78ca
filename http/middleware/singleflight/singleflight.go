package singleflight_middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/sync/singleflight"

	"github.com/innotter/stats/logger"
)

type Option func(*singleFlight)

// WithKeyFn replaces the default request key, the path and raw query.
func WithKeyFn(keyFn func(r *http.Request) string) Option {
	return func(s *singleFlight) {
		s.keyFn = keyFn
	}
}

type singleFlight struct {
	log   logger.Logger
	group singleflight.Group
	keyFn func(r *http.Request) string
}

// SingleFlight runs one handler call for concurrent GET requests with the
// same key and replays its status, headers and body to every caller.
//
// The shared call is detached from the leader's cancellation, so a client
// hanging up does not fail the others.
func SingleFlight(log logger.Logger, options ...Option) func(next http.Handler) http.Handler {
	s := &singleFlight{
		log: log,
		keyFn: func(r *http.Request) string {
			return r.URL.Path + "?" + r.URL.RawQuery
		},
	}

	for _, option := range options {
		option(s)
	}

	return s.middleware
}

func (s *singleFlight) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodGet {
			next.ServeHTTP(writer, request)

			return
		}

		shared := request.WithContext(context.WithoutCancel(request.Context()))

		result, _, _ := s.group.Do(s.keyFn(request), func() (any, error) {
			rec := newRecorder()
			next.ServeHTTP(rec, shared)

			return rec, nil
		})

		rec, _ := result.(*recorder)

		for key, values := range rec.header {
			writer.Header()[key] = append([]string(nil), values...)
		}

		writer.WriteHeader(rec.status)

		if _, err := writer.Write(rec.body.Bytes()); err != nil {
			s.log.Warn("failed to write response", slog.String("error", err.Error()))
		}
	})
}

// recorder buffers one response. It is read only after the handler returns.
type recorder struct {
	header      http.Header
	body        bytes.Buffer
	status      int
	wroteHeader bool
}

func newRecorder() *recorder {
	return &recorder{header: http.Header{}, status: http.StatusOK}
}

func (r *recorder) Header() http.Header {
	return r.header
}

func (r *recorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}

	r.status = status
	r.wroteHeader = true
}

func (r *recorder) Write(b []byte) (int, error) {
	r.wroteHeader = true

	return r.body.Write(b)
}
