package flight_trace_middleware

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/innotter/stats/config"
	"github.com/innotter/stats/logger"
)

type fakeDumper struct {
	mu    sync.Mutex
	names []string
}

func (f *fakeDumper) Dump(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.names = append(f.names, name)

	return "/tmp/flight-" + name + ".out", nil
}

func (f *fakeDumper) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.names)
}

type fakeArchiver struct {
	files chan string
}

func (f *fakeArchiver) Archive(ctx context.Context, file string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.files <- file

	return "s3://bucket/" + file, nil
}

func setup(t *testing.T, threshold string, opts ...Option) (*fakeDumper, func(http.Handler) http.Handler) {
	t.Helper()

	t.Setenv("FLIGHT_TRACE_LATENCY_THRESHOLD", threshold)

	cfg, err := config.New()
	require.NoError(t, err)

	log, err := logger.New(logger.Configuration{
		Writer: &bytes.Buffer{},
		Level:  logger.DEBUG_LEVEL,
	})
	require.NoError(t, err)

	dumper := &fakeDumper{}

	return dumper, FlightTrace(dumper, log, cfg, opts...)
}

func TestFlightTraceHeaderTrigger(t *testing.T) {
	dumper, mw := setup(t, "1h")

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(DebugHeader, "true")

	mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(httptest.NewRecorder(), req)

	require.Eventually(t, func() bool { return dumper.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestFlightTraceSlowRequest(t *testing.T) {
	dumper, mw := setup(t, "20ms")

	mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	require.Eventually(t, func() bool { return dumper.count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestFlightTraceNoTrigger(t *testing.T) {
	dumper, mw := setup(t, "1h")

	mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	require.Never(t, func() bool { return dumper.count() > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestFlightTraceNilRecorder(t *testing.T) {
	cfg, err := config.New()
	require.NoError(t, err)

	called := false
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true })

	FlightTrace(nil, nil, cfg)(next).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	require.True(t, called)
}

func TestFlightTraceArchivesDump(t *testing.T) {
	archiver := &fakeArchiver{files: make(chan string, 1)}
	dumper, mw := setup(t, "1h", WithArchiver(archiver))

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(DebugHeader, "true")

	mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(httptest.NewRecorder(), req)

	select {
	case file := <-archiver.files:
		require.Equal(t, 1, dumper.count())
		require.Equal(t, "/tmp/flight-"+dumper.names[0]+".out", file)
	case <-time.After(time.Second):
		t.Fatal("dump was not archived")
	}
}
