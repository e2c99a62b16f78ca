package profiling_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/innotter/stats/config"
	"github.com/innotter/stats/observability/profiling"
)

func TestRecorderDisabledByDefault(t *testing.T) {
	cfg, err := config.New()
	require.NoError(t, err)

	rec, err := profiling.NewRecorder(cfg)
	require.NoError(t, err)
	require.Nil(t, rec)

	_, err = rec.Dump("x")
	require.ErrorIs(t, err, profiling.ErrRecorderDisabled)

	rec.Stop()
}

func TestRecorderDump(t *testing.T) {
	dir := t.TempDir()

	t.Setenv("FLIGHT_RECORDER_ENABLED", "true")
	t.Setenv("FLIGHT_RECORDER_DUMP_PATH", dir)

	cfg, err := config.New()
	require.NoError(t, err)

	rec, err := profiling.NewRecorder(cfg)
	require.NoError(t, err)
	require.NotNil(t, rec)
	t.Cleanup(rec.Stop)

	path, err := rec.Dump("test")
	require.NoError(t, err)
	require.FileExists(t, path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Positive(t, info.Size())
}
