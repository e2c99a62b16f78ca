package profiling

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/trace"
	"time"

	"github.com/innotter/stats/config"
)

var ErrRecorderDisabled = errors.New("flight recorder not started")

// Recorder keeps the last few seconds of execution trace in memory and
// writes them out on demand.
type Recorder struct {
	fr  *trace.FlightRecorder
	dir string
}

// NewRecorder starts the flight recorder when FLIGHT_RECORDER_ENABLED is
// set. It returns nil otherwise; a nil *Recorder is safe to use.
func NewRecorder(cfg *config.Config) (*Recorder, error) {
	cfg.SetDefault("FLIGHT_RECORDER_ENABLED", false)
	cfg.SetDefault("FLIGHT_RECORDER_DUMP_PATH", filepath.Join(os.TempDir(), "flight_dumps"))
	cfg.SetDefault("FLIGHT_RECORDER_MIN_AGE", "10s")
	cfg.SetDefault("FLIGHT_RECORDER_MAX_BYTES", 16<<20)

	if !cfg.GetBool("FLIGHT_RECORDER_ENABLED") {
		return nil, nil //nolint:nilnil // disabled
	}

	dir := cfg.GetString("FLIGHT_RECORDER_DUMP_PATH")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create flight dump dir %q: %w", dir, err)
	}

	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   cfg.GetDuration("FLIGHT_RECORDER_MIN_AGE"),
		MaxBytes: cfg.GetUint64("FLIGHT_RECORDER_MAX_BYTES"),
	})
	if err := fr.Start(); err != nil {
		return nil, fmt.Errorf("start flight recorder: %w", err)
	}

	return &Recorder{fr: fr, dir: dir}, nil
}

// Dump writes the buffered trace to <dir>/flight-<name>-<unixnano>.out and
// returns the file path.
func (r *Recorder) Dump(name string) (string, error) {
	if r == nil || !r.fr.Enabled() {
		return "", ErrRecorderDisabled
	}

	path := filepath.Join(r.dir, fmt.Sprintf("flight-%s-%d.out", name, time.Now().UnixNano()))

	f, err := os.Create(path) //nolint:gosec // dir comes from config
	if err != nil {
		return "", fmt.Errorf("create flight dump: %w", err)
	}

	_, err = r.fr.WriteTo(f)
	if errClose := f.Close(); err == nil {
		err = errClose
	}

	if err != nil {
		return "", fmt.Errorf("write flight dump: %w", err)
	}

	return path, nil
}

func (r *Recorder) Stop() {
	if r != nil {
		r.fr.Stop()
	}
}
