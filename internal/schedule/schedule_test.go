package schedule

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	recording bool
	records   int
	halts     int
}

func (f *fakeRecorder) RequestRecording() bool {
	f.records++
	if f.recording {
		return false
	}
	f.recording = true
	return true
}

func (f *fakeRecorder) RequestHalt() bool {
	f.halts++
	if !f.recording {
		return false
	}
	f.recording = false
	return true
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewWithDefaults(t *testing.T) {
	s, err := New(&fakeRecorder{}, Config{}, testLogger())
	require.NoError(t, err)

	entries := s.cron.Entries()
	assert.Len(t, entries, 2)
}

func TestInvalidSpec(t *testing.T) {
	_, err := New(&fakeRecorder{}, Config{RecordSpec: "not a cron spec"}, testLogger())
	assert.Error(t, err)

	_, err = New(&fakeRecorder{}, Config{HaltSpec: "61 25 * * *"}, testLogger())
	assert.Error(t, err)
}

func TestTriggersDelegate(t *testing.T) {
	rec := &fakeRecorder{}
	s, err := New(rec, Config{}, testLogger())
	require.NoError(t, err)

	// Fire the trigger callbacks directly rather than waiting for cron.
	for _, e := range s.cron.Entries() {
		e.Job.Run()
	}
	assert.Equal(t, 1, rec.records)
	assert.Equal(t, 1, rec.halts)
}

func TestStartStop(t *testing.T) {
	s, err := New(&fakeRecorder{}, Config{}, testLogger())
	require.NoError(t, err)
	s.Start()
	s.Stop()
}
