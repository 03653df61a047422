package reader

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/go-trial-monitor/internal/core/model"
)

func appendToFile(t *testing.T, path, content string) {
	t.Helper()
	file, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	defer file.Close()
	_, err = file.WriteString(content)
	require.NoError(t, err)
}

func newTestFollowingReader(t *testing.T, path string, idleSeconds float64) *FollowingEventReader {
	t.Helper()
	r, err := NewReader("csv_events_following", map[string]any{
		"csv_file":     path,
		"idle_seconds": idleSeconds,
	}, FactoryContext{})
	require.NoError(t, err)
	return r.(*FollowingEventReader)
}

func TestFollowingReaderPicksUpAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.csv")
	require.NoError(t, os.WriteFile(path, []byte("0.5,42\n"), 0o644))

	follower := newTestFollowingReader(t, path, 60.0)
	require.NoError(t, follower.Open())
	defer follower.Close()

	result, err := follower.ReadNext()
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, [][]float64{{0.5, 42.0}}, result["events"].(*model.EventList).Rows())

	// Caught up: nothing yet, but not exhausted.
	result, err = follower.ReadNext()
	require.NoError(t, err)
	assert.Nil(t, result)

	// Another process appends a line; the follower picks it up.
	appendToFile(t, path, "1.5,43\n")
	var rows [][]float64
	for i := 0; i < 10 && rows == nil; i++ {
		result, err = follower.ReadNext()
		require.NoError(t, err)
		if result != nil {
			rows = result["events"].(*model.EventList).Rows()
		}
	}
	assert.Equal(t, [][]float64{{1.5, 43.0}}, rows)
}

func TestFollowingReaderWaitsForCompleteLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.csv")
	require.NoError(t, os.WriteFile(path, []byte("0.5,"), 0o644))

	follower := newTestFollowingReader(t, path, 60.0)
	require.NoError(t, follower.Open())
	defer follower.Close()

	// A partial line is not delivered.
	result, err := follower.ReadNext()
	require.NoError(t, err)
	assert.Nil(t, result)

	// Once the writer finishes the line, it comes through whole.
	appendToFile(t, path, "42\n")
	var rows [][]float64
	for i := 0; i < 10 && rows == nil; i++ {
		result, err = follower.ReadNext()
		require.NoError(t, err)
		if result != nil {
			rows = result["events"].(*model.EventList).Rows()
		}
	}
	assert.Equal(t, [][]float64{{0.5, 42.0}}, rows)
}

func TestFollowingReaderIdleTimeout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.csv")
	require.NoError(t, os.WriteFile(path, []byte("0.5,42\n"), 0o644))

	follower := newTestFollowingReader(t, path, 30.0)
	require.NoError(t, follower.Open())

	// Control the idle clock.
	clock := time.Unix(1000, 0)
	follower.now = func() time.Time { return clock }
	follower.lastActivity = clock

	result, err := follower.ReadNext()
	require.NoError(t, err)
	require.NotNil(t, result)

	// Caught up but within the idle window: nothing yet.
	clock = clock.Add(10 * time.Second)
	result, err = follower.ReadNext()
	require.NoError(t, err)
	assert.Nil(t, result)

	// Past the idle window with no appends: exhausted.
	clock = clock.Add(31 * time.Second)
	_, err = follower.ReadNext()
	assert.ErrorIs(t, err, ErrExhausted)
}

func TestFollowingReaderInitialOnEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.csv")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	follower := newTestFollowingReader(t, path, 60.0)
	initial := follower.Initial()
	require.Contains(t, initial, "events")
	assert.Equal(t, 1, initial["events"].(*model.EventList).ValuesPerEvent())
}
