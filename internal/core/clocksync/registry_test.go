package clocksync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func timePtr(t float64) *float64 {
	return &t
}

func TestDriftSteadyOffset(t *testing.T) {
	registry := NewRegistry("ref")
	for _, et := range []float64{1.0, 2.0, 3.0} {
		registry.RecordEvent("ref", et)
	}
	for _, et := range []float64{1.13, 2.13, 3.13} {
		registry.RecordEvent("plex", et)
	}

	drift := registry.Drift("plex", nil, nil)
	assert.InDelta(t, 0.13, drift, 1e-9)
}

func TestDriftReferenceReaderIsZero(t *testing.T) {
	registry := NewRegistry("ref")
	for _, et := range []float64{1.0, 2.0, 3.0} {
		registry.RecordEvent("ref", et)
	}

	drift := registry.Drift("ref", nil, nil)
	assert.Equal(t, 0.0, drift)
}

func TestDriftNoEvents(t *testing.T) {
	registry := NewRegistry("ref")

	// Nothing recorded anywhere.
	assert.Equal(t, 0.0, registry.Drift("plex", nil, nil))

	// Reference has events, reader has none.
	registry.RecordEvent("ref", 1.0)
	assert.Equal(t, 0.0, registry.Drift("plex", nil, nil))

	// Reader has events, reference has none.
	empty := NewRegistry("silent")
	empty.RecordEvent("plex", 1.0)
	assert.Equal(t, 0.0, empty.Drift("plex", nil, nil))
}

func TestDriftReaderDropout(t *testing.T) {
	// The reader missed the two most recent sync events. Naive index
	// pairing would report a drift near 2 seconds; closest-pair matching
	// still recovers the true small offset.
	registry := NewRegistry("ref")
	for _, et := range []float64{1.0, 2.0, 3.0} {
		registry.RecordEvent("ref", et)
	}
	registry.RecordEvent("plex", 1.13)

	drift := registry.Drift("plex", nil, nil)
	assert.InDelta(t, 0.13, drift, 1e-9)
}

func TestDriftReferenceDropout(t *testing.T) {
	// The reference missed recent sync events instead.
	registry := NewRegistry("ref")
	registry.RecordEvent("ref", 1.0)
	for _, et := range []float64{1.13, 2.13, 3.13} {
		registry.RecordEvent("plex", et)
	}

	drift := registry.Drift("plex", nil, nil)
	assert.InDelta(t, 0.13, drift, 1e-9)
}

func TestDriftEndTimeTruncation(t *testing.T) {
	registry := NewRegistry("ref")
	for _, et := range []float64{1.0, 2.0, 3.0} {
		registry.RecordEvent("ref", et)
	}
	// The reader's offset changed over time, as after a clock reset.
	for _, et := range []float64{1.1, 2.1, 3.5} {
		registry.RecordEvent("plex", et)
	}

	// Unrestricted, the latest reader event dominates.
	assert.InDelta(t, 0.5, registry.Drift("plex", nil, nil), 1e-9)

	// Truncated to the earlier part of the run, the old offset holds.
	drift := registry.Drift("plex", timePtr(2.0), timePtr(2.2))
	assert.InDelta(t, 0.1, drift, 1e-9)
}

func TestDriftEndTimeIsInclusive(t *testing.T) {
	registry := NewRegistry("ref")
	registry.RecordEvent("ref", 2.0)
	registry.RecordEvent("plex", 2.25)

	drift := registry.Drift("plex", timePtr(2.0), timePtr(2.25))
	assert.InDelta(t, 0.25, drift, 1e-9)
}

func TestRecordEventAccumulates(t *testing.T) {
	registry := NewRegistry("ref")
	registry.RecordEvent("plex", 1.0)
	registry.RecordEvent("plex", 2.0)

	assert.Equal(t, []float64{1.0, 2.0}, registry.EventTimes("plex"))
	assert.Nil(t, registry.EventTimes("other"))
}
