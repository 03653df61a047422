// Package clocksync estimates clock drift between independently clocked data
// sources, based on sync events that all sources record at (approximately)
// the same real-world instants.
package clocksync

import (
	"math"
)

// Registry keeps track of sync event times as seen by different readers and
// estimates clock drift of each reader relative to a designated reference
// reader.
//
// Drift estimates pair up event times by proximity rather than by array
// index. If one reader drops sync events, index-based pairing would make the
// apparent drift grow without bound in real time; pairing the latest event of
// each side with the closest event on the other side, and keeping whichever
// of those two pairings is tighter, stays robust to dropouts. This assumes
// true drift is small compared to the interval between sync events.
type Registry struct {
	referenceReaderName string
	eventTimes          map[string][]float64
}

// NewRegistry creates a registry with the given reference reader. The
// reference name may be filled in later, as reader configs are examined.
func NewRegistry(referenceReaderName string) *Registry {
	return &Registry{
		referenceReaderName: referenceReaderName,
		eventTimes:          make(map[string][]float64),
	}
}

// SetReferenceReaderName designates the reader whose clock all others are
// aligned to.
func (r *Registry) SetReferenceReaderName(name string) {
	r.referenceReaderName = name
}

// ReferenceReaderName returns the designated reference reader.
func (r *Registry) ReferenceReaderName() string {
	return r.referenceReaderName
}

// RecordEvent records a sync event time as seen by the named reader. Event
// lists are append-only and grow for the life of the run.
func (r *Registry) RecordEvent(readerName string, eventTime float64) {
	r.eventTimes[readerName] = append(r.eventTimes[readerName], eventTime)
}

// EventTimes returns the sync event times recorded so far for the named
// reader.
func (r *Registry) EventTimes(readerName string) []float64 {
	return r.eventTimes[readerName]
}

func truncate(times []float64, end *float64) []float64 {
	if end == nil {
		return times
	}
	kept := make([]float64, 0, len(times))
	for _, t := range times {
		if t <= *end {
			kept = append(kept, t)
		}
	}
	return kept
}

// closestOffset returns the offset from times to target with the smallest
// magnitude. times must not be empty.
func closestOffset(target float64, times []float64) float64 {
	best := target - times[0]
	for _, t := range times[1:] {
		offset := target - t
		if math.Abs(offset) < math.Abs(best) {
			best = offset
		}
	}
	return best
}

// Drift estimates the clock drift of the named reader relative to the
// reference reader: (reader clock) - (reference clock) at "now". Either end
// time, when non-nil, restricts the events considered to those at or before
// it, on the respective clock. With no qualifying events on either side the
// estimate is 0.
//
// Two directional candidates are computed: the reader's latest event paired
// with the closest reference event, and the reference's latest event paired
// with the closest reader event. The candidate with the smaller magnitude
// wins; on an exact tie the reader-side candidate is preferred.
func (r *Registry) Drift(readerName string, referenceEndTime, readerEndTime *float64) float64 {
	referenceTimes := truncate(r.eventTimes[r.referenceReaderName], referenceEndTime)
	if len(referenceTimes) == 0 {
		return 0.0
	}
	readerTimes := truncate(r.eventTimes[readerName], readerEndTime)
	if len(readerTimes) == 0 {
		return 0.0
	}

	readerLast := readerTimes[len(readerTimes)-1]
	driftFromReader := closestOffset(readerLast, referenceTimes)

	referenceLast := referenceTimes[len(referenceTimes)-1]
	driftFromReference := -closestOffset(referenceLast, readerTimes)

	if math.Abs(driftFromReference) < math.Abs(driftFromReader) {
		return driftFromReference
	}
	return driftFromReader
}
