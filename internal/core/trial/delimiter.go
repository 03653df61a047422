package trial

import (
	"github.com/penwyp/go-trial-monitor/internal/core/model"
	"github.com/penwyp/go-trial-monitor/internal/util"
)

// Numbered pairs a trial with its zero-based sequence number, preserving
// emission order.
type Numbered struct {
	Number int
	Trial  *Trial
}

// Delimiter monitors a "start" event buffer and makes new trials as
// delimiting events arrive. Each start event closes the trial that began at
// the previous start event (or at time zero), so trials partition the
// timeline into half-open [start, end) intervals with no gaps.
type Delimiter struct {
	startBuffer     *model.Buffer
	startValue      float64
	startValueIndex int

	// startTime is the current trial's start on the start buffer's raw
	// clock; conversion to the reference clock happens at emission time so
	// it reflects the latest drift estimate.
	startTime  float64
	trialCount int
	logMod     int
}

// NewDelimiter creates a delimiter watching the given event buffer for events
// whose value at startValueIndex equals startValue. The first trial begins at
// startTime on the start buffer's raw clock, and start events at or before
// that time are ignored. trialCount numbers the first trial emitted.
func NewDelimiter(startBuffer *model.Buffer, startValue float64, startValueIndex int, startTime float64, trialCount int) *Delimiter {
	return &Delimiter{
		startBuffer:     startBuffer,
		startValue:      startValue,
		startValueIndex: startValueIndex,
		startTime:       startTime,
		trialCount:      trialCount,
		logMod:          50,
	}
}

// TrialCount returns the number of trials delimited so far.
func (d *Delimiter) TrialCount() int {
	return d.trialCount
}

func (d *Delimiter) startEvents() *model.EventList {
	events, ok := d.startBuffer.Data.(*model.EventList)
	if !ok {
		return model.NewEmptyEventList(1)
	}
	return events
}

// Next checks the start buffer for new start events and produces a trial for
// each one, closing the interval that began at the previous start event.
// Trial times are on the reference clock.
func (d *Delimiter) Next() ([]Numbered, error) {
	startTimes, err := d.startEvents().TimesOf(d.startValue, d.startValueIndex, nil, nil)
	if err != nil {
		return nil, err
	}

	var trials []Numbered
	for _, nextStartTime := range startTimes {
		if nextStartTime <= d.startTime {
			continue
		}
		trial := NewTrial(
			d.startBuffer.RawToReference(d.startTime),
			model.Time(d.startBuffer.RawToReference(nextStartTime)),
		)
		trials = append(trials, Numbered{Number: d.trialCount, Trial: trial})

		d.startTime = nextStartTime
		d.trialCount++
		if d.trialCount%d.logMod == 0 {
			util.LogInfof("Delimited %d trials.", d.trialCount)
		}
	}
	return trials, nil
}

// Last makes a final, open-ended trial from whatever remains after the last
// start event.
func (d *Delimiter) Last() Numbered {
	trial := NewTrial(d.startBuffer.RawToReference(d.startTime), nil)
	last := Numbered{Number: d.trialCount, Trial: trial}
	d.trialCount++
	util.LogInfof("Delimited %d trials (last one).", d.trialCount)
	return last
}

// DiscardBefore lets the start buffer discard data no longer needed, given a
// reference-clock time.
func (d *Delimiter) DiscardBefore(referenceTime float64) {
	d.startBuffer.Data.DiscardBefore(d.startBuffer.ReferenceToRaw(referenceTime))
}
