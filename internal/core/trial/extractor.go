package trial

import (
	"github.com/penwyp/go-trial-monitor/internal/core/model"
	"github.com/penwyp/go-trial-monitor/internal/util"
)

// GatedEnhancer pairs an enhancer with an optional gate expression. A nil
// gate means the enhancer runs for every trial; otherwise it runs only when
// the gate evaluates truthy against the trial's enhancements so far.
type GatedEnhancer struct {
	Enhancer Enhancer
	When     *Expression
}

// Extractor populates trials with wrt-aligned data copied from named buffers,
// then runs configured enhancers over each trial.
type Extractor struct {
	wrtBuffer     *model.Buffer
	wrtValue      float64
	wrtValueIndex int
	namedBuffers  map[string]*model.Buffer
	enhancers     []GatedEnhancer
}

// NewExtractor creates an extractor. The wrt buffer supplies each trial's
// alignment time; namedBuffers supply the data copied into each trial, keyed
// by the name the data will carry on the trial.
func NewExtractor(
	wrtBuffer *model.Buffer,
	wrtValue float64,
	wrtValueIndex int,
	namedBuffers map[string]*model.Buffer,
	enhancers []GatedEnhancer,
) *Extractor {
	return &Extractor{
		wrtBuffer:     wrtBuffer,
		wrtValue:      wrtValue,
		wrtValueIndex: wrtValueIndex,
		namedBuffers:  namedBuffers,
		enhancers:     enhancers,
	}
}

// PopulateTrial fills in the given trial with data from the configured
// buffers, restricted to the trial's time range and shifted so the trial's
// wrt time reads as zero, then applies enhancers. An enhancer failure is
// logged and skipped; the remaining enhancers still run.
func (e *Extractor) PopulateTrial(trial *Trial, trialNumber int, experimentInfo, subjectInfo map[string]any) {
	trial.WrtTime = e.findWrtTime(trial)

	for name, buffer := range e.namedBuffers {
		data := buffer.Data.CopyTimeRange(
			model.Time(buffer.ReferenceToRaw(trial.StartTime)),
			buffer.ReferenceToRawOpt(trial.EndTime),
		)
		data.ShiftTimes(-buffer.ReferenceToRaw(trial.WrtTime))
		trial.AddBufferData(name, data)
	}

	for _, gated := range e.enhancers {
		if gated.When != nil && !truthy(gated.When.Evaluate(trial)) {
			continue
		}
		if err := gated.Enhancer.Enhance(trial, trialNumber, experimentInfo, subjectInfo); err != nil {
			util.LogErrorf("Error applying %T to trial %d: %v", gated.Enhancer, trialNumber, err)
		}
	}
}

// findWrtTime locates the trial's alignment time: the earliest wrt event in
// the trial's range, converted to the reference clock, or 0 when the trial
// has no wrt event.
func (e *Extractor) findWrtTime(trial *Trial) float64 {
	events, ok := e.wrtBuffer.Data.(*model.EventList)
	if !ok {
		return 0.0
	}
	wrtTimes, err := events.TimesOf(
		e.wrtValue,
		e.wrtValueIndex,
		model.Time(e.wrtBuffer.ReferenceToRaw(trial.StartTime)),
		e.wrtBuffer.ReferenceToRawOpt(trial.EndTime),
	)
	if err != nil {
		util.LogWarnf("Error finding wrt time for trial starting at %f: %v", trial.StartTime, err)
		return 0.0
	}
	if len(wrtTimes) == 0 {
		return 0.0
	}
	rawWrtTime := wrtTimes[0]
	for _, t := range wrtTimes[1:] {
		if t < rawWrtTime {
			rawWrtTime = t
		}
	}
	return e.wrtBuffer.RawToReference(rawWrtTime)
}

// DiscardBefore lets the wrt and named buffers discard data no longer needed,
// given a reference-clock time.
func (e *Extractor) DiscardBefore(referenceTime float64) {
	e.wrtBuffer.Data.DiscardBefore(e.wrtBuffer.ReferenceToRaw(referenceTime))
	for _, buffer := range e.namedBuffers {
		buffer.Data.DiscardBefore(buffer.ReferenceToRaw(referenceTime))
	}
}
