package trial

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/go-trial-monitor/internal/core/model"
)

func newTestExtractor() (*Extractor, *model.Buffer, *model.Buffer) {
	wrtBuffer := model.NewBuffer(model.NewEventList([][]float64{
		{1.5, 42.0},
		{2.6, 42.0},
	}))
	fooBuffer := model.NewBuffer(model.NewEventList([][]float64{
		{0.2, 7.0},
		{1.2, 7.0},
		{1.3, 7.0},
		{2.2, 7.0},
	}))
	extractor := NewExtractor(wrtBuffer, 42.0, 0, map[string]*model.Buffer{"foo": fooBuffer}, nil)
	return extractor, wrtBuffer, fooBuffer
}

func TestExtractorAlignsToWrtTime(t *testing.T) {
	extractor, _, _ := newTestExtractor()

	tr := NewTrial(1.0, model.Time(2.0))
	extractor.PopulateTrial(tr, 0, nil, nil)

	assert.Equal(t, 1.5, tr.WrtTime, "earliest wrt event inside the trial range")

	require.Contains(t, tr.EventLists, "foo")
	times := tr.EventLists["foo"].Times()
	require.Len(t, times, 2, "only events in [start, end) are copied")
	assert.InDelta(t, -0.3, times[0], 1e-9)
	assert.InDelta(t, -0.2, times[1], 1e-9)
}

func TestExtractorNoWrtEventDefaultsToZero(t *testing.T) {
	extractor, _, _ := newTestExtractor()

	// No wrt event in [3, 4): times stay absolute (wrt 0).
	tr := NewTrial(3.0, model.Time(4.0))
	extractor.PopulateTrial(tr, 1, nil, nil)

	assert.Equal(t, 0.0, tr.WrtTime)
	assert.Empty(t, tr.EventLists["foo"].Times())
}

func TestExtractorOpenEndedTrial(t *testing.T) {
	extractor, _, _ := newTestExtractor()

	tr := NewTrial(2.0, nil)
	extractor.PopulateTrial(tr, 2, nil, nil)

	assert.Equal(t, 2.6, tr.WrtTime)
	times := tr.EventLists["foo"].Times()
	require.Len(t, times, 1)
	assert.InDelta(t, -0.4, times[0], 1e-9)
}

func TestExtractorAppliesDrift(t *testing.T) {
	// The foo reader's clock runs 0.5s ahead of the reference clock.
	wrtBuffer := model.NewBuffer(model.NewEventList([][]float64{{1.5, 42.0}}))
	fooBuffer := model.NewBuffer(model.NewEventList([][]float64{{1.7, 7.0}}))
	fooBuffer.ClockDrift = 0.5
	extractor := NewExtractor(wrtBuffer, 42.0, 0, map[string]*model.Buffer{"foo": fooBuffer}, nil)

	tr := NewTrial(1.0, model.Time(2.0))
	extractor.PopulateTrial(tr, 0, nil, nil)

	// Raw 1.7 is reference 1.2, then shifted by wrt 1.5.
	times := tr.EventLists["foo"].Times()
	require.Len(t, times, 1)
	assert.InDelta(t, -0.3, times[0], 1e-9)
}

type recordingEnhancer struct {
	calls int
	fail  bool
}

func (e *recordingEnhancer) Enhance(trial *Trial, trialNumber int, experimentInfo, subjectInfo map[string]any) error {
	e.calls++
	if e.fail {
		return errors.New("intentional failure")
	}
	trial.AddEnhancement("touched", true, "value")
	return nil
}

func TestExtractorEnhancerFaultIsolation(t *testing.T) {
	wrtBuffer := model.NewBuffer(model.NewEventList([][]float64{{1.5, 42.0}}))
	failing := &recordingEnhancer{fail: true}
	healthy := &recordingEnhancer{}
	extractor := NewExtractor(wrtBuffer, 42.0, 0, nil, []GatedEnhancer{
		{Enhancer: failing},
		{Enhancer: healthy},
	})

	tr := NewTrial(1.0, model.Time(2.0))
	extractor.PopulateTrial(tr, 0, nil, nil)

	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, healthy.calls, "a failing enhancer must not block later enhancers")
	assert.Equal(t, true, tr.GetEnhancement("touched", false))
}

func TestExtractorEnhancerGating(t *testing.T) {
	wrtBuffer := model.NewBuffer(model.NewEventList([][]float64{{1.5, 42.0}}))
	gatedOn := &recordingEnhancer{}
	gatedOff := &recordingEnhancer{}

	openGate, err := NewExpression("score > 0.5", false)
	require.NoError(t, err)
	closedGate, err := NewExpression("score > 2.0", false)
	require.NoError(t, err)

	extractor := NewExtractor(wrtBuffer, 42.0, 0, nil, []GatedEnhancer{
		{Enhancer: gatedOn, When: openGate},
		{Enhancer: gatedOff, When: closedGate},
	})

	tr := NewTrial(1.0, model.Time(2.0))
	tr.AddEnhancement("score", 0.9, "value")
	extractor.PopulateTrial(tr, 0, nil, nil)

	assert.Equal(t, 1, gatedOn.calls)
	assert.Equal(t, 0, gatedOff.calls)
}

func TestExtractorDiscardBefore(t *testing.T) {
	extractor, wrtBuffer, fooBuffer := newTestExtractor()

	extractor.DiscardBefore(1.3)
	assert.Equal(t, []float64{1.5, 2.6}, wrtBuffer.Data.(*model.EventList).Times())
	assert.Equal(t, []float64{1.3, 2.2}, fooBuffer.Data.(*model.EventList).Times())
}
