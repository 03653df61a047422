// Package trial turns the continuous, multi-stream timeline into discrete
// trial records: delimiting trials from start events, aligning buffered data
// with-respect-to a per-trial zero time, and computing named enhancements.
package trial

import (
	"github.com/penwyp/go-trial-monitor/internal/core/model"
	"github.com/penwyp/go-trial-monitor/internal/util"
)

// Trial is one delimited portion of the timeline, with named event, signal,
// and computed data from the same time range. All times are on the reference
// clock. Event and signal times are stored relative to WrtTime.
type Trial struct {
	// StartTime is the beginning of the trial, usually the time of a
	// delimiting event.
	StartTime float64

	// EndTime is the end of the trial, usually the time of the next
	// delimiting event. It is nil for the open-ended final trial.
	EndTime *float64

	// WrtTime is the "zero" time subtracted from event and signal times
	// assigned to this trial, usually between StartTime and EndTime.
	WrtTime float64

	// EventLists holds named event data assigned to this trial.
	EventLists map[string]*model.EventList

	// Signals holds named signal data assigned to this trial.
	Signals map[string]*model.SignalChunk

	// Enhancements holds computed name-value pairs. Values are simple,
	// file-portable types: bool, float64, string, and lists and maps of
	// these.
	Enhancements map[string]any

	// EnhancementCategories groups enhancement names by category, like
	// "id", "value", or "time", in the order the names were first added.
	EnhancementCategories map[string][]string
}

// NewTrial creates a trial covering [startTime, endTime) on the reference
// clock. A nil endTime means the trial is open-ended.
func NewTrial(startTime float64, endTime *float64) *Trial {
	return &Trial{
		StartTime:             startTime,
		EndTime:               endTime,
		EventLists:            make(map[string]*model.EventList),
		Signals:               make(map[string]*model.SignalChunk),
		Enhancements:          make(map[string]any),
		EnhancementCategories: make(map[string][]string),
	}
}

// AddBufferData assigns named buffer data to this trial, routing it to the
// event or signal collection by type. Unsupported types are logged and
// dropped rather than failing the trial.
func (t *Trial) AddBufferData(name string, data model.BufferData) bool {
	switch typed := data.(type) {
	case *model.EventList:
		t.EventLists[name] = typed
		return true
	case *model.SignalChunk:
		t.Signals[name] = typed
		return true
	default:
		util.LogWarnf("Data for name %s not added to trial: type %T is not supported", name, data)
		return false
	}
}

// AddEnhancement adds a name-value pair to the trial and records the name
// under the given category. Names are unique per trial; re-adding a name
// overwrites its value but keeps its original category position.
func (t *Trial) AddEnhancement(name string, value any, category string) {
	names := t.EnhancementCategories[category]
	present := false
	for _, existing := range names {
		if existing == name {
			present = true
			break
		}
	}
	if !present {
		t.EnhancementCategories[category] = append(names, name)
	}
	t.Enhancements[name] = value
}

// GetEnhancement returns the value of a previously added enhancement, or the
// given default.
func (t *Trial) GetEnhancement(name string, defaultValue any) any {
	if value, ok := t.Enhancements[name]; ok {
		return value
	}
	return defaultValue
}

// GetOne returns one element of a list previously added as an enhancement, or
// the given default when the enhancement is missing or the list is empty.
// Scalar enhancements are returned as-is.
func (t *Trial) GetOne(name string, defaultValue any, index int) any {
	value := t.GetEnhancement(name, defaultValue)
	switch list := value.(type) {
	case []any:
		if index < len(list) {
			return list[index]
		}
		return defaultValue
	case []float64:
		if index < len(list) {
			return list[index]
		}
		return defaultValue
	default:
		return value
	}
}

// Enhancer computes new name-value pairs to save with each trial, via
// Trial.AddEnhancement.
type Enhancer interface {
	Enhance(trial *Trial, trialNumber int, experimentInfo, subjectInfo map[string]any) error
}
