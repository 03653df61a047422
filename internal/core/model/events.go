package model

import (
	"fmt"
)

// EventList is a BufferData implementation listing one event per row:
// [timestamp, value, ...]. Rows are not required to be globally sorted across
// appends, but each appended increment is internally time-ordered. Range
// queries use a half-open [start, end) convention on the timestamp column.
type EventList struct {
	events  [][]float64
	columns int // timestamp column plus values; 0 until known
}

// NewEventList wraps the given rows. Every row must be [timestamp, value...]
// with at least one value.
func NewEventList(events [][]float64) *EventList {
	columns := 0
	if len(events) > 0 {
		columns = len(events[0])
	}
	return &EventList{events: events, columns: columns}
}

// NewEmptyEventList creates an empty event list whose future rows will carry
// the given number of values per event.
func NewEmptyEventList(valuesPerEvent int) *EventList {
	return &EventList{events: make([][]float64, 0), columns: valuesPerEvent + 1}
}

// EventCount returns the number of events in the list.
func (l *EventList) EventCount() int {
	return len(l.events)
}

// ValuesPerEvent returns the number of values each event carries, not
// counting the timestamp.
func (l *EventList) ValuesPerEvent() int {
	if l.columns == 0 {
		return 0
	}
	return l.columns - 1
}

// Rows exposes the backing rows. Callers must treat the result as read-only.
func (l *EventList) Rows() [][]float64 {
	return l.events
}

// Times returns just the event timestamps, ignoring values.
func (l *EventList) Times() []float64 {
	times := make([]float64, len(l.events))
	for i, row := range l.events {
		times[i] = row[0]
	}
	return times
}

// Copy implements BufferData.
func (l *EventList) Copy() BufferData {
	events := make([][]float64, len(l.events))
	for i, row := range l.events {
		events[i] = append([]float64(nil), row...)
	}
	return &EventList{events: events, columns: l.columns}
}

func inTimeRange(t float64, start, end *float64) bool {
	if start != nil && t < *start {
		return false
	}
	if end != nil && t >= *end {
		return false
	}
	return true
}

// CopyTimeRange implements BufferData: copy events in [start, end), where a
// nil bound is unbounded on that side.
func (l *EventList) CopyTimeRange(start, end *float64) BufferData {
	events := make([][]float64, 0)
	for _, row := range l.events {
		if inTimeRange(row[0], start, end) {
			events = append(events, append([]float64(nil), row...))
		}
	}
	return &EventList{events: events, columns: l.columns}
}

// Append implements BufferData. The other operand must be an EventList with
// the same number of values per event; appending an empty list is a no-op.
func (l *EventList) Append(other BufferData) error {
	otherList, ok := other.(*EventList)
	if !ok {
		return fmt.Errorf("cannot append %T to EventList", other)
	}
	if otherList.EventCount() == 0 {
		return nil
	}
	if l.columns == 0 {
		l.columns = otherList.columns
	}
	if otherList.columns != l.columns {
		return fmt.Errorf("cannot append events with %d columns to events with %d columns",
			otherList.columns, l.columns)
	}
	l.events = append(l.events, otherList.events...)
	return nil
}

// DiscardBefore implements BufferData.
func (l *EventList) DiscardBefore(start float64) {
	kept := l.events[:0]
	for _, row := range l.events {
		if row[0] >= start {
			kept = append(kept, row)
		}
	}
	// Release the dropped tail for garbage collection.
	for i := len(kept); i < len(l.events); i++ {
		l.events[i] = nil
	}
	l.events = kept
}

// ShiftTimes implements BufferData.
func (l *EventList) ShiftTimes(shift float64) {
	for _, row := range l.events {
		row[0] += shift
	}
}

// EndTime implements BufferData: the latest timestamp present, if any.
func (l *EventList) EndTime() (float64, bool) {
	if len(l.events) == 0 {
		return 0, false
	}
	end := l.events[0][0]
	for _, row := range l.events[1:] {
		if row[0] > end {
			end = row[0]
		}
	}
	return end, true
}

func (l *EventList) valueColumn(valueIndex int) (int, error) {
	column := valueIndex + 1
	if valueIndex < 0 || column >= l.columns {
		return 0, fmt.Errorf("value index %d out of range for events with %d values per event",
			valueIndex, l.ValuesPerEvent())
	}
	return column, nil
}

// TimesOf returns the times of events whose value at the given value index
// equals value, restricted to the half-open time interval [start, end).
func (l *EventList) TimesOf(value float64, valueIndex int, start, end *float64) ([]float64, error) {
	if len(l.events) == 0 {
		return nil, nil
	}
	column, err := l.valueColumn(valueIndex)
	if err != nil {
		return nil, err
	}
	times := make([]float64, 0)
	for _, row := range l.events {
		if row[column] == value && inTimeRange(row[0], start, end) {
			times = append(times, row[0])
		}
	}
	return times, nil
}

// Values returns the event values at the given value index, restricted to
// the half-open time interval [start, end).
func (l *EventList) Values(valueIndex int, start, end *float64) ([]float64, error) {
	if len(l.events) == 0 {
		return nil, nil
	}
	column, err := l.valueColumn(valueIndex)
	if err != nil {
		return nil, err
	}
	values := make([]float64, 0)
	for _, row := range l.events {
		if inTimeRange(row[0], start, end) {
			values = append(values, row[column])
		}
	}
	return values, nil
}

// CopyValueRange copies events whose value at the given value index falls in
// the half-open interval [min, max), where a nil bound is unbounded.
func (l *EventList) CopyValueRange(min, max *float64, valueIndex int) (*EventList, error) {
	if len(l.events) == 0 {
		return &EventList{events: make([][]float64, 0), columns: l.columns}, nil
	}
	column, err := l.valueColumn(valueIndex)
	if err != nil {
		return nil, err
	}
	events := make([][]float64, 0)
	for _, row := range l.events {
		if min != nil && row[column] < *min {
			continue
		}
		if max != nil && row[column] >= *max {
			continue
		}
		events = append(events, append([]float64(nil), row...))
	}
	return &EventList{events: events, columns: l.columns}, nil
}

// ApplyOffsetThenGain transforms the value at the given value index of every
// event by adding offset first, then multiplying by gain. The offset-first
// convention suits digital codes where a baseline is subtracted before
// scaling to a fixed precision.
func (l *EventList) ApplyOffsetThenGain(offset, gain float64, valueIndex int) error {
	if len(l.events) == 0 {
		return nil
	}
	column, err := l.valueColumn(valueIndex)
	if err != nil {
		return err
	}
	for _, row := range l.events {
		row[column] = (row[column] + offset) * gain
	}
	return nil
}
