package model

// BufferData is the contract shared by every time-indexed data type that can
// flow from a reader, through a buffer, and into a trial.
type BufferData interface {
	// Copy creates a new, independent deep copy of the data, allowing the
	// same raw read result to be reused along multiple routes.
	Copy() BufferData

	// CopyTimeRange copies the subset of data in the half-open interval
	// [start, end). A nil start means everything strictly before end; a nil
	// end means everything at or after start. The receiver is not mutated.
	CopyTimeRange(start, end *float64) BufferData

	// Append concatenates the other data onto this one, in place. This is
	// the main buffering operation. Appending an empty operand is a no-op.
	Append(other BufferData) error

	// DiscardBefore drops data strictly before the given time, bounding the
	// memory a buffer can consume.
	DiscardBefore(start float64)

	// ShiftTimes translates all timestamps by the given amount, in place.
	ShiftTimes(shift float64)

	// EndTime reports the time of the latest data item present. The second
	// return value is false when there is no data.
	EndTime() (float64, bool)
}

// Time returns a pointer to the given time value, for use with the optional
// time parameters of CopyTimeRange and friends.
func Time(t float64) *float64 {
	return &t
}

// Buffer holds one stream's data in a sliding window of time, along with the
// stream's current clock drift estimate. Reader routers refresh the drift as
// sync events accumulate; trial delimitation and extraction use it to convert
// between the stream's raw clock and the pipeline reference clock.
type Buffer struct {
	Data       BufferData
	ClockDrift float64
}

// NewBuffer wraps the given initial (usually empty-shaped) data in a buffer
// with zero clock drift.
func NewBuffer(initial BufferData) *Buffer {
	return &Buffer{Data: initial}
}

// RawToReference converts a time on the buffer's own raw clock to the
// pipeline reference clock.
func (b *Buffer) RawToReference(rawTime float64) float64 {
	return rawTime - b.ClockDrift
}

// ReferenceToRaw converts a time on the pipeline reference clock to the
// buffer's own raw clock.
func (b *Buffer) ReferenceToRaw(referenceTime float64) float64 {
	return referenceTime + b.ClockDrift
}

// ReferenceToRawOpt is ReferenceToRaw for optional times: nil passes through
// unchanged.
func (b *Buffer) ReferenceToRawOpt(referenceTime *float64) *float64 {
	if referenceTime == nil {
		return nil
	}
	raw := *referenceTime + b.ClockDrift
	return &raw
}
