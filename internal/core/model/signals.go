package model

import (
	"fmt"
)

// SignalChunk is a BufferData implementation holding uniformly sampled,
// multi-channel signal data: one row per sample, one column per channel.
// The time of sample i is FirstSampleTime + i/SampleFrequency.
type SignalChunk struct {
	samples         [][]float64
	sampleFrequency float64  // samples per second; 0 until known
	firstSampleTime *float64 // nil until data arrives
	channelIDs      []string
}

// NewSignalChunk wraps the given samples. The number of channel ids must
// match the number of columns in every sample row.
func NewSignalChunk(samples [][]float64, sampleFrequency float64, firstSampleTime float64, channelIDs []string) *SignalChunk {
	first := firstSampleTime
	return &SignalChunk{
		samples:         samples,
		sampleFrequency: sampleFrequency,
		firstSampleTime: &first,
		channelIDs:      channelIDs,
	}
}

// NewEmptySignalChunk creates an empty placeholder chunk. A zero sample
// frequency is allowed and will be filled in from the first real data
// appended, as will the first sample time.
func NewEmptySignalChunk(sampleFrequency float64, channelIDs []string) *SignalChunk {
	return &SignalChunk{
		samples:         make([][]float64, 0),
		sampleFrequency: sampleFrequency,
		channelIDs:      channelIDs,
	}
}

// SampleCount returns the number of samples in the chunk.
func (c *SignalChunk) SampleCount() int {
	return len(c.samples)
}

// ChannelCount returns the number of channels in the chunk.
func (c *SignalChunk) ChannelCount() int {
	return len(c.channelIDs)
}

// ChannelIDs returns the identifiers of the channels in this chunk.
func (c *SignalChunk) ChannelIDs() []string {
	return c.channelIDs
}

// SampleFrequency returns the sample frequency in Hz, or 0 if not yet known.
func (c *SignalChunk) SampleFrequency() float64 {
	return c.sampleFrequency
}

// FirstSampleTime returns the time of the first sample, if any data has
// arrived.
func (c *SignalChunk) FirstSampleTime() (float64, bool) {
	if c.firstSampleTime == nil {
		return 0, false
	}
	return *c.firstSampleTime, true
}

// Samples exposes the backing sample rows. Callers must treat the result as
// read-only.
func (c *SignalChunk) Samples() [][]float64 {
	return c.samples
}

// Times returns the time of every sample in the chunk.
func (c *SignalChunk) Times() []float64 {
	times := make([]float64, len(c.samples))
	if c.firstSampleTime == nil {
		return times
	}
	for i := range c.samples {
		times[i] = *c.firstSampleTime + float64(i)/c.sampleFrequency
	}
	return times
}

// Copy implements BufferData.
func (c *SignalChunk) Copy() BufferData {
	samples := make([][]float64, len(c.samples))
	for i, row := range c.samples {
		samples[i] = append([]float64(nil), row...)
	}
	copied := &SignalChunk{
		samples:         samples,
		sampleFrequency: c.sampleFrequency,
		channelIDs:      append([]string(nil), c.channelIDs...),
	}
	if c.firstSampleTime != nil {
		first := *c.firstSampleTime
		copied.firstSampleTime = &first
	}
	return copied
}

// CopyTimeRange implements BufferData. As a special case, a zero-width range
// where start == end returns exactly one sample, the first at or after the
// requested time, supporting single-sample lookups.
func (c *SignalChunk) CopyTimeRange(start, end *float64) BufferData {
	times := c.Times()
	firstIndex := 0
	if start != nil {
		firstIndex = len(times)
		for i, t := range times {
			if t >= *start {
				firstIndex = i
				break
			}
		}
	}

	lastIndex := len(times)
	if end != nil {
		if start != nil && *end == *start {
			// Zero-width range: take just the first at-or-after sample.
			lastIndex = firstIndex
			if firstIndex < len(times) {
				lastIndex = firstIndex + 1
			}
		} else {
			lastIndex = firstIndex
			for i := firstIndex; i < len(times); i++ {
				if times[i] >= *end {
					break
				}
				lastIndex = i + 1
			}
		}
	}

	samples := make([][]float64, 0, lastIndex-firstIndex)
	for i := firstIndex; i < lastIndex; i++ {
		samples = append(samples, append([]float64(nil), c.samples[i]...))
	}
	copied := &SignalChunk{
		samples:         samples,
		sampleFrequency: c.sampleFrequency,
		channelIDs:      append([]string(nil), c.channelIDs...),
	}
	if len(samples) > 0 {
		first := times[firstIndex]
		copied.firstSampleTime = &first
	}
	return copied
}

// Append implements BufferData. The other operand must be a SignalChunk with
// the same channel count. An empty placeholder adopts the sample frequency
// and first sample time of the first real data appended.
func (c *SignalChunk) Append(other BufferData) error {
	otherChunk, ok := other.(*SignalChunk)
	if !ok {
		return fmt.Errorf("cannot append %T to SignalChunk", other)
	}
	if otherChunk.SampleCount() == 0 {
		return nil
	}
	if len(c.samples) > 0 && otherChunk.ChannelCount() != c.ChannelCount() {
		return fmt.Errorf("cannot append signal with %d channels to signal with %d channels",
			otherChunk.ChannelCount(), c.ChannelCount())
	}
	c.samples = append(c.samples, otherChunk.samples...)
	if c.sampleFrequency == 0 {
		c.sampleFrequency = otherChunk.sampleFrequency
	}
	if c.firstSampleTime == nil && otherChunk.firstSampleTime != nil {
		first := *otherChunk.firstSampleTime
		c.firstSampleTime = &first
	}
	return nil
}

// DiscardBefore implements BufferData, advancing the first sample time to
// the earliest retained sample.
func (c *SignalChunk) DiscardBefore(start float64) {
	times := c.Times()
	firstKept := len(times)
	for i, t := range times {
		if t >= start {
			firstKept = i
			break
		}
	}
	if firstKept == 0 {
		return
	}
	kept := make([][]float64, len(c.samples)-firstKept)
	copy(kept, c.samples[firstKept:])
	c.samples = kept
	if len(c.samples) > 0 {
		first := times[firstKept]
		c.firstSampleTime = &first
	} else {
		c.firstSampleTime = nil
	}
}

// ShiftTimes implements BufferData.
func (c *SignalChunk) ShiftTimes(shift float64) {
	if c.firstSampleTime != nil {
		shifted := *c.firstSampleTime + shift
		c.firstSampleTime = &shifted
	}
}

// EndTime implements BufferData: the time of the last sample, if any.
func (c *SignalChunk) EndTime() (float64, bool) {
	if len(c.samples) == 0 || c.firstSampleTime == nil {
		return 0, false
	}
	duration := float64(len(c.samples)-1) / c.sampleFrequency
	return *c.firstSampleTime + duration, true
}

func (c *SignalChunk) channelIndex(channelID string) (int, error) {
	for i, id := range c.channelIDs {
		if id == channelID {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown channel id %q (have %v)", channelID, c.channelIDs)
}

// ChannelValues returns the sample values of one channel, by id.
func (c *SignalChunk) ChannelValues(channelID string) ([]float64, error) {
	index, err := c.channelIndex(channelID)
	if err != nil {
		return nil, err
	}
	values := make([]float64, len(c.samples))
	for i, row := range c.samples {
		values[i] = row[index]
	}
	return values, nil
}

// ReplaceChannelValues overwrites the sample values of one channel, by id.
// The replacement must have one value per sample.
func (c *SignalChunk) ReplaceChannelValues(channelID string, values []float64) error {
	index, err := c.channelIndex(channelID)
	if err != nil {
		return err
	}
	if len(values) != len(c.samples) {
		return fmt.Errorf("cannot replace %d samples of channel %q with %d values",
			len(c.samples), channelID, len(values))
	}
	for i, row := range c.samples {
		row[index] = values[i]
	}
	return nil
}

// ApplyOffsetThenGain transforms sample values by adding offset first, then
// multiplying by gain. An empty channel id applies to all channels; a
// nonempty id selects one channel and it is an error if it does not exist.
func (c *SignalChunk) ApplyOffsetThenGain(offset, gain float64, channelID string) error {
	if channelID == "" {
		for _, row := range c.samples {
			for i := range row {
				row[i] = (row[i] + offset) * gain
			}
		}
		return nil
	}
	index, err := c.channelIndex(channelID)
	if err != nil {
		return err
	}
	for _, row := range c.samples {
		row[index] = (row[index] + offset) * gain
	}
	return nil
}
