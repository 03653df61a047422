package transform

import (
	"fmt"

	"github.com/penwyp/go-trial-monitor/internal/core/model"
)

func init() {
	RegisterFactory("offset_then_gain", newOffsetThenGain)
	RegisterFactory("filter_range", newFilterRange)
}

// OffsetThenGain applies an offset, then a gain, to values in event lists or
// signal chunks. For event lists ValueIndex selects the value column; for
// signal chunks ChannelID selects one channel, or all channels when empty.
type OffsetThenGain struct {
	Offset     float64
	Gain       float64
	ValueIndex int
	ChannelID  string
}

type offsetThenGainOptions struct {
	Offset     float64 `mapstructure:"offset"`
	Gain       float64 `mapstructure:"gain"`
	ValueIndex int     `mapstructure:"value_index"`
	ChannelID  string  `mapstructure:"channel_id"`
}

func newOffsetThenGain(args map[string]any) (Transformer, error) {
	options := offsetThenGainOptions{Gain: 1.0}
	if err := decodeArgs(args, &options); err != nil {
		return nil, err
	}
	return &OffsetThenGain{
		Offset:     options.Offset,
		Gain:       options.Gain,
		ValueIndex: options.ValueIndex,
		ChannelID:  options.ChannelID,
	}, nil
}

// Transform implements Transformer, mutating the given data in place.
func (t *OffsetThenGain) Transform(data model.BufferData) (model.BufferData, error) {
	switch typed := data.(type) {
	case *model.EventList:
		if err := typed.ApplyOffsetThenGain(t.Offset, t.Gain, t.ValueIndex); err != nil {
			return nil, err
		}
		return typed, nil
	case *model.SignalChunk:
		if err := typed.ApplyOffsetThenGain(t.Offset, t.Gain, t.ChannelID); err != nil {
			return nil, err
		}
		return typed, nil
	default:
		return nil, fmt.Errorf("offset_then_gain does not apply to %T", data)
	}
}

// FilterRange keeps only events whose value falls in the half-open interval
// [Min, Max), where a nil bound is unbounded on that side.
type FilterRange struct {
	Min        *float64
	Max        *float64
	ValueIndex int
}

type filterRangeOptions struct {
	Min        *float64 `mapstructure:"min"`
	Max        *float64 `mapstructure:"max"`
	ValueIndex int      `mapstructure:"value_index"`
}

func newFilterRange(args map[string]any) (Transformer, error) {
	var options filterRangeOptions
	if err := decodeArgs(args, &options); err != nil {
		return nil, err
	}
	return &FilterRange{Min: options.Min, Max: options.Max, ValueIndex: options.ValueIndex}, nil
}

// Transform implements Transformer, returning a filtered copy of the events.
func (t *FilterRange) Transform(data model.BufferData) (model.BufferData, error) {
	events, ok := data.(*model.EventList)
	if !ok {
		return nil, fmt.Errorf("filter_range does not apply to %T", data)
	}
	return events.CopyValueRange(t.Min, t.Max, t.ValueIndex)
}
