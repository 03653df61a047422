package reader

import (
	"time"

	"github.com/penwyp/go-trial-monitor/internal/core/model"
)

// DelayReader wraps another reader and paces its results against wall-clock
// time, so an offline file plays back sort of like a live session. Each read
// result is stashed until the wall clock, measured from Open, catches up to
// the result's latest data timestamp.
type DelayReader struct {
	reader Reader
	now    func() time.Time

	startTime     time.Time
	stashedResult map[string]model.BufferData
	stashUntil    time.Time
}

// NewDelayReader wraps the given reader with wall-clock pacing.
func NewDelayReader(r Reader) *DelayReader {
	return &DelayReader{reader: r, now: time.Now}
}

// Open implements Reader, starting the wall clock for pacing.
func (r *DelayReader) Open() error {
	r.startTime = r.now()
	return r.reader.Open()
}

// Close implements Reader.
func (r *DelayReader) Close() error {
	return r.reader.Close()
}

// Initial implements Reader.
func (r *DelayReader) Initial() map[string]model.BufferData {
	return r.reader.Initial()
}

// ReadNext implements Reader. Results from the wrapped reader are held back
// until their data time has really elapsed; in the meantime ReadNext reports
// nothing available yet.
func (r *DelayReader) ReadNext() (map[string]model.BufferData, error) {
	if r.stashedResult != nil {
		if r.now().Before(r.stashUntil) {
			return nil, nil
		}
		stashed := r.stashedResult
		r.stashedResult = nil
		return stashed, nil
	}

	result, err := r.reader.ReadNext()
	if err != nil || len(result) == 0 {
		return nil, err
	}

	latest := 0.0
	for _, data := range result {
		if endTime, ok := data.EndTime(); ok && endTime > latest {
			latest = endTime
		}
	}
	r.stashUntil = r.startTime.Add(time.Duration(latest * float64(time.Second)))
	r.stashedResult = result
	return nil, nil
}
