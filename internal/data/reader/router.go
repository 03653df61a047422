package reader

import (
	"errors"
	"fmt"

	"github.com/penwyp/go-trial-monitor/internal/core/clocksync"
	"github.com/penwyp/go-trial-monitor/internal/core/model"
	"github.com/penwyp/go-trial-monitor/internal/util"
)

// Route maps one reader result name to a named buffer, with optional
// transformations applied in order along the way.
type Route struct {
	ReaderResultName string
	BufferName       string
	Transformers     []Transformer
}

// Transformer is the transform step a route applies between reader and
// buffer. It matches transform.Transformer; declared here so routes do not
// depend on the transform package.
type Transformer interface {
	Transform(data model.BufferData) (model.BufferData, error)
}

// SyncConfig tells a router how to find clock sync events in its reader's
// results.
type SyncConfig struct {
	// IsReference marks the reader whose clock is the canonical reference
	// that other readers align to.
	IsReference bool

	// ReaderResultName is the reader result to scan for sync events.
	ReaderResultName string

	// EventValue identifies sync events within the named result.
	EventValue float64

	// EventValueIndex is the event value index to match against EventValue.
	EventValueIndex int

	// ReaderName is the name to record sync events under. Usually the
	// router's own reader name, but it may name a different reader so one
	// reader can reuse sync info from an upstream source.
	ReaderName string
}

// Status is a router's position in its lifecycle. A router starts Active and
// moves at most once, to Exhausted or Faulted; there is no path back.
type Status int

const (
	// StatusActive means the reader is still producing (or may produce)
	// data.
	StatusActive Status = iota

	// StatusExhausted means the reader reported an orderly end of data.
	StatusExhausted

	// StatusFaulted means the reader failed; the fault reason is retained.
	StatusFaulted
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusExhausted:
		return "exhausted"
	case StatusFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Router drives one reader: it polls for incremental results, records sync
// events, and deals route data into named buffers.
//
// Faults are contained at two levels. A reader error latches the router out
// of Active, so one bad source cannot stall the pipeline with repeated
// failing reads. A transform or append error on one route drops only that
// route's data for that read cycle.
type Router struct {
	readerName   string
	reader       Reader
	routes       []Route
	namedBuffers map[string]*model.Buffer

	emptyReadsAllowed int
	syncConfig        *SyncConfig
	syncRegistry      *clocksync.Registry

	status      Status
	faultReason error

	maxBufferTime float64
	clockDrift    float64
}

// NewRouter creates a router for one named reader. namedBuffers holds the
// buffers the routes may target; emptyReadsAllowed bounds how many
// consecutive dataless reads RouteUntil tolerates before giving up on a
// target time.
func NewRouter(
	readerName string,
	r Reader,
	routes []Route,
	namedBuffers map[string]*model.Buffer,
	emptyReadsAllowed int,
	syncConfig *SyncConfig,
	syncRegistry *clocksync.Registry,
) *Router {
	return &Router{
		readerName:        readerName,
		reader:            r,
		routes:            routes,
		namedBuffers:      namedBuffers,
		emptyReadsAllowed: emptyReadsAllowed,
		syncConfig:        syncConfig,
		syncRegistry:      syncRegistry,
	}
}

// ReaderName returns the configured name of the underlying reader.
func (r *Router) ReaderName() string {
	return r.readerName
}

// Reader returns the underlying reader, for lifecycle management.
func (r *Router) Reader() Reader {
	return r.reader
}

// Routes returns the configured routes.
func (r *Router) Routes() []Route {
	return r.routes
}

// Buffers returns the named buffers this router fills.
func (r *Router) Buffers() map[string]*model.Buffer {
	return r.namedBuffers
}

// Status returns the router's lifecycle status.
func (r *Router) Status() Status {
	return r.status
}

// FaultReason returns the error that moved the router to StatusFaulted, or
// nil.
func (r *Router) FaultReason() error {
	return r.faultReason
}

// StillGoing reports whether the router is still worth polling.
func (r *Router) StillGoing() bool {
	return r.status == StatusActive
}

// SyncConfig returns the router's sync configuration, or nil.
func (r *Router) SyncConfig() *SyncConfig {
	return r.syncConfig
}

// ClockDrift returns the router's current drift estimate.
func (r *Router) ClockDrift() float64 {
	return r.clockDrift
}

// MaxBufferTime returns the latest raw timestamp seen in any of the router's
// buffers, the reader's high water mark.
func (r *Router) MaxBufferTime() float64 {
	return r.maxBufferTime
}

// RouteNext asks the reader for one increment of data, unconditionally, and
// deals any results into connected buffers. It returns true only when the
// read produced data.
func (r *Router) RouteNext() bool {
	if r.status != StatusActive {
		return false
	}

	result, err := r.reader.ReadNext()
	if errors.Is(err, ErrExhausted) {
		r.status = StatusExhausted
		util.LogInfof("Reader %s is done (source exhausted).", r.readerName)
		return false
	}
	if err != nil {
		r.status = StatusFaulted
		r.faultReason = err
		util.LogWarnf("Reader %s is disabled (it reported an error): %v", r.readerName, err)
		return false
	}
	if len(result) == 0 {
		return false
	}

	r.recordSyncEvents(result)

	for _, route := range r.routes {
		buffer, ok := r.namedBuffers[route.BufferName]
		if !ok {
			continue
		}
		data, ok := result[route.ReaderResultName]
		if !ok || data == nil {
			continue
		}

		dataCopy := data.Copy()
		transformed, err := applyTransformers(route.Transformers, dataCopy)
		if err != nil {
			util.LogErrorf("Route transformer failed, skipping data for %s -> %s: %v",
				route.ReaderResultName, route.BufferName, err)
			continue
		}
		if err := buffer.Data.Append(transformed); err != nil {
			util.LogErrorf("Route buffer failed appending data, skipping data for %s -> %s: %v",
				route.ReaderResultName, route.BufferName, err)
			continue
		}
	}

	// Update the reader's high water mark: the latest timestamp seen so far.
	for _, buffer := range r.namedBuffers {
		if endTime, ok := buffer.Data.EndTime(); ok && endTime > r.maxBufferTime {
			r.maxBufferTime = endTime
		}
	}
	return true
}

func applyTransformers(transformers []Transformer, data model.BufferData) (model.BufferData, error) {
	for _, transformer := range transformers {
		transformed, err := transformer.Transform(data)
		if err != nil {
			return nil, err
		}
		data = transformed
	}
	return data, nil
}

// recordSyncEvents scans a read result for sync events and records them in
// the sync registry.
func (r *Router) recordSyncEvents(result map[string]model.BufferData) {
	if r.syncConfig == nil || r.syncRegistry == nil {
		return
	}
	events, ok := result[r.syncConfig.ReaderResultName].(*model.EventList)
	if !ok {
		return
	}
	syncTimes, err := events.TimesOf(r.syncConfig.EventValue, r.syncConfig.EventValueIndex, nil, nil)
	if err != nil {
		util.LogWarnf("Reader %s sync config does not match its events: %v", r.readerName, err)
		return
	}
	for _, eventTime := range syncTimes {
		r.syncRegistry.RecordEvent(r.syncConfig.ReaderName, eventTime)
	}
}

// RouteUntil reads repeatedly until the router's buffers catch up to the
// given reference-clock time, tolerating up to emptyReadsAllowed consecutive
// dataless reads. It returns the raw high water mark reached.
func (r *Router) RouteUntil(targetReferenceTime float64) float64 {
	targetReaderTime := targetReferenceTime + r.clockDrift
	emptyReads := 0
	for r.maxBufferTime < targetReaderTime && emptyReads <= r.emptyReadsAllowed {
		if r.RouteNext() {
			emptyReads = 0
		} else {
			emptyReads++
		}
	}
	if r.maxBufferTime < targetReaderTime {
		util.LogDebugf("Reader %s stopped %f short of target time %f.",
			r.readerName, targetReaderTime-r.maxBufferTime, targetReaderTime)
	}
	return r.maxBufferTime
}

// UpdateDriftEstimate refreshes the router's drift estimate from the sync
// registry, considering only sync events up to the optional reference-clock
// end time, and propagates the estimate to all of the router's buffers. It
// returns the current estimate.
func (r *Router) UpdateDriftEstimate(referenceEndTime *float64) float64 {
	if r.syncConfig == nil || r.syncRegistry == nil {
		return r.clockDrift
	}

	var readerEndTime *float64
	if referenceEndTime != nil {
		readerEndTime = model.Time(*referenceEndTime + r.clockDrift)
	}
	r.clockDrift = r.syncRegistry.Drift(r.syncConfig.ReaderName, referenceEndTime, readerEndTime)
	for _, buffer := range r.namedBuffers {
		buffer.ClockDrift = r.clockDrift
	}
	return r.clockDrift
}
