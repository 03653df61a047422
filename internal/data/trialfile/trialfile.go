// Package trialfile writes and reads trial records as JSON Lines: one JSON
// object per trial, one trial per line, so files stay streamable and
// well-formed after every append.
package trialfile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/penwyp/go-trial-monitor/internal/core/model"
	"github.com/penwyp/go-trial-monitor/internal/core/trial"
)

// trialRecord is the on-disk shape of one trial.
type trialRecord struct {
	StartTime             float64                 `json:"start_time"`
	EndTime               *float64                `json:"end_time"`
	WrtTime               float64                 `json:"wrt_time"`
	NumericEvents         map[string][][]float64  `json:"numeric_events,omitempty"`
	Signals               map[string]signalRecord `json:"signals,omitempty"`
	Enhancements          map[string]any          `json:"enhancements,omitempty"`
	EnhancementCategories map[string][]string     `json:"enhancement_categories,omitempty"`
}

type signalRecord struct {
	SignalData      [][]float64 `json:"signal_data"`
	SampleFrequency float64     `json:"sample_frequency"`
	FirstSampleTime *float64    `json:"first_sample_time"`
	ChannelIDs      []string    `json:"channel_ids"`
}

// CheckPath validates that the given trial file path uses a supported
// format, by suffix. Only .json and .jsonl are supported.
func CheckPath(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonl":
		return nil
	default:
		return fmt.Errorf("unsupported trial file suffix on %q (use .json or .jsonl)", path)
	}
}

// Writer appends trials to a JSON Lines file. The file is opened and closed
// around each append, so a well-formed file is left on disk after every
// trial and readers can run concurrently with the writer.
type Writer struct {
	path string
}

// NewWriter creates a writer for the given path, after checking the suffix.
func NewWriter(path string) (*Writer, error) {
	if err := CheckPath(path); err != nil {
		return nil, err
	}
	return &Writer{path: path}, nil
}

// Path returns the trial file path.
func (w *Writer) Path() string {
	return w.path
}

// CreateEmpty truncates or creates the trial file, so a run starts from an
// empty file rather than appending to a previous run's trials.
func (w *Writer) CreateEmpty() error {
	file, err := os.Create(w.path)
	if err != nil {
		return err
	}
	return file.Close()
}

// AppendTrial writes one trial to the end of the file.
func (w *Writer) AppendTrial(t *trial.Trial) error {
	line, err := sonic.Marshal(dumpTrial(t))
	if err != nil {
		return fmt.Errorf("failed to encode trial: %w", err)
	}
	file, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.Write(append(line, '\n')); err != nil {
		return err
	}
	return nil
}

// ReadAll reads every trial from a JSON Lines trial file, in order.
func ReadAll(path string) ([]*trial.Trial, error) {
	var trials []*trial.Trial
	err := ReadEach(path, func(t *trial.Trial) error {
		trials = append(trials, t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return trials, nil
}

// ReadEach streams trials from a JSON Lines trial file, calling visit for
// each one in order. A visit error stops the scan and is returned.
func ReadEach(path string, visit func(t *trial.Trial) error) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	// Trials with signal data can produce long lines.
	scanner.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var record trialRecord
		if err := sonic.Unmarshal(line, &record); err != nil {
			return fmt.Errorf("trial file %s line %d: %w", path, lineNum, err)
		}
		if err := visit(loadTrial(&record)); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func dumpTrial(t *trial.Trial) *trialRecord {
	record := &trialRecord{
		StartTime: t.StartTime,
		EndTime:   t.EndTime,
		WrtTime:   t.WrtTime,
	}
	if len(t.EventLists) > 0 {
		record.NumericEvents = make(map[string][][]float64, len(t.EventLists))
		for name, events := range t.EventLists {
			record.NumericEvents[name] = events.Rows()
		}
	}
	if len(t.Signals) > 0 {
		record.Signals = make(map[string]signalRecord, len(t.Signals))
		for name, chunk := range t.Signals {
			signal := signalRecord{
				SignalData:      chunk.Samples(),
				SampleFrequency: chunk.SampleFrequency(),
				ChannelIDs:      chunk.ChannelIDs(),
			}
			if first, ok := chunk.FirstSampleTime(); ok {
				signal.FirstSampleTime = model.Time(first)
			}
			record.Signals[name] = signal
		}
	}
	if len(t.Enhancements) > 0 {
		record.Enhancements = t.Enhancements
	}
	if len(t.EnhancementCategories) > 0 {
		record.EnhancementCategories = t.EnhancementCategories
	}
	return record
}

func loadTrial(record *trialRecord) *trial.Trial {
	t := trial.NewTrial(record.StartTime, record.EndTime)
	t.WrtTime = record.WrtTime
	for name, rows := range record.NumericEvents {
		t.EventLists[name] = model.NewEventList(rows)
	}
	for name, signal := range record.Signals {
		if signal.FirstSampleTime != nil {
			t.Signals[name] = model.NewSignalChunk(
				signal.SignalData, signal.SampleFrequency, *signal.FirstSampleTime, signal.ChannelIDs)
		} else {
			t.Signals[name] = model.NewEmptySignalChunk(signal.SampleFrequency, signal.ChannelIDs)
		}
	}
	if record.Enhancements != nil {
		t.Enhancements = record.Enhancements
	}
	if record.EnhancementCategories != nil {
		t.EnhancementCategories = record.EnhancementCategories
	}
	return t
}
