package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleExperimentYaml = `
experiment:
  name: demo_session
  lab: smith_lab

readers:
  start_reader:
    class: csv_events
    args:
      csv_file: start.csv
    sync:
      is_reference: true
      reader_result_name: events
      event_value: 1111
    extra_buffers:
      wrt:
        reader_result_name: events
        transformers:
          - class: filter_range
            args:
              min: 42
              max: 43
  signal_reader:
    class: csv_signals
    args:
      csv_file: signals.csv
      sample_frequency: 10
    empty_reads_allowed: 5
    simulate_delay: true

trials:
  start_buffer: events
  start_value: 1010
  wrt_buffer: wrt
  wrt_value: 42
  trial_start_time: 2.5
  trial_count: 7
  enhancers:
    - class: trial_duration
    - class: expression
      args:
        expression: duration > 1
        value_name: long_trial
      when: duration != 0
`

func writeExperiment(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "experiment.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadExperiment(t *testing.T) {
	path := writeExperiment(t, sampleExperimentYaml)
	experiment, err := LoadExperiment(path, NewFileFinder(nil))
	require.NoError(t, err)

	assert.Equal(t, "demo_session", experiment.Experiment["name"])

	require.Contains(t, experiment.Readers, "start_reader")
	startReader := experiment.Readers["start_reader"]
	assert.Equal(t, "csv_events", startReader.Class)
	assert.Equal(t, "start.csv", startReader.Args["csv_file"])
	require.NotNil(t, startReader.Sync)
	assert.True(t, startReader.Sync.IsReference)
	assert.Equal(t, 1111.0, startReader.Sync.EventValue)
	assert.Equal(t, DefaultEmptyReadsAllowed, startReader.EmptyReadsAllowedOrDefault())

	require.Contains(t, startReader.ExtraBuffers, "wrt")
	wrtBuffer := startReader.ExtraBuffers["wrt"]
	assert.Equal(t, "events", wrtBuffer.ReaderResultName)
	require.Len(t, wrtBuffer.Transformers, 1)
	assert.Equal(t, "filter_range", wrtBuffer.Transformers[0].Class)

	signalReader := experiment.Readers["signal_reader"]
	assert.Equal(t, 5, signalReader.EmptyReadsAllowedOrDefault())
	assert.True(t, signalReader.SimulateDelay)

	assert.Equal(t, "events", experiment.Trials.StartBuffer)
	assert.Equal(t, 1010.0, experiment.Trials.StartValue)
	assert.Equal(t, "wrt", experiment.Trials.WrtBuffer)
	assert.Equal(t, 2.5, experiment.Trials.TrialStartTime)
	assert.Equal(t, 7, experiment.Trials.TrialCount)
	require.Len(t, experiment.Trials.Enhancers, 2)
	assert.Equal(t, "duration != 0", experiment.Trials.Enhancers[1].When)
}

func TestLoadExperimentDefaults(t *testing.T) {
	path := writeExperiment(t, `
readers:
  r:
    class: csv_events
trials: {}
`)
	experiment, err := LoadExperiment(path, NewFileFinder(nil))
	require.NoError(t, err)
	assert.Equal(t, "start", experiment.Trials.StartBuffer)
	assert.Equal(t, "wrt", experiment.Trials.WrtBuffer)
}

func TestLoadExperimentValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"no readers", "trials: {}\n"},
		{"reader without class", "readers:\n  r: {}\n"},
		{"two reference clocks", `
readers:
  a:
    class: csv_events
    sync: {is_reference: true, reader_result_name: events}
  b:
    class: csv_events
    sync: {is_reference: true, reader_result_name: events}
`},
		{"enhancer without class", `
readers:
  r:
    class: csv_events
trials:
  enhancers:
    - args: {}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeExperiment(t, tt.yaml)
			_, err := LoadExperiment(path, NewFileFinder(nil))
			assert.Error(t, err)
		})
	}
}

func TestLoadExperimentMissingFile(t *testing.T) {
	_, err := LoadExperiment(filepath.Join(t.TempDir(), "nope.yaml"), NewFileFinder(nil))
	assert.Error(t, err)
}

func TestApplyReaderOverrides(t *testing.T) {
	path := writeExperiment(t, sampleExperimentYaml)
	experiment, err := LoadExperiment(path, NewFileFinder(nil))
	require.NoError(t, err)

	err = experiment.ApplyReaderOverrides([]string{"start_reader.csv_file=real_data.csv"})
	require.NoError(t, err)
	assert.Equal(t, "real_data.csv", experiment.Readers["start_reader"].Args["csv_file"])

	// Overrides can set args the config never mentioned.
	err = experiment.ApplyReaderOverrides([]string{"signal_reader.result_name=lfp"})
	require.NoError(t, err)
	assert.Equal(t, "lfp", experiment.Readers["signal_reader"].Args["result_name"])
}

func TestApplyReaderOverridesErrors(t *testing.T) {
	path := writeExperiment(t, sampleExperimentYaml)
	experiment, err := LoadExperiment(path, NewFileFinder(nil))
	require.NoError(t, err)

	assert.Error(t, experiment.ApplyReaderOverrides([]string{"no_dot_or_equals"}))
	assert.Error(t, experiment.ApplyReaderOverrides([]string{"start_reader.no_equals"}))
	assert.Error(t, experiment.ApplyReaderOverrides([]string{"unknown_reader.a=b"}))
}

func TestLoadSubject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subject.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
subject:
  id: M123
  species: macaque
`), 0o644))

	subject, err := LoadSubject(path, NewFileFinder(nil))
	require.NoError(t, err)
	assert.Equal(t, "M123", subject["id"])

	empty, err := LoadSubject("", NewFileFinder(nil))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFileFinderSearchPath(t *testing.T) {
	dir := t.TempDir()
	nested := filepath.Join(dir, "configs")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	target := filepath.Join(nested, "rules.csv")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))

	finder := NewFileFinder([]string{filepath.Join(dir, "missing"), nested})

	// Relative names resolve against the first matching prefix.
	found, err := finder.Find("rules.csv")
	require.NoError(t, err)
	assert.Equal(t, target, found)

	// Absolute paths pass through.
	found, err = finder.Find(target)
	require.NoError(t, err)
	assert.Equal(t, target, found)

	// Unmatched names come back unchanged, useful for output paths.
	found, err = finder.Find("new_output.jsonl")
	require.NoError(t, err)
	assert.Equal(t, "new_output.jsonl", found)
}

func TestFileFinderExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	finder := NewFileFinder(nil)
	found, err := finder.Find("~/data.csv")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data.csv"), found)
}
