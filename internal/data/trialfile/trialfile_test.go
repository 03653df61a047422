package trialfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/penwyp/go-trial-monitor/internal/core/model"
	"github.com/penwyp/go-trial-monitor/internal/core/trial"
)

func tempTrialFile(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "trials.jsonl")
}

func TestCheckPath(t *testing.T) {
	assert.NoError(t, CheckPath("trials.jsonl"))
	assert.NoError(t, CheckPath("trials.JSON"))
	assert.Error(t, CheckPath("trials.hdf5"))
	assert.Error(t, CheckPath("trials"))
}

func TestRoundTripMinimalTrial(t *testing.T) {
	path := tempTrialFile(t)
	writer, err := NewWriter(path)
	require.NoError(t, err)

	original := trial.NewTrial(1.0, model.Time(2.5))
	original.WrtTime = 1.5
	require.NoError(t, writer.AppendTrial(original))

	trials, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, trials, 1)

	assert.Equal(t, 1.0, trials[0].StartTime)
	require.NotNil(t, trials[0].EndTime)
	assert.Equal(t, 2.5, *trials[0].EndTime)
	assert.Equal(t, 1.5, trials[0].WrtTime)
	assert.Empty(t, trials[0].EventLists)
	assert.Empty(t, trials[0].Signals)
}

func TestRoundTripOpenEndedTrial(t *testing.T) {
	path := tempTrialFile(t)
	writer, err := NewWriter(path)
	require.NoError(t, err)

	require.NoError(t, writer.AppendTrial(trial.NewTrial(3.0, nil)))

	trials, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, trials, 1)
	assert.Nil(t, trials[0].EndTime)
}

func TestRoundTripFullTrial(t *testing.T) {
	path := tempTrialFile(t)
	writer, err := NewWriter(path)
	require.NoError(t, err)

	original := trial.NewTrial(0.0, model.Time(2.0))
	original.WrtTime = 0.5
	original.AddBufferData("spikes", model.NewEventList([][]float64{
		{-0.3, 7.0},
		{0.2, 8.0},
	}))
	original.AddBufferData("lfp", model.NewSignalChunk(
		[][]float64{{1.0, 10.0}, {2.0, 20.0}}, 1000.0, -0.5, []string{"ch0", "ch1"}))
	original.AddEnhancement("task", "memory_saccade", "id")
	original.AddEnhancement("fp_on", []float64{0.25}, "time")
	require.NoError(t, writer.AppendTrial(original))

	trials, err := ReadAll(path)
	require.NoError(t, err)
	require.Len(t, trials, 1)
	loaded := trials[0]

	require.Contains(t, loaded.EventLists, "spikes")
	assert.Equal(t, [][]float64{{-0.3, 7.0}, {0.2, 8.0}}, loaded.EventLists["spikes"].Rows())

	require.Contains(t, loaded.Signals, "lfp")
	chunk := loaded.Signals["lfp"]
	assert.Equal(t, [][]float64{{1.0, 10.0}, {2.0, 20.0}}, chunk.Samples())
	assert.Equal(t, 1000.0, chunk.SampleFrequency())
	first, ok := chunk.FirstSampleTime()
	require.True(t, ok)
	assert.Equal(t, -0.5, first)
	assert.Equal(t, []string{"ch0", "ch1"}, chunk.ChannelIDs())

	assert.Equal(t, "memory_saccade", loaded.GetEnhancement("task", nil))
	assert.Equal(t, []string{"task"}, loaded.EnhancementCategories["id"])
	assert.Equal(t, []string{"fp_on"}, loaded.EnhancementCategories["time"])

	// Enhancement lists come back as generic JSON values.
	assert.Equal(t, 0.25, loaded.GetOne("fp_on", nil, 0))
}

func TestAppendLeavesWellFormedFileEachTime(t *testing.T) {
	path := tempTrialFile(t)
	writer, err := NewWriter(path)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, writer.AppendTrial(trial.NewTrial(float64(i), model.Time(float64(i+1)))))

		// Readable between appends.
		trials, err := ReadAll(path)
		require.NoError(t, err)
		assert.Len(t, trials, i+1)
	}

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(content), "\n"), "one line per trial")
}

func TestCreateEmptyTruncates(t *testing.T) {
	path := tempTrialFile(t)
	writer, err := NewWriter(path)
	require.NoError(t, err)

	require.NoError(t, writer.AppendTrial(trial.NewTrial(0.0, nil)))
	require.NoError(t, writer.CreateEmpty())

	trials, err := ReadAll(path)
	require.NoError(t, err)
	assert.Empty(t, trials)
}

func TestReadEachStopsOnVisitError(t *testing.T) {
	path := tempTrialFile(t)
	writer, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, writer.AppendTrial(trial.NewTrial(0.0, nil)))
	require.NoError(t, writer.AppendTrial(trial.NewTrial(1.0, nil)))

	visited := 0
	err = ReadEach(path, func(tr *trial.Trial) error {
		visited++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, visited)
}

func TestReadAllRejectsMalformedLine(t *testing.T) {
	path := tempTrialFile(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json}\n"), 0o644))

	_, err := ReadAll(path)
	assert.Error(t, err)
}
