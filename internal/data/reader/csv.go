package reader

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/penwyp/go-trial-monitor/internal/core/model"
	"github.com/penwyp/go-trial-monitor/internal/util"
)

func init() {
	RegisterFactory("csv_events", newCsvEventReader)
	RegisterFactory("csv_signals", newCsvSignalReader)
}

// parseNumericLine splits one csv line into float values. It returns false
// for lines with any non-numeric field, like headers and comments.
func parseNumericLine(line string) ([]float64, bool) {
	fields := strings.Split(line, ",")
	values := make([]float64, len(fields))
	for i, field := range fields {
		value, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return nil, false
		}
		values[i] = value
	}
	return values, true
}

// peekAtCsv reads the first line of a csv file, for shape discovery before
// reading begins.
func peekAtCsv(path string) []string {
	file, err := os.Open(path)
	if err != nil {
		util.LogErrorf("Unable to peek at CSV file %s: %v", path, err)
		return nil
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	if !scanner.Scan() {
		return nil
	}
	fields := strings.Split(scanner.Text(), ",")
	for i, field := range fields {
		fields[i] = strings.TrimSpace(field)
	}
	return fields
}

// CsvEventReader reads numeric events from a csv of numbers: one event per
// line, [timestamp, value...]. Lines with non-numeric values are skipped.
// Each ReadNext consumes one line, so playback stays incremental.
type CsvEventReader struct {
	path       string
	resultName string

	file    *os.File
	scanner *bufio.Scanner
	lineNum int
}

type csvEventOptions struct {
	CsvFile    string `mapstructure:"csv_file"`
	ResultName string `mapstructure:"result_name"`
}

func newCsvEventReader(args map[string]any, ctx FactoryContext) (Reader, error) {
	options := csvEventOptions{ResultName: "events"}
	if err := decodeArgs(args, &options); err != nil {
		return nil, err
	}
	if options.CsvFile == "" {
		return nil, fmt.Errorf("csv_events reader requires a csv_file")
	}
	path, err := resolvePath(options.CsvFile, ctx)
	if err != nil {
		return nil, err
	}
	return &CsvEventReader{path: path, resultName: options.ResultName}, nil
}

// Path returns the csv file this reader consumes.
func (r *CsvEventReader) Path() string {
	return r.path
}

// Open implements Reader.
func (r *CsvEventReader) Open() error {
	file, err := os.Open(r.path)
	if err != nil {
		return err
	}
	r.file = file
	r.scanner = bufio.NewScanner(file)
	r.lineNum = 0
	return nil
}

// Close implements Reader.
func (r *CsvEventReader) Close() error {
	r.scanner = nil
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Initial implements Reader, peeking at the first line to learn how many
// values each event carries.
func (r *CsvEventReader) Initial() map[string]model.BufferData {
	columnCount := len(peekAtCsv(r.path))
	if columnCount == 0 {
		columnCount = 2
		util.LogWarnf("Using default column count for CSV events: %d", columnCount)
	}
	return map[string]model.BufferData{
		r.resultName: model.NewEmptyEventList(columnCount - 1),
	}
}

// ReadNext implements Reader, consuming one csv line per call.
func (r *CsvEventReader) ReadNext() (map[string]model.BufferData, error) {
	if r.scanner == nil {
		return nil, fmt.Errorf("csv_events reader is not open")
	}
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return nil, err
		}
		return nil, ErrExhausted
	}
	r.lineNum++
	line := r.scanner.Text()
	row, ok := parseNumericLine(line)
	if !ok {
		util.LogInfof("Skipping CSV %s line %d %q because it is not numeric", r.path, r.lineNum, line)
		return nil, nil
	}
	return map[string]model.BufferData{
		r.resultName: model.NewEventList([][]float64{row}),
	}, nil
}

// CsvSignalReader reads sampled signals from a csv of numbers: a header line
// of channel ids, then one sample per line. Samples are delivered in chunks
// of up to linesPerChunk, with sample times assigned from a running counter
// at the configured sample frequency.
type CsvSignalReader struct {
	path            string
	sampleFrequency float64
	nextSampleTime  float64
	linesPerChunk   int
	resultName      string
	channelIDs      []string

	file    *os.File
	scanner *bufio.Scanner
	lineNum int
}

type csvSignalOptions struct {
	CsvFile         string  `mapstructure:"csv_file"`
	SampleFrequency float64 `mapstructure:"sample_frequency"`
	FirstSampleTime float64 `mapstructure:"first_sample_time"`
	LinesPerChunk   int     `mapstructure:"lines_per_chunk"`
	ResultName      string  `mapstructure:"result_name"`
}

func newCsvSignalReader(args map[string]any, ctx FactoryContext) (Reader, error) {
	options := csvSignalOptions{
		SampleFrequency: 1.0,
		LinesPerChunk:   10,
		ResultName:      "samples",
	}
	if err := decodeArgs(args, &options); err != nil {
		return nil, err
	}
	if options.CsvFile == "" {
		return nil, fmt.Errorf("csv_signals reader requires a csv_file")
	}
	if options.SampleFrequency <= 0 {
		return nil, fmt.Errorf("csv_signals sample_frequency must be positive, got %f", options.SampleFrequency)
	}
	if options.LinesPerChunk < 1 {
		return nil, fmt.Errorf("csv_signals lines_per_chunk must be at least 1, got %d", options.LinesPerChunk)
	}
	path, err := resolvePath(options.CsvFile, ctx)
	if err != nil {
		return nil, err
	}
	return &CsvSignalReader{
		path:            path,
		sampleFrequency: options.SampleFrequency,
		nextSampleTime:  options.FirstSampleTime,
		linesPerChunk:   options.LinesPerChunk,
		resultName:      options.ResultName,
	}, nil
}

// Path returns the csv file this reader consumes.
func (r *CsvSignalReader) Path() string {
	return r.path
}

// Open implements Reader.
func (r *CsvSignalReader) Open() error {
	if r.channelIDs == nil {
		r.channelIDs = peekAtCsv(r.path)
	}
	file, err := os.Open(r.path)
	if err != nil {
		return err
	}
	r.file = file
	r.scanner = bufio.NewScanner(file)
	r.lineNum = 0
	return nil
}

// Close implements Reader.
func (r *CsvSignalReader) Close() error {
	r.scanner = nil
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Initial implements Reader, peeking at the header line to learn the channel
// ids.
func (r *CsvSignalReader) Initial() map[string]model.BufferData {
	r.channelIDs = peekAtCsv(r.path)
	return map[string]model.BufferData{
		r.resultName: model.NewEmptySignalChunk(r.sampleFrequency, r.channelIDs),
	}
}

// ReadNext implements Reader, consuming up to linesPerChunk sample lines per
// call. The header and other non-numeric lines are skipped.
func (r *CsvSignalReader) ReadNext() (map[string]model.BufferData, error) {
	if r.scanner == nil {
		return nil, fmt.Errorf("csv_signals reader is not open")
	}
	var chunk [][]float64
	for len(chunk) < r.linesPerChunk {
		if !r.scanner.Scan() {
			if err := r.scanner.Err(); err != nil {
				return nil, err
			}
			// End of file: still deliver the last, partial chunk below.
			break
		}
		r.lineNum++
		line := r.scanner.Text()
		row, ok := parseNumericLine(line)
		if !ok {
			util.LogInfof("Skipping CSV %s line %d %q because it is not numeric", r.path, r.lineNum, line)
			continue
		}
		chunk = append(chunk, row)
	}

	if len(chunk) == 0 {
		return nil, ErrExhausted
	}
	signalChunk := model.NewSignalChunk(chunk, r.sampleFrequency, r.nextSampleTime, r.channelIDs)
	r.nextSampleTime += float64(len(chunk)) / r.sampleFrequency
	return map[string]model.BufferData{r.resultName: signalChunk}, nil
}
