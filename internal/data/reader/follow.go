package reader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/penwyp/go-trial-monitor/internal/core/model"
	"github.com/penwyp/go-trial-monitor/internal/util"
)

func init() {
	RegisterFactory("csv_events_following", newFollowingEventReader)
}

// FollowingEventReader reads numeric events from a csv file that another
// process is still appending to, as during a live acquisition session. It
// tails the file: at end of file it keeps watching for appended lines instead
// of reporting exhaustion, and only gives up after the file has been idle for
// a configured window.
type FollowingEventReader struct {
	path        string
	resultName  string
	idleTimeout time.Duration
	now         func() time.Time

	file    *os.File
	reader  *bufio.Reader
	watcher *fsnotify.Watcher
	pending strings.Builder
	lineNum int

	lastActivity time.Time
}

type followingEventOptions struct {
	CsvFile     string  `mapstructure:"csv_file"`
	ResultName  string  `mapstructure:"result_name"`
	IdleSeconds float64 `mapstructure:"idle_seconds"`
}

func newFollowingEventReader(args map[string]any, ctx FactoryContext) (Reader, error) {
	options := followingEventOptions{ResultName: "events", IdleSeconds: 10.0}
	if err := decodeArgs(args, &options); err != nil {
		return nil, err
	}
	if options.CsvFile == "" {
		return nil, fmt.Errorf("csv_events_following reader requires a csv_file")
	}
	if options.IdleSeconds <= 0 {
		return nil, fmt.Errorf("csv_events_following idle_seconds must be positive, got %f", options.IdleSeconds)
	}
	path, err := resolvePath(options.CsvFile, ctx)
	if err != nil {
		return nil, err
	}
	return &FollowingEventReader{
		path:        path,
		resultName:  options.ResultName,
		idleTimeout: time.Duration(options.IdleSeconds * float64(time.Second)),
		now:         time.Now,
	}, nil
}

// Path returns the csv file this reader tails.
func (r *FollowingEventReader) Path() string {
	return r.path
}

// Open implements Reader, opening the file and starting a watcher on it so
// appends reset the idle clock.
func (r *FollowingEventReader) Open() error {
	file, err := os.Open(r.path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		file.Close()
		return err
	}
	if err := watcher.Add(r.path); err != nil {
		watcher.Close()
		file.Close()
		return err
	}
	r.file = file
	r.reader = bufio.NewReader(file)
	r.watcher = watcher
	r.pending.Reset()
	r.lineNum = 0
	r.lastActivity = r.now()
	return nil
}

// Close implements Reader.
func (r *FollowingEventReader) Close() error {
	r.reader = nil
	if r.watcher != nil {
		r.watcher.Close()
		r.watcher = nil
	}
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Initial implements Reader. The file may still be empty when following
// starts, in which case events default to one value each.
func (r *FollowingEventReader) Initial() map[string]model.BufferData {
	columnCount := len(peekAtCsv(r.path))
	if columnCount == 0 {
		columnCount = 2
	}
	return map[string]model.BufferData{
		r.resultName: model.NewEmptyEventList(columnCount - 1),
	}
}

// ReadNext implements Reader. It consumes at most one complete line per
// call. With no complete line available it reports nothing-yet while the
// file is still active, and ErrExhausted once the idle window passes with no
// appends.
func (r *FollowingEventReader) ReadNext() (map[string]model.BufferData, error) {
	if r.reader == nil {
		return nil, fmt.Errorf("csv_events_following reader is not open")
	}

	line, complete, err := r.nextLine()
	if err != nil {
		return nil, err
	}
	if !complete {
		if r.drainWatcher() {
			r.lastActivity = r.now()
		}
		if r.now().Sub(r.lastActivity) > r.idleTimeout {
			util.LogInfof("Followed CSV %s idle for %v, treating as ended.", r.path, r.idleTimeout)
			return nil, ErrExhausted
		}
		return nil, nil
	}

	r.lastActivity = r.now()
	r.lineNum++
	row, ok := parseNumericLine(line)
	if !ok {
		util.LogInfof("Skipping CSV %s line %d %q because it is not numeric", r.path, r.lineNum, line)
		return nil, nil
	}
	return map[string]model.BufferData{
		r.resultName: model.NewEventList([][]float64{row}),
	}, nil
}

// nextLine tries to read one newline-terminated line, carrying a partial
// line across calls while the writer is mid-append.
func (r *FollowingEventReader) nextLine() (string, bool, error) {
	text, err := r.reader.ReadString('\n')
	r.pending.WriteString(text)
	if err == io.EOF {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	line := strings.TrimRight(r.pending.String(), "\r\n")
	r.pending.Reset()
	return line, true, nil
}

// drainWatcher consumes any queued filesystem events without blocking, and
// reports whether the file saw writes.
func (r *FollowingEventReader) drainWatcher() bool {
	sawActivity := false
	for {
		select {
		case event, ok := <-r.watcher.Events:
			if !ok {
				return sawActivity
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
				sawActivity = true
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return sawActivity
			}
			util.LogErrorf("File monitoring error: %v", err)
		default:
			return sawActivity
		}
	}
}
