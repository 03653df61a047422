// Package reader consumes data from raw sources and converts it to buffer
// data, then routes each read increment into named buffers with clock sync
// bookkeeping along the way.
package reader

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/penwyp/go-trial-monitor/internal/core/model"
)

// ErrExhausted is the sentinel a reader returns from ReadNext when its source
// has ended in an orderly way, like reaching the end of a file. Any other
// error from ReadNext is a source fault.
var ErrExhausted = errors.New("reader source exhausted")

// Reader is the contract for consuming data from an arbitrary source and
// converting it to buffer data types.
//
// Implementations encapsulate how to connect to a source and keep internal
// state like file handles and offsets. ReadNext must not block: it reads or
// polls once and returns (nil, nil) when no data is available yet, so that
// multiple readers can be interleaved on one goroutine.
type Reader interface {
	// Open connects to the data source and acquires related resources.
	Open() error

	// Close releases resources acquired by Open.
	Close() error

	// Initial returns the result names this reader will produce, each with
	// an empty value of the buffer data type it will use. It is called
	// before Open, so downstream buffers can be shaped ahead of reading.
	Initial() map[string]model.BufferData

	// ReadNext consumes one increment of available data. It returns
	// (nil, nil) when nothing is available yet, ErrExhausted at the orderly
	// end of the source, and any other error on a source fault.
	ReadNext() (map[string]model.BufferData, error)
}

// FactoryContext carries pipeline services a reader factory may need, beyond
// its own args.
type FactoryContext struct {
	// FindFile resolves a possibly-relative file path against the
	// configured search path.
	FindFile func(path string) (string, error)
}

// Factory builds a reader from its configured args.
type Factory func(args map[string]any, ctx FactoryContext) (Reader, error)

var (
	factoryMu sync.RWMutex
	factories = make(map[string]Factory)
)

// RegisterFactory adds a reader class to the registry, so configuration
// files can name it.
func RegisterFactory(name string, factory Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[name] = factory
}

// NewReader builds a reader by registered class name.
func NewReader(name string, args map[string]any, ctx FactoryContext) (Reader, error) {
	factoryMu.RLock()
	factory, ok := factories[name]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown reader class %q (registered: %v)", name, FactoryNames())
	}
	return factory(args, ctx)
}

// FactoryNames returns the registered reader class names, sorted.
func FactoryNames() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func decodeArgs(args map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(args)
}

func resolvePath(path string, ctx FactoryContext) (string, error) {
	if ctx.FindFile == nil {
		return path, nil
	}
	return ctx.FindFile(path)
}
