// Package transform converts buffer data between the forms readers produce
// and the forms buffers want, along reader-to-buffer routes.
package transform

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/penwyp/go-trial-monitor/internal/core/model"
)

// Transformer converts one increment of buffer data. Implementations may
// mutate and return the given data or return a different instance; the
// caller always hands in a private copy and uses only the returned value.
type Transformer interface {
	Transform(data model.BufferData) (model.BufferData, error)
}

// Factory builds a transformer from its configured args.
type Factory func(args map[string]any) (Transformer, error)

var (
	factoryMu sync.RWMutex
	factories = make(map[string]Factory)
)

// RegisterFactory adds a transformer class to the registry, so configuration
// files can name it.
func RegisterFactory(name string, factory Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[name] = factory
}

// NewTransformer builds a transformer by registered class name.
func NewTransformer(name string, args map[string]any) (Transformer, error) {
	factoryMu.RLock()
	factory, ok := factories[name]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown transformer class %q (registered: %v)", name, FactoryNames())
	}
	return factory(args)
}

// FactoryNames returns the registered transformer class names, sorted.
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
