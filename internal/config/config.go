// Package config loads and validates the experiment and subject YAML files
// that describe a session: which readers to run, how to route and transform
// their results into buffers, how to sync clocks, and how to delimit,
// align, and enhance trials.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ClassConfig names a registered implementation class along with its args,
// as used for readers, transformers, and enhancers.
type ClassConfig struct {
	Class string         `mapstructure:"class"`
	Args  map[string]any `mapstructure:"args"`
}

// BufferConfig declares an extra buffer fed from one of a reader's results,
// optionally through a chain of transformers. Without an explicit
// reader_result_name the buffer reads from the result with its own name.
type BufferConfig struct {
	ReaderResultName string        `mapstructure:"reader_result_name"`
	Transformers     []ClassConfig `mapstructure:"transformers"`
}

// SyncSettings tells a reader how to find clock sync events in its results.
type SyncSettings struct {
	IsReference      bool    `mapstructure:"is_reference"`
	ReaderResultName string  `mapstructure:"reader_result_name"`
	EventValue       float64 `mapstructure:"event_value"`
	EventValueIndex  int     `mapstructure:"event_value_index"`

	// ReaderName lets a reader borrow sync info recorded by another
	// reader. Defaults to the reader's own name.
	ReaderName string `mapstructure:"reader_name"`
}

// ReaderConfig declares one reader: its class and args, extra buffers beyond
// the default pass-through routes, sync settings, and read-retry budget.
type ReaderConfig struct {
	Class             string                  `mapstructure:"class"`
	Args              map[string]any          `mapstructure:"args"`
	ExtraBuffers      map[string]BufferConfig `mapstructure:"extra_buffers"`
	Sync              *SyncSettings           `mapstructure:"sync"`
	EmptyReadsAllowed *int                    `mapstructure:"empty_reads_allowed"`

	// SimulateDelay opts this reader into wall-clock pacing when the run
	// allows delay simulation.
	SimulateDelay bool `mapstructure:"simulate_delay"`
}

// EnhancerConfig declares one per-trial enhancer, with an optional gate
// expression deciding per trial whether the enhancer runs.
type EnhancerConfig struct {
	Class string         `mapstructure:"class"`
	Args  map[string]any `mapstructure:"args"`
	When  string         `mapstructure:"when"`
}

// TrialsConfig declares how trials are delimited and aligned: which buffer
// and event value start each trial, which supply the wrt alignment time, and
// which enhancers run per trial.
type TrialsConfig struct {
	StartBuffer     string  `mapstructure:"start_buffer"`
	StartValue      float64 `mapstructure:"start_value"`
	StartValueIndex int     `mapstructure:"start_value_index"`

	WrtBuffer     string  `mapstructure:"wrt_buffer"`
	WrtValue      float64 `mapstructure:"wrt_value"`
	WrtValueIndex int     `mapstructure:"wrt_value_index"`

	// TrialStartTime is where delimiting begins on the start buffer's raw
	// clock. Start events at or before this time close no trial, so a
	// session can skip a warmup period at the head of its recordings.
	TrialStartTime float64 `mapstructure:"trial_start_time"`

	// TrialCount numbers the first delimited trial, for sessions resumed
	// partway through.
	TrialCount int `mapstructure:"trial_count"`

	Enhancers []EnhancerConfig `mapstructure:"enhancers"`
}

// Experiment is a whole loaded experiment file.
type Experiment struct {
	// Experiment holds free-form metadata about the experiment design,
	// passed through to enhancers and recorded alongside results.
	Experiment map[string]any `mapstructure:"experiment"`

	Readers map[string]ReaderConfig `mapstructure:"readers"`
	Trials  TrialsConfig            `mapstructure:"trials"`
}

// DefaultEmptyReadsAllowed is the read-retry budget used when a reader
// config does not set empty_reads_allowed.
const DefaultEmptyReadsAllowed = 3

// EmptyReadsAllowedOrDefault returns the reader's configured retry budget,
// or the default.
func (r ReaderConfig) EmptyReadsAllowedOrDefault() int {
	if r.EmptyReadsAllowed != nil {
		return *r.EmptyReadsAllowed
	}
	return DefaultEmptyReadsAllowed
}

// LoadExperiment reads and validates an experiment YAML file, located via
// the given finder.
func LoadExperiment(path string, finder *FileFinder) (*Experiment, error) {
	resolved, err := finder.Find(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(resolved)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read experiment file %s: %w", resolved, err)
	}
	var experiment Experiment
	if err := v.Unmarshal(&experiment); err != nil {
		return nil, fmt.Errorf("failed to parse experiment file %s: %w", resolved, err)
	}
	applyTrialsDefaults(&experiment.Trials)
	if err := experiment.Validate(); err != nil {
		return nil, fmt.Errorf("invalid experiment file %s: %w", resolved, err)
	}
	return &experiment, nil
}

func applyTrialsDefaults(trials *TrialsConfig) {
	if trials.StartBuffer == "" {
		trials.StartBuffer = "start"
	}
	if trials.WrtBuffer == "" {
		trials.WrtBuffer = "wrt"
	}
}

// LoadSubject reads a subject YAML file and returns the metadata under its
// "subject:" key. An empty path yields empty metadata.
func LoadSubject(path string, finder *FileFinder) (map[string]any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	resolved, err := finder.Find(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(resolved)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read subject file %s: %w", resolved, err)
	}
	subject := v.GetStringMap("subject")
	if subject == nil {
		subject = map[string]any{}
	}
	return subject, nil
}

// ApplyReaderOverrides applies command-line reader arg overrides of the form
// "reader_name.arg_name=value" on top of the loaded experiment, so one
// experiment design can run against different data files.
func (e *Experiment) ApplyReaderOverrides(overrides []string) error {
	for _, override := range overrides {
		readerName, assignment, found := strings.Cut(override, ".")
		if !found {
			return fmt.Errorf("invalid reader override %q (want reader_name.arg_name=value)", override)
		}
		argName, value, found := strings.Cut(assignment, "=")
		if !found {
			return fmt.Errorf("invalid reader override %q (want reader_name.arg_name=value)", override)
		}
		readerConfig, ok := e.Readers[readerName]
		if !ok {
			return fmt.Errorf("reader override %q names unknown reader %q", override, readerName)
		}
		if readerConfig.Args == nil {
			readerConfig.Args = make(map[string]any)
		}
		readerConfig.Args[argName] = value
		e.Readers[readerName] = readerConfig
	}
	return nil
}

// Validate checks the structural rules that do not require instantiating
// readers: every reader has a class, sync settings are self-consistent, and
// at most one reader claims the reference clock.
func (e *Experiment) Validate() error {
	if len(e.Readers) == 0 {
		return fmt.Errorf("experiment declares no readers")
	}
	referenceName := ""
	for name, readerConfig := range e.Readers {
		if readerConfig.Class == "" {
			return fmt.Errorf("reader %q has no class", name)
		}
		if readerConfig.Sync != nil {
			if readerConfig.Sync.IsReference {
				if referenceName != "" {
					return fmt.Errorf("readers %q and %q both claim the reference clock", referenceName, name)
				}
				referenceName = name
			}
			if readerConfig.Sync.ReaderResultName == "" && readerConfig.Sync.ReaderName == "" {
				return fmt.Errorf("reader %q sync settings name no result and no reader to borrow from", name)
			}
		}
		for bufferName, bufferConfig := range readerConfig.ExtraBuffers {
			for _, transformerConfig := range bufferConfig.Transformers {
				if transformerConfig.Class == "" {
					return fmt.Errorf("reader %q buffer %q has a transformer with no class", name, bufferName)
				}
			}
		}
	}
	for i, enhancerConfig := range e.Trials.Enhancers {
		if enhancerConfig.Class == "" {
			return fmt.Errorf("trials enhancer %d has no class", i)
		}
	}
	return nil
}
