package trial

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"
	"sync"

	"github.com/mitchellh/mapstructure"

	"github.com/penwyp/go-trial-monitor/internal/core/model"
)

// FactoryContext carries pipeline services an enhancer factory may need,
// beyond its own args.
type FactoryContext struct {
	// FindFile resolves a possibly-relative file path against the
	// configured search path.
	FindFile func(path string) (string, error)
}

// Factory builds an enhancer from its configured args.
type Factory func(args map[string]any, ctx FactoryContext) (Enhancer, error)

var (
	factoryMu sync.RWMutex
	factories = make(map[string]Factory)
)

// RegisterFactory adds an enhancer class to the registry, so configuration
// files can name it. Standard enhancers self-register; callers may add their
// own before loading configuration.
func RegisterFactory(name string, factory Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[name] = factory
}

// NewEnhancer builds an enhancer by registered class name.
func NewEnhancer(name string, args map[string]any, ctx FactoryContext) (Enhancer, error) {
	factoryMu.RLock()
	factory, ok := factories[name]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown enhancer class %q (registered: %v)", name, FactoryNames())
	}
	return factory(args, ctx)
}

// FactoryNames returns the registered enhancer class names, sorted.
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

func init() {
	RegisterFactory("trial_duration", newDurationEnhancer)
	RegisterFactory("event_times", newEventTimesEnhancer)
	RegisterFactory("paired_codes", newPairedCodesEnhancer)
	RegisterFactory("expression", newExpressionEnhancer)
	RegisterFactory("signal_smoother", newSignalSmootherEnhancer)
}

// decodeArgs decodes a config args map into an options struct, with weak
// typing so YAML scalars coerce naturally (a single string for a string
// list, an int for a float, and so on).
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

// DurationEnhancer adds each trial's duration as a "value" enhancement. The
// open-ended final trial gets the configured default, nil by default.
type DurationEnhancer struct {
	DefaultDuration *float64
}

type durationOptions struct {
	DefaultDuration *float64 `mapstructure:"default_duration"`
}

func newDurationEnhancer(args map[string]any, _ FactoryContext) (Enhancer, error) {
	var options durationOptions
	if err := decodeArgs(args, &options); err != nil {
		return nil, err
	}
	return &DurationEnhancer{DefaultDuration: options.DefaultDuration}, nil
}

func (e *DurationEnhancer) Enhance(trial *Trial, trialNumber int, experimentInfo, subjectInfo map[string]any) error {
	if trial.EndTime == nil {
		if e.DefaultDuration != nil {
			trial.AddEnhancement("duration", *e.DefaultDuration, "value")
		} else {
			trial.AddEnhancement("duration", nil, "value")
		}
		return nil
	}
	trial.AddEnhancement("duration", *trial.EndTime-trial.StartTime, "value")
	return nil
}

// csvRule is one row of a rules csv, keyed by column name.
type csvRule map[string]string

// readRulesCsv reads one or more rules csv files, keeping rows whose "type"
// column matches one of ruleTypes. Files must have a header row; extra
// columns (like a comment column) are carried through and ignored by
// callers.
func readRulesCsv(paths []string, ruleTypes []string, ctx FactoryContext) ([]csvRule, error) {
	typeWanted := make(map[string]bool, len(ruleTypes))
	for _, ruleType := range ruleTypes {
		typeWanted[ruleType] = true
	}

	var rules []csvRule
	for _, path := range paths {
		resolved := path
		if ctx.FindFile != nil {
			found, err := ctx.FindFile(path)
			if err != nil {
				return nil, fmt.Errorf("rules csv %s: %w", path, err)
			}
			resolved = found
		}
		file, err := os.Open(resolved)
		if err != nil {
			return nil, fmt.Errorf("rules csv %s: %w", path, err)
		}
		reader := csv.NewReader(file)
		reader.TrimLeadingSpace = true
		records, err := reader.ReadAll()
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("rules csv %s: %w", path, err)
		}
		if len(records) == 0 {
			continue
		}
		header := records[0]
		for _, record := range records[1:] {
			rule := make(csvRule, len(header))
			for i, column := range header {
				if i < len(record) {
					rule[column] = record[i]
				}
			}
			if typeWanted[rule["type"]] {
				rules = append(rules, rule)
			}
		}
	}
	return rules, nil
}

func (r csvRule) float(column string) (float64, error) {
	value, err := strconv.ParseFloat(r[column], 64)
	if err != nil {
		return 0, fmt.Errorf("rules csv column %q: %w", column, err)
	}
	return value, nil
}

// eventTimesRule names the events with one particular numeric value.
type eventTimesRule struct {
	Value    float64
	Name     string
	Category string
}

// EventTimesEnhancer records when named events occurred during each trial,
// as lists of trial-relative times. The rules csv maps event values to
// enhancement names; by default only rows of type "time" apply.
type EventTimesEnhancer struct {
	BufferName string
	ValueIndex int
	Rules      []eventTimesRule
}

type eventTimesOptions struct {
	BufferName string   `mapstructure:"buffer_name"`
	RulesCsv   []string `mapstructure:"rules_csv"`
	ValueIndex int      `mapstructure:"value_index"`
	RuleTypes  []string `mapstructure:"rule_types"`
}

func newEventTimesEnhancer(args map[string]any, ctx FactoryContext) (Enhancer, error) {
	options := eventTimesOptions{RuleTypes: []string{"time"}}
	if err := decodeArgs(args, &options); err != nil {
		return nil, err
	}
	if options.BufferName == "" {
		return nil, fmt.Errorf("event_times enhancer requires a buffer_name")
	}
	rows, err := readRulesCsv(options.RulesCsv, options.RuleTypes, ctx)
	if err != nil {
		return nil, err
	}
	rules := make([]eventTimesRule, 0, len(rows))
	for _, row := range rows {
		value, err := row.float("value")
		if err != nil {
			return nil, err
		}
		rules = append(rules, eventTimesRule{Value: value, Name: row["name"], Category: row["type"]})
	}
	return &EventTimesEnhancer{
		BufferName: options.BufferName,
		ValueIndex: options.ValueIndex,
		Rules:      rules,
	}, nil
}

func (e *EventTimesEnhancer) Enhance(trial *Trial, trialNumber int, experimentInfo, subjectInfo map[string]any) error {
	events, ok := trial.EventLists[e.BufferName]
	if !ok {
		return fmt.Errorf("trial has no event list named %q", e.BufferName)
	}
	for _, rule := range e.Rules {
		times, err := events.TimesOf(rule.Value, e.ValueIndex, nil, nil)
		if err != nil {
			return err
		}
		if times == nil {
			times = []float64{}
		}
		trial.AddEnhancement(rule.Name, times, rule.Category)
	}
	return nil
}

// pairedCodesRule describes one property announced by a marker value and
// carried by a following value event.
type pairedCodesRule struct {
	Value    float64
	Name     string
	Category string
	Base     float64
	Min      float64
	Max      float64
	Scale    float64
}

// PairedCodesEnhancer looks for pairs of numeric events that represent
// property-value pairs, as produced by digital code rigs: a marker event
// announces a property, and the next event in a configured value range
// carries its value, offset by a base and scaled to a fixed precision.
type PairedCodesEnhancer struct {
	BufferName string
	ValueIndex int
	Rules      []pairedCodesRule
}

type pairedCodesOptions struct {
	BufferName string   `mapstructure:"buffer_name"`
	RulesCsv   []string `mapstructure:"rules_csv"`
	ValueIndex int      `mapstructure:"value_index"`
	RuleTypes  []string `mapstructure:"rule_types"`
}

func newPairedCodesEnhancer(args map[string]any, ctx FactoryContext) (Enhancer, error) {
	options := pairedCodesOptions{RuleTypes: []string{"id", "value"}}
	if err := decodeArgs(args, &options); err != nil {
		return nil, err
	}
	if options.BufferName == "" {
		return nil, fmt.Errorf("paired_codes enhancer requires a buffer_name")
	}
	rows, err := readRulesCsv(options.RulesCsv, options.RuleTypes, ctx)
	if err != nil {
		return nil, err
	}
	rules := make([]pairedCodesRule, 0, len(rows))
	for _, row := range rows {
		rule := pairedCodesRule{Name: row["name"], Category: row["type"]}
		var parseErr error
		for column, target := range map[string]*float64{
			"value": &rule.Value,
			"base":  &rule.Base,
			"min":   &rule.Min,
			"max":   &rule.Max,
			"scale": &rule.Scale,
		} {
			if *target, parseErr = row.float(column); parseErr != nil {
				return nil, parseErr
			}
		}
		rules = append(rules, rule)
	}
	return &PairedCodesEnhancer{
		BufferName: options.BufferName,
		ValueIndex: options.ValueIndex,
		Rules:      rules,
	}, nil
}

func (e *PairedCodesEnhancer) Enhance(trial *Trial, trialNumber int, experimentInfo, subjectInfo map[string]any) error {
	events, ok := trial.EventLists[e.BufferName]
	if !ok {
		return fmt.Errorf("trial has no event list named %q", e.BufferName)
	}
	for _, rule := range e.Rules {
		propertyTimes, err := events.TimesOf(rule.Value, e.ValueIndex, nil, nil)
		if err != nil {
			return err
		}
		if len(propertyTimes) == 0 {
			continue
		}
		valueList, err := events.CopyValueRange(model.Time(rule.Min), model.Time(rule.Max), e.ValueIndex)
		if err != nil {
			return err
		}
		if err := valueList.ApplyOffsetThenGain(-rule.Base, rule.Scale, e.ValueIndex); err != nil {
			return err
		}
		for _, propertyTime := range propertyTimes {
			// For each property event, pick the soonest value event that
			// follows.
			values, err := valueList.Values(e.ValueIndex, model.Time(propertyTime), nil)
			if err != nil {
				return err
			}
			if len(values) > 0 {
				trial.AddEnhancement(rule.Name, values[0], rule.Category)
			}
		}
	}
	return nil
}

// SignalSmootherEnhancer smooths one channel of a named trial signal in
// place, using a uniform moving-average kernel. Trials without the named
// signal, or with fewer samples than the kernel, are left alone.
type SignalSmootherEnhancer struct {
	BufferName string
	ChannelID  string
	KernelSize int
}

type signalSmootherOptions struct {
	BufferName string `mapstructure:"buffer_name"`
	ChannelID  string `mapstructure:"channel_id"`
	KernelSize int    `mapstructure:"kernel_size"`
}

func newSignalSmootherEnhancer(args map[string]any, _ FactoryContext) (Enhancer, error) {
	options := signalSmootherOptions{KernelSize: 10}
	if err := decodeArgs(args, &options); err != nil {
		return nil, err
	}
	if options.BufferName == "" {
		return nil, fmt.Errorf("signal_smoother enhancer requires a buffer_name")
	}
	if options.KernelSize < 1 {
		return nil, fmt.Errorf("signal_smoother kernel_size must be at least 1, got %d", options.KernelSize)
	}
	return &SignalSmootherEnhancer{
		BufferName: options.BufferName,
		ChannelID:  options.ChannelID,
		KernelSize: options.KernelSize,
	}, nil
}

func (e *SignalSmootherEnhancer) Enhance(trial *Trial, trialNumber int, experimentInfo, subjectInfo map[string]any) error {
	signal, ok := trial.Signals[e.BufferName]
	if !ok || signal.SampleCount() < e.KernelSize {
		return nil
	}

	channelID := e.ChannelID
	if channelID == "" {
		channelID = signal.ChannelIDs()[0]
	}
	values, err := signal.ChannelValues(channelID)
	if err != nil {
		return err
	}
	return signal.ReplaceChannelValues(channelID, movingAverage(values, e.KernelSize))
}

// movingAverage convolves values with a uniform kernel of the given size,
// keeping the output the same length as the input. Samples beyond either end
// count as zero, so the edges taper.
func movingAverage(values []float64, kernelSize int) []float64 {
	smoothed := make([]float64, len(values))
	offset := (kernelSize - 1) / 2
	for i := range values {
		sum := 0.0
		for j := i + offset - (kernelSize - 1); j <= i+offset; j++ {
			if j >= 0 && j < len(values) {
				sum += values[j]
			}
		}
		smoothed[i] = sum / float64(kernelSize)
	}
	return smoothed
}

// ExpressionEnhancer evaluates an expression over each trial's enhancements
// and stores the result as a new named enhancement.
type ExpressionEnhancer struct {
	Expression    *Expression
	ValueName     string
	ValueCategory string
}

type expressionOptions struct {
	Expression    string `mapstructure:"expression"`
	ValueName     string `mapstructure:"value_name"`
	ValueCategory string `mapstructure:"value_category"`
	DefaultValue  any    `mapstructure:"default_value"`
}

func newExpressionEnhancer(args map[string]any, _ FactoryContext) (Enhancer, error) {
	options := expressionOptions{ValueCategory: "value"}
	if err := decodeArgs(args, &options); err != nil {
		return nil, err
	}
	if options.ValueName == "" {
		return nil, fmt.Errorf("expression enhancer requires a value_name")
	}
	expression, err := NewExpression(options.Expression, options.DefaultValue)
	if err != nil {
		return nil, err
	}
	return &ExpressionEnhancer{
		Expression:    expression,
		ValueName:     options.ValueName,
		ValueCategory: options.ValueCategory,
	}, nil
}

func (e *ExpressionEnhancer) Enhance(trial *Trial, trialNumber int, experimentInfo, subjectInfo map[string]any) error {
	trial.AddEnhancement(e.ValueName, e.Expression.Evaluate(trial), e.ValueCategory)
	return nil
}
