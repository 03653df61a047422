// Package pipeline assembles readers, buffers, routers, and trial components
// from a loaded experiment configuration, and drives the whole assembly to
// extract trials from data sources into a trial file.
package pipeline

import (
	"fmt"
	"sort"

	"github.com/penwyp/go-trial-monitor/internal/config"
	"github.com/penwyp/go-trial-monitor/internal/core/clocksync"
	"github.com/penwyp/go-trial-monitor/internal/core/model"
	"github.com/penwyp/go-trial-monitor/internal/core/trial"
	"github.com/penwyp/go-trial-monitor/internal/data/reader"
	"github.com/penwyp/go-trial-monitor/internal/data/transform"
	"github.com/penwyp/go-trial-monitor/internal/data/trialfile"
	"github.com/penwyp/go-trial-monitor/internal/util"
)

// Options adjusts how a pipeline is assembled from its configuration.
type Options struct {
	// AllowSimulateDelay lets readers that opt in via simulate_delay pace
	// their results against the wall clock, for demos and live-mode testing.
	AllowSimulateDelay bool

	// Finder resolves relative file paths for readers and enhancers. A nil
	// finder means paths resolve against the working directory only.
	Finder *config.FileFinder
}

// Pipeline holds everything needed for a run: the configured readers wrapped
// in routers, the buffers they fill, and the trial delimiter and extractor
// that consume the buffers.
type Pipeline struct {
	Experiment map[string]any
	Subject    map[string]any

	Routers      map[string]*reader.Router
	NamedBuffers map[string]*model.Buffer
	StartRouter  *reader.Router

	Delimiter    *trial.Delimiter
	Extractor    *trial.Extractor
	SyncRegistry *clocksync.Registry

	finder *config.FileFinder
}

// ReaderSummary is one reader's state at the end of a run.
type ReaderSummary struct {
	Status        reader.Status
	FaultReason   error
	ClockDrift    float64
	MaxBufferTime float64
}

// RunSummary reports what a run produced.
type RunSummary struct {
	TrialsWritten int
	TrialFilePath string
	Readers       map[string]ReaderSummary
}

// Build assembles a pipeline from a validated experiment configuration and
// subject metadata.
func Build(experiment *config.Experiment, subject map[string]any, opts Options) (*Pipeline, error) {
	finder := opts.Finder
	if finder == nil {
		finder = config.NewFileFinder(nil)
	}

	p := &Pipeline{
		Experiment:   experiment.Experiment,
		Subject:      subject,
		Routers:      make(map[string]*reader.Router),
		NamedBuffers: make(map[string]*model.Buffer),
		SyncRegistry: clocksync.NewRegistry(""),
		finder:       finder,
	}
	if p.Experiment == nil {
		p.Experiment = map[string]any{}
	}
	if p.Subject == nil {
		p.Subject = map[string]any{}
	}

	if err := p.configureReaders(experiment.Readers, opts.AllowSimulateDelay); err != nil {
		return nil, err
	}
	if err := p.configureTrials(&experiment.Trials); err != nil {
		return nil, err
	}
	return p, nil
}

// configureReaders instantiates each configured reader, its routes and
// buffers, and a router to drive it.
func (p *Pipeline) configureReaders(readersConfig map[string]config.ReaderConfig, allowSimulateDelay bool) error {
	util.LogInfof("Using %d readers.", len(readersConfig))
	readerCtx := reader.FactoryContext{FindFile: p.finder.Find}

	for _, readerName := range sortedKeys(readersConfig) {
		readerConfig := readersConfig[readerName]
		util.LogInfof("  %s: %s", readerName, readerConfig.Class)

		r, err := reader.NewReader(readerConfig.Class, readerConfig.Args, readerCtx)
		if err != nil {
			return fmt.Errorf("reader %q: %w", readerName, err)
		}
		if allowSimulateDelay && readerConfig.SimulateDelay {
			r = reader.NewDelayReader(r)
		}

		// Default, pass-through routes for every result the reader offers,
		// overridden or extended by the configured extra buffers.
		initial := r.Initial()
		namedRoutes := make(map[string]reader.Route, len(initial))
		for resultName := range initial {
			namedRoutes[resultName] = reader.Route{ReaderResultName: resultName, BufferName: resultName}
		}
		for bufferName, bufferConfig := range readerConfig.ExtraBuffers {
			transformers := make([]reader.Transformer, 0, len(bufferConfig.Transformers))
			for _, transformerConfig := range bufferConfig.Transformers {
				transformer, err := transform.NewTransformer(transformerConfig.Class, transformerConfig.Args)
				if err != nil {
					return fmt.Errorf("reader %q buffer %q: %w", readerName, bufferName, err)
				}
				transformers = append(transformers, transformer)
			}
			resultName := bufferConfig.ReaderResultName
			if resultName == "" {
				resultName = bufferName
			}
			namedRoutes[bufferName] = reader.Route{
				ReaderResultName: resultName,
				BufferName:       bufferName,
				Transformers:     transformers,
			}
		}

		// Shape a buffer for each route from a transformed copy of the
		// reader's initial data.
		routes := make([]reader.Route, 0, len(namedRoutes))
		readerBuffers := make(map[string]*model.Buffer, len(namedRoutes))
		for _, bufferName := range sortedKeys(namedRoutes) {
			route := namedRoutes[bufferName]
			routes = append(routes, route)
			initialData, ok := initial[route.ReaderResultName]
			if !ok || initialData == nil {
				continue
			}
			data := initialData.Copy()
			for _, transformer := range route.Transformers {
				data, err = transformer.Transform(data)
				if err != nil {
					return fmt.Errorf("reader %q buffer %q initial transform: %w", readerName, bufferName, err)
				}
			}
			readerBuffers[bufferName] = &model.Buffer{Data: data}
		}

		var syncConfig *reader.SyncConfig
		if readerConfig.Sync != nil {
			syncReaderName := readerConfig.Sync.ReaderName
			if syncReaderName == "" {
				syncReaderName = readerName
			}
			syncConfig = &reader.SyncConfig{
				IsReference:      readerConfig.Sync.IsReference,
				ReaderResultName: readerConfig.Sync.ReaderResultName,
				EventValue:       readerConfig.Sync.EventValue,
				EventValueIndex:  readerConfig.Sync.EventValueIndex,
				ReaderName:       syncReaderName,
			}
			if syncConfig.IsReference {
				p.SyncRegistry.SetReferenceReaderName(readerName)
			}
		}

		router := reader.NewRouter(
			readerName,
			r,
			routes,
			readerBuffers,
			readerConfig.EmptyReadsAllowedOrDefault(),
			syncConfig,
			p.SyncRegistry,
		)
		p.Routers[readerName] = router
		for bufferName, buffer := range readerBuffers {
			p.NamedBuffers[bufferName] = buffer
		}
	}

	util.LogInfof("Using %d named buffers.", len(p.NamedBuffers))
	for _, name := range sortedKeys(p.NamedBuffers) {
		util.LogInfof("  %s", name)
	}
	return nil
}

// configureTrials sets up the delimiter, extractor, and enhancers, and finds
// the router that feeds the trial start buffer.
func (p *Pipeline) configureTrials(trialsConfig *config.TrialsConfig) error {
	startBuffer, ok := p.NamedBuffers[trialsConfig.StartBuffer]
	if !ok {
		return fmt.Errorf("no reader provides the trial start buffer %q", trialsConfig.StartBuffer)
	}
	p.Delimiter = trial.NewDelimiter(startBuffer, trialsConfig.StartValue, trialsConfig.StartValueIndex,
		trialsConfig.TrialStartTime, trialsConfig.TrialCount)

	wrtBuffer, ok := p.NamedBuffers[trialsConfig.WrtBuffer]
	if !ok {
		return fmt.Errorf("no reader provides the trial wrt buffer %q", trialsConfig.WrtBuffer)
	}

	// The start and wrt buffers steer trial timing; the rest carry data into
	// each trial.
	otherBuffers := make(map[string]*model.Buffer)
	for name, buffer := range p.NamedBuffers {
		if name != trialsConfig.StartBuffer && name != trialsConfig.WrtBuffer {
			otherBuffers[name] = buffer
		}
	}

	enhancerCtx := trial.FactoryContext{FindFile: p.finder.Find}
	enhancers := make([]trial.GatedEnhancer, 0, len(trialsConfig.Enhancers))
	util.LogInfof("Using %d per-trial enhancers.", len(trialsConfig.Enhancers))
	for _, enhancerConfig := range trialsConfig.Enhancers {
		enhancer, err := trial.NewEnhancer(enhancerConfig.Class, enhancerConfig.Args, enhancerCtx)
		if err != nil {
			return err
		}
		var when *trial.Expression
		if enhancerConfig.When != "" {
			util.LogInfof("  %s when %s", enhancerConfig.Class, enhancerConfig.When)
			when, err = trial.NewExpression(enhancerConfig.When, false)
			if err != nil {
				return fmt.Errorf("enhancer %q: %w", enhancerConfig.Class, err)
			}
		} else {
			util.LogInfof("  %s", enhancerConfig.Class)
		}
		enhancers = append(enhancers, trial.GatedEnhancer{Enhancer: enhancer, When: when})
	}

	p.Extractor = trial.NewExtractor(
		wrtBuffer,
		trialsConfig.WrtValue,
		trialsConfig.WrtValueIndex,
		otherBuffers,
		enhancers,
	)

	for _, router := range p.Routers {
		if _, ok := router.Buffers()[trialsConfig.StartBuffer]; ok {
			p.StartRouter = router
		}
	}
	if p.StartRouter == nil {
		return fmt.Errorf("no router feeds the trial start buffer %q", trialsConfig.StartBuffer)
	}
	return nil
}

// Run drives the pipeline to completion: it polls the start reader for trial
// delimiting events, lets all readers catch up to each new trial, refreshes
// drift estimates, and writes each populated trial to the trial file. The
// last, open-ended trial is written after the start reader ends.
func (p *Pipeline) Run(writer *trialfile.Writer) (*RunSummary, error) {
	if err := writer.CreateEmpty(); err != nil {
		return nil, err
	}

	opened := make([]*reader.Router, 0, len(p.Routers))
	defer func() {
		for _, router := range opened {
			if err := router.Reader().Close(); err != nil {
				util.LogWarnf("Error closing reader %s: %v", router.ReaderName(), err)
			}
		}
	}()
	for _, readerName := range sortedKeys(p.Routers) {
		router := p.Routers[readerName]
		if err := router.Reader().Open(); err != nil {
			return nil, fmt.Errorf("failed to open reader %q: %w", readerName, err)
		}
		opened = append(opened, router)
	}

	trialsWritten := 0
	for p.StartRouter.StillGoing() {
		if !p.StartRouter.RouteNext() {
			continue
		}
		newTrials, err := p.Delimiter.Next()
		if err != nil {
			return p.summary(writer, trialsWritten), err
		}
		for _, numbered := range newTrials {
			// Let all readers catch up to the trial end time, then
			// re-estimate clock drift from the latest sync events.
			for _, router := range p.Routers {
				router.RouteUntil(*numbered.Trial.EndTime)
			}
			for _, router := range p.Routers {
				router.UpdateDriftEstimate(numbered.Trial.EndTime)
			}

			p.Extractor.PopulateTrial(numbered.Trial, numbered.Number, p.Experiment, p.Subject)
			if err := writer.AppendTrial(numbered.Trial); err != nil {
				return p.summary(writer, trialsWritten), err
			}
			trialsWritten++

			p.Delimiter.DiscardBefore(numbered.Trial.StartTime)
			p.Extractor.DiscardBefore(numbered.Trial.StartTime)
		}
	}

	// Best effort to catch the last trial, which has no next start event to
	// delimit it.
	for _, router := range p.Routers {
		router.RouteNext()
	}
	for _, router := range p.Routers {
		router.UpdateDriftEstimate(nil)
	}
	last := p.Delimiter.Last()
	p.Extractor.PopulateTrial(last.Trial, last.Number, p.Experiment, p.Subject)
	if err := writer.AppendTrial(last.Trial); err != nil {
		return p.summary(writer, trialsWritten), err
	}
	trialsWritten++

	return p.summary(writer, trialsWritten), nil
}

func (p *Pipeline) summary(writer *trialfile.Writer, trialsWritten int) *RunSummary {
	summary := &RunSummary{
		TrialsWritten: trialsWritten,
		TrialFilePath: writer.Path(),
		Readers:       make(map[string]ReaderSummary, len(p.Routers)),
	}
	for readerName, router := range p.Routers {
		summary.Readers[readerName] = ReaderSummary{
			Status:        router.Status(),
			FaultReason:   router.FaultReason(),
			ClockDrift:    router.ClockDrift(),
			MaxBufferTime: router.MaxBufferTime(),
		}
	}
	return summary
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
