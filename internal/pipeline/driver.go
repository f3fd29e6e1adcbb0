package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kingrea/helix/internal/archive"
	"github.com/kingrea/helix/internal/artifact"
	"github.com/kingrea/helix/internal/config"
	"github.com/kingrea/helix/internal/module"
	"github.com/kingrea/helix/internal/record"
)

// ErrAborted is returned when abort_on_error stopped the run.
var ErrAborted = errors.New("pipeline: aborted after module failure")

// ErrDependencyFailed marks a module skipped because a module it depends on
// failed on the same record.
var ErrDependencyFailed = errors.New("dependency failed")

// Gateway receives finished records. Emit is called once per record after
// every module reached a terminal state; Finalize once per successful run.
type Gateway interface {
	// Checkers returns output plugins whose readiness and options are
	// validated alongside the modules.
	Checkers() []module.Checker
	// Emit writes the record's module outputs and returns its archive entry.
	// A non-empty entry may accompany a write error.
	Emit(ctx context.Context, rec *record.Record, results []module.Result, cfg config.Config) (archive.Entry, error)
	// Finalize persists the archive and run-level reports.
	Finalize(ctx context.Context, arc *archive.Archive, records []*record.Record, report Report, cfg config.Config) error
}

// Driver runs records through the module plan.
type Driver struct {
	registry    *module.Registry
	gateway     Gateway
	logger      *zap.Logger
	clock       func() time.Time
	observer    Observer
	newRunID    func() string
	toolVersion string
}

// Option customizes the driver instance.
type Option func(*Driver)

// WithClock injects a deterministic clock (primarily for tests).
func WithClock(clock func() time.Time) Option {
	return func(d *Driver) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithObserver subscribes to progress events.
func WithObserver(observer Observer) Option {
	return func(d *Driver) {
		d.observer = observer
	}
}

// WithRunID overrides run identifier generation.
func WithRunID(gen func() string) Option {
	return func(d *Driver) {
		if gen != nil {
			d.newRunID = gen
		}
	}
}

// WithToolVersion stamps archives with the producing build's version.
func WithToolVersion(version string) Option {
	return func(d *Driver) {
		d.toolVersion = version
	}
}

// New wires a driver to the module registry and output gateway.
func New(registry *module.Registry, gateway Gateway, opts ...Option) (*Driver, error) {
	if registry == nil {
		return nil, fmt.Errorf("pipeline: module registry is required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("pipeline: output gateway is required")
	}
	d := &Driver{
		registry:    registry,
		gateway:     gateway,
		logger:      zap.NewNop(),
		clock:       time.Now,
		newRunID:    uuid.NewString,
		toolVersion: "dev",
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Prepare builds the plan and runs option and readiness checks for every
// enabled module and output plugin. Disabled modules are not checked.
func (d *Driver) Prepare(cfg config.Config) (*Plan, []error) {
	if err := cfg.Validate(); err != nil {
		return nil, []error{err}
	}
	plan, errs := NewPlan(d.registry, cfg)
	if plan == nil {
		return nil, errs
	}
	checkers := make([]module.Checker, 0, len(plan.steps))
	for _, step := range plan.Enabled() {
		checkers = append(checkers, step.Module)
	}
	for _, c := range d.gateway.Checkers() {
		if c.IsEnabled(cfg) {
			checkers = append(checkers, c)
		}
	}
	for _, c := range checkers {
		id := c.Info().ID
		for _, err := range c.CheckOptions(cfg) {
			errs = append(errs, ensureKind(err, module.ErrOption, func(e error) error { return module.OptionError(id, e) }))
		}
		for _, err := range c.CheckReadiness(cfg) {
			errs = append(errs, ensureKind(err, module.ErrReadiness, func(e error) error { return module.ReadinessError(id, e) }))
		}
	}
	return plan, errs
}

// Run processes records and, unless the run was cancelled or aborted, hands
// the collected archive to the gateway. The returned error is non-nil only
// for run-level failures; per-record failures are in the report.
func (d *Driver) Run(ctx context.Context, records []*record.Record, cfg config.Config) (Report, error) {
	report := Report{RunID: d.newRunID(), Started: d.clock()}
	finish := func(err error) (Report, error) {
		report.Finished = d.clock()
		return report, err
	}

	plan, errs := d.Prepare(cfg)
	if len(errs) > 0 {
		report.Errors = errs
		return finish(errors.Join(errs...))
	}
	if err := checkRecords(records); err != nil {
		report.Errors = []error{err}
		return finish(err)
	}

	var prev *archive.Archive
	if cfg.ReuseResults != "" {
		loaded, err := archive.Load(cfg.ReuseResults)
		if err != nil {
			report.Errors = []error{err}
			return finish(err)
		}
		prev = loaded
		d.logger.Info("reusing results", zap.String("archive", cfg.ReuseResults), zap.String("previous_run", prev.RunID))
		d.logger.Debug("archived records", zap.Strings("records", prev.RecordIDs()))
	}

	builder := archive.NewBuilder(report.RunID, d.toolVersion, report.Started)
	reports := make([]RecordReport, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.CPUs)
	for i, rec := range records {
		i, rec := i, rec
		g.Go(func() error {
			if gctx.Err() != nil {
				reports[i] = RecordReport{RecordID: rec.ID, Cancelled: true}
				return nil
			}
			rr := d.processRecord(gctx, plan, prev, rec, cfg, builder)
			reports[i] = rr
			if cfg.AbortOnError && rr.Failed() {
				return fmt.Errorf("%w: record %s", ErrAborted, rec.ID)
			}
			return nil
		})
	}
	waitErr := g.Wait()
	report.Records = reports

	if err := ctx.Err(); err != nil {
		report.Cancelled = true
		d.logger.Warn("run cancelled, archive not written", zap.Error(err))
		return finish(err)
	}
	if waitErr != nil {
		report.Aborted = true
		d.logger.Error("run aborted, archive not written", zap.Error(waitErr))
		return finish(waitErr)
	}

	arc := builder.Build()
	if err := d.gateway.Finalize(ctx, arc, records, report, cfg); err != nil {
		report.Errors = append(report.Errors, err)
		return finish(err)
	}
	report.ArchivePath = cfg.ArchivePath()
	d.logger.Info("run complete",
		zap.String("run_id", report.RunID),
		zap.Int("records", len(records)),
		zap.Int("failures", len(report.Failures())),
		zap.String("archive", report.ArchivePath))
	return finish(nil)
}

func (d *Driver) processRecord(ctx context.Context, plan *Plan, prev *archive.Archive, rec *record.Record, cfg config.Config, builder *archive.Builder) RecordReport {
	rr := RecordReport{RecordID: rec.ID}
	log := d.logger.With(zap.String("record", rec.ID))
	prior := module.Prior{}
	failed := map[string]bool{}
	results := make([]module.Result, 0, len(plan.steps))

	for _, step := range plan.steps {
		if ctx.Err() != nil {
			rr.Cancelled = true
			return rr
		}
		id := step.Info.ID
		if !step.Enabled {
			rr.Outcomes = append(rr.Outcomes, Outcome{Module: id, State: StateSkipped})
			d.emit(Event{RecordID: rec.ID, ModuleID: id, State: StateSkipped})
			continue
		}
		if dep := failedDependency(step.Info, failed); dep != "" {
			err := module.ExecutionError(id, rec.ID, fmt.Errorf("%w: %s", ErrDependencyFailed, dep))
			failed[id] = true
			rr.Outcomes = append(rr.Outcomes, Outcome{Module: id, State: StateFailed, Err: err})
			d.emit(Event{RecordID: rec.ID, ModuleID: id, State: StateFailed, Err: err})
			continue
		}

		started := d.clock()
		res, outcome := d.resolve(ctx, step, prev, rec, prior, cfg, log)
		if outcome.State == StateFailed && ctx.Err() != nil {
			rr.Cancelled = true
			return rr
		}
		if outcome.State != StateFailed {
			d.emit(Event{RecordID: rec.ID, ModuleID: id, State: outcome.Source})
			if err := res.AddToRecord(rec); err != nil {
				outcome.State = StateFailed
				outcome.Err = module.ExecutionError(id, rec.ID, fmt.Errorf("apply result: %w", err))
			} else {
				outcome.State = StateApplied
				prior[id] = res
				results = append(results, res)
			}
		}
		outcome.Duration = d.clock().Sub(started)
		if outcome.State == StateFailed {
			failed[id] = true
			log.Error("module failed", zap.String("module", id), zap.Error(outcome.Err))
		}
		rr.Outcomes = append(rr.Outcomes, outcome)
		d.emit(Event{RecordID: rec.ID, ModuleID: id, State: outcome.State, Err: outcome.Err})
	}

	if ctx.Err() != nil {
		rr.Cancelled = true
		return rr
	}
	entry, err := d.gateway.Emit(ctx, rec, results, cfg)
	if err != nil {
		rr.WriteErrs = append(rr.WriteErrs, err)
		log.Error("writing outputs failed", zap.Error(err))
	}
	if entry.ID != "" {
		if addErr := builder.Add(entry); addErr != nil {
			rr.WriteErrs = append(rr.WriteErrs, addErr)
		} else {
			rr.Emitted = true
		}
	}
	d.emit(Event{RecordID: rec.ID, State: recordState(rr), RecordDone: true, Err: errors.Join(rr.Errors()...)})
	return rr
}

// resolve produces a result for one step, preferring a cached payload and
// falling back to a fresh computation when it is missing or malformed.
func (d *Driver) resolve(ctx context.Context, step Step, prev *archive.Archive, rec *record.Record, prior module.Prior, cfg config.Config, log *zap.Logger) (module.Result, Outcome) {
	id := step.Info.ID
	outcome := Outcome{Module: id}
	log = log.With(zap.String("module", id))

	if prev != nil {
		payload, miss := prev.Lookup(rec.ID, id, step.Info.Version)
		if miss == archive.MissNone {
			res, err := step.Module.Regenerate(payload, rec, cfg)
			if err == nil && res == nil {
				err = fmt.Errorf("regenerate returned no result")
			}
			if err == nil {
				outcome.Source = StateCached
				log.Debug("reused cached result")
				return res, outcome
			}
			outcome.Fallback = ensureKind(err, module.ErrMalformedPayload, func(e error) error { return module.MalformedPayload(id, rec.ID, e) })
			log.Warn("cached result unusable, recomputing", zap.Error(outcome.Fallback))
		} else {
			outcome.Miss = miss
			log.Debug("no cached result", zap.String("reason", string(miss)))
		}
	}

	res, err := step.Module.RunFresh(ctx, rec, prior.Clone(), cfg)
	if err == nil && res == nil {
		err = fmt.Errorf("run returned no result")
	}
	if err != nil {
		outcome.State = StateFailed
		outcome.Err = ensureKind(err, module.ErrExecution, func(e error) error { return module.ExecutionError(id, rec.ID, e) })
		return nil, outcome
	}
	outcome.Source = StateComputed
	return res, outcome
}

// Verify reconstructs and applies every cached result in the archive named by
// cfg.ReuseResults without computing or writing anything. Missing payloads
// are reported as skipped; malformed ones as failures. Outputs of applied
// results are checked under cfg.OutputDir and reported as stale when missing
// or edited.
func (d *Driver) Verify(ctx context.Context, cfg config.Config) (Report, error) {
	report := Report{Started: d.clock()}
	if cfg.ReuseResults == "" {
		err := fmt.Errorf("pipeline: verify requires an archive to reuse")
		report.Errors = []error{err}
		return report, err
	}
	plan, errs := NewPlan(d.registry, cfg)
	if len(errs) > 0 {
		report.Errors = errs
		return report, errors.Join(errs...)
	}
	arc, err := archive.Load(cfg.ReuseResults)
	if err != nil {
		report.Errors = []error{err}
		return report, err
	}
	report.RunID = arc.RunID
	records, err := arc.DecodeRecords()
	if err != nil {
		report.Errors = []error{err}
		return report, err
	}

	store := artifact.NewStore(cfg.OutputDir)
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			report.Cancelled = true
			return report, err
		}
		rr := RecordReport{RecordID: rec.ID}
		for _, step := range plan.steps {
			id := step.Info.ID
			if !step.Enabled {
				rr.Outcomes = append(rr.Outcomes, Outcome{Module: id, State: StateSkipped})
				continue
			}
			payload, miss := arc.Lookup(rec.ID, id, step.Info.Version)
			if miss != archive.MissNone {
				rr.Outcomes = append(rr.Outcomes, Outcome{Module: id, State: StateSkipped, Miss: miss})
				continue
			}
			outcome := Outcome{Module: id, Source: StateCached}
			res, err := step.Module.Regenerate(payload, rec, cfg)
			if err == nil && res == nil {
				err = fmt.Errorf("regenerate returned no result")
			}
			if err == nil {
				err = res.AddToRecord(rec)
			}
			if err != nil {
				outcome.State = StateFailed
				outcome.Err = ensureKind(err, module.ErrMalformedPayload, func(e error) error { return module.MalformedPayload(id, rec.ID, e) })
			} else {
				outcome.State = StateApplied
				if lister, ok := res.(module.ArtifactLister); ok {
					outcome.Stale = checkOutputs(store, lister.Artifacts(rec), id, rec.ID)
				}
			}
			rr.Outcomes = append(rr.Outcomes, outcome)
			d.emit(Event{RecordID: rec.ID, ModuleID: id, State: outcome.State, Err: outcome.Err})
		}
		report.Records = append(report.Records, rr)
		d.emit(Event{RecordID: rec.ID, State: recordState(rr), RecordDone: true})
	}
	report.Finished = d.clock()
	return report, nil
}

func (d *Driver) emit(ev Event) {
	if d.observer == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = d.clock()
	}
	d.observer(ev)
}

func recordState(rr RecordReport) State {
	if rr.Failed() {
		return StateFailed
	}
	return StateApplied
}

func failedDependency(info module.Info, failed map[string]bool) string {
	for _, dep := range info.DependsOn {
		if failed[dep] {
			return dep
		}
	}
	return ""
}

// checkOutputs reports artifacts that are missing, fail their checksum or
// carry metadata from another module or record.
func checkOutputs(store *artifact.Store, refs []artifact.ArtifactRef, moduleID, recordID string) []error {
	var stale []error
	for _, ref := range refs {
		res, err := store.Check(ref)
		switch {
		case res.State == artifact.StateMissing:
			stale = append(stale, fmt.Errorf("%s: missing", ref.RelPath))
		case err != nil:
			stale = append(stale, fmt.Errorf("%s: %w", ref.RelPath, err))
		case res.Metadata != nil && (res.Metadata.ModuleID != moduleID || res.Metadata.Record != recordID):
			stale = append(stale, fmt.Errorf("%s: written by %s for record %q", ref.RelPath, res.Metadata.ModuleID, res.Metadata.Record))
		}
	}
	return stale
}

func checkRecords(records []*record.Record) error {
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
		if _, dup := seen[rec.ID]; dup {
			return fmt.Errorf("pipeline: duplicate record %s", rec.ID)
		}
		seen[rec.ID] = struct{}{}
	}
	return nil
}

// ensureKind leaves errors that already carry kind alone and wraps the rest.
func ensureKind(err, kind error, wrap func(error) error) error {
	if errors.Is(err, kind) {
		return err
	}
	return wrap(err)
}
