package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ppiankov/applytrail/internal/export"
	"github.com/ppiankov/applytrail/internal/logging"
	"github.com/ppiankov/applytrail/internal/metrics"
	"github.com/ppiankov/applytrail/internal/model"
	"github.com/ppiankov/applytrail/internal/store"
	"github.com/ppiankov/applytrail/internal/worker"
)

// finalEventWait bounds how long the terminal progress event waits for a
// stalled consumer
const finalEventWait = 5 * time.Second

// Source fetches candidate items
type Source interface {
	Fetch(ctx context.Context, w model.Window) ([]model.Item, error)
}

// Inference is the classify/extract capability set
type Inference interface {
	Name() string
	Classify(ctx context.Context, item model.Item) (bool, error)
	Extract(ctx context.Context, item model.Item) (model.Extraction, error)
}

// InferenceFactory builds the inference client for the current settings
type InferenceFactory func(ctx context.Context, settings model.Settings) (Inference, error)

// SettingsStore holds persisted settings and the watermark
type SettingsStore interface {
	Load(ctx context.Context) (model.Settings, error)
	Update(ctx context.Context, fn func(*model.Settings) error) (model.Settings, error)
	AdvanceWatermark(ctx context.Context, t time.Time) (time.Time, error)
}

// Config tunes the orchestrator
type Config struct {
	// FetchCeiling caps the over-fetch
	FetchCeiling int

	// RateLimitBackoff is the pause before the single retry of a throttled call
	RateLimitBackoff time.Duration

	// ItemDelay is the pause between items
	ItemDelay time.Duration

	// ExportDir receives CSV exports
	ExportDir string

	// Location renders export timestamps; nil means local time
	Location *time.Location
}

// ConfigFromModel converts the pipeline section of the static config
func ConfigFromModel(cfg *model.Config) Config {
	return Config{
		FetchCeiling:     cfg.Pipeline.FetchCeiling,
		RateLimitBackoff: cfg.Pipeline.RateLimitBackoff,
		ItemDelay:        cfg.Pipeline.ItemDelay,
		ExportDir:        cfg.Data.ExportDir,
	}
}

// Deps are the collaborators of an Orchestrator
type Deps struct {
	Source    Source
	Inference InferenceFactory
	Seen      store.SeenStore
	Records   store.RecordStore
	Settings  SettingsStore
	Logger    *zap.Logger
}

// RunRequest configures one run. Zero values fall back to saved settings.
type RunRequest struct {
	LookbackDays int
	MaxItems     int

	// After is an explicit date floor that overrides LookbackDays
	After time.Time

	// SinceWatermark uses the saved watermark as the date floor
	SinceWatermark bool

	// Progress receives events in order. Sends block, so the consumer sets
	// the pace. The orchestrator closes the channel when the run ends.
	Progress chan<- model.Event
}

// Validate checks the explicit overrides. Zero values are resolved from the
// saved settings and checked when the run starts.
func (r RunRequest) Validate() error {
	if r.LookbackDays != 0 && !slices.Contains(model.LookbackChoices, r.LookbackDays) {
		return fmt.Errorf("%w: lookback must be one of %v days, got %d", model.ErrInvalidSettings, model.LookbackChoices, r.LookbackDays)
	}
	if r.MaxItems != 0 && (r.MaxItems < model.MinMaxItems || r.MaxItems > model.MaxMaxItems) {
		return fmt.Errorf("%w: max items must be within [%d, %d], got %d", model.ErrInvalidSettings, model.MinMaxItems, model.MaxMaxItems, r.MaxItems)
	}
	return nil
}

// ExportResult describes a written export
type ExportResult struct {
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// Orchestrator sequences fetch, filter, classify, extract and persist.
// At most one run is active per Orchestrator.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	active *Run
}

// New creates an orchestrator
func New(deps Deps, cfg Config) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg,
		logger: logging.OrNop(deps.Logger),
		now:    time.Now,
	}
}

// StartRun begins a run in the background. It returns model.ErrRunActive
// when another run is in progress and model.ErrInvalidSettings for bad
// overrides. Cancelling ctx aborts in-flight calls; Run.Cancel stops
// cooperatively between items.
func (o *Orchestrator) StartRun(ctx context.Context, req RunRequest) (*Run, error) {
	if err := req.Validate(); err != nil {
		if req.Progress != nil {
			close(req.Progress)
		}
		return nil, err
	}

	o.mu.Lock()
	if o.active != nil {
		o.mu.Unlock()
		if req.Progress != nil {
			close(req.Progress)
		}
		return nil, model.ErrRunActive
	}
	run := newRun(uuid.NewString(), o.now())
	o.active = run
	o.mu.Unlock()

	go func() {
		summary, err := o.execute(ctx, run, req)

		o.mu.Lock()
		o.active = nil
		o.mu.Unlock()

		switch {
		case err != nil:
			metrics.IncrementRun("failed")
			o.emitFinal(run, req.Progress, model.Event{Kind: model.EventFailure, Message: err.Error(), Summary: summary})
		case summary.Cancelled:
			metrics.IncrementRun("cancelled")
			o.emitFinal(run, req.Progress, model.Event{Kind: model.EventDone, Summary: summary})
		default:
			metrics.IncrementRun("completed")
			o.emitFinal(run, req.Progress, model.Event{Kind: model.EventDone, Summary: summary})
		}
		if req.Progress != nil {
			close(req.Progress)
		}
		run.finish(summary, err)
	}()

	return run, nil
}

// Run starts a run and waits for it
func (o *Orchestrator) Run(ctx context.Context, req RunRequest) (*model.Summary, error) {
	run, err := o.StartRun(ctx, req)
	if err != nil {
		return nil, err
	}
	return run.Wait()
}

// CancelActiveRun requests cancellation of the active run, if any
func (o *Orchestrator) CancelActiveRun() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.active == nil {
		return false
	}
	o.active.Cancel()
	return true
}

// IsRunActive reports whether a run is in progress
func (o *Orchestrator) IsRunActive() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active != nil
}

// ActiveRun returns the active run or nil
func (o *Orchestrator) ActiveRun() *Run {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active
}

// ActiveRunID returns the id of the active run or ""
func (o *Orchestrator) ActiveRunID() string {
	if run := o.ActiveRun(); run != nil {
		return run.ID
	}
	return ""
}

// ExportRecords writes every stored record to the export file
func (o *Orchestrator) ExportRecords(ctx context.Context) (ExportResult, error) {
	records, err := o.deps.Records.ReadAll(ctx)
	if err != nil {
		return ExportResult{}, fmt.Errorf("read records: %w", err)
	}

	path, err := export.WriteFile(o.cfg.ExportDir, records, o.cfg.Location)
	if err != nil {
		return ExportResult{}, err
	}

	o.logger.Info("exported records", zap.String("path", path), zap.Int("count", len(records)))
	return ExportResult{Path: path, Count: len(records)}, nil
}

// ScanStats returns scan-history counters
func (o *Orchestrator) ScanStats(ctx context.Context) (model.Stats, error) {
	seen, err := o.deps.Seen.Count(ctx)
	if err != nil {
		return model.Stats{}, fmt.Errorf("count seen: %w", err)
	}
	records, err := o.deps.Records.Count(ctx)
	if err != nil {
		return model.Stats{}, fmt.Errorf("count records: %w", err)
	}
	settings, err := o.deps.Settings.Load(ctx)
	if err != nil {
		return model.Stats{}, fmt.Errorf("load settings: %w", err)
	}

	return model.Stats{
		TotalSeen:    seen,
		TotalRecords: records,
		Watermark:    settings.Watermark,
	}, nil
}

// ClearSeenHistory forgets every attempted id. Rejected while a run is active.
func (o *Orchestrator) ClearSeenHistory(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.active != nil {
		return model.ErrRunActive
	}
	if err := o.deps.Seen.Clear(ctx); err != nil {
		return fmt.Errorf("%w: clear seen: %w", model.ErrPersistence, err)
	}
	o.logger.Info("cleared seen history")
	return nil
}

// execute runs the stages. The returned summary is never nil.
func (o *Orchestrator) execute(ctx context.Context, run *Run, req RunRequest) (*model.Summary, error) {
	log := o.logger.With(zap.String("run_id", run.ID))
	summary := &model.Summary{
		RunID:     run.ID,
		StartedAt: run.StartedAt,
		Outcomes:  []model.Outcome{},
	}
	finish := func() { summary.FinishedAt = o.now() }
	defer finish()

	settings, err := o.deps.Settings.Load(ctx)
	if err != nil {
		return summary, fmt.Errorf("load settings: %w", err)
	}
	summary.Watermark = settings.Watermark

	limit := req.MaxItems
	if limit == 0 {
		limit = settings.MaxItems
	}
	if limit < model.MinMaxItems || limit > model.MaxMaxItems {
		return summary, fmt.Errorf("%w: max items must be within [%d, %d], got %d", model.ErrInvalidSettings, model.MinMaxItems, model.MaxMaxItems, limit)
	}
	lookback := req.LookbackDays
	if lookback == 0 {
		lookback = settings.LookbackDays
	}
	if !slices.Contains(model.LookbackChoices, lookback) {
		return summary, fmt.Errorf("%w: lookback must be one of %v days, got %d", model.ErrInvalidSettings, model.LookbackChoices, lookback)
	}

	inference, err := o.deps.Inference(ctx, settings)
	if err != nil {
		return summary, fmt.Errorf("inference backend %s: %w", settings.Backend, err)
	}

	// Fetching
	o.setStage(ctx, run, req.Progress, model.StageFetching)

	seen, err := o.deps.Seen.Snapshot(ctx)
	if err != nil {
		return summary, fmt.Errorf("load seen set: %w", err)
	}

	window := model.Window{
		LookbackDays: lookback,
		After:        req.After,
		MaxCount:     FetchSize(limit, len(seen), o.cfg.FetchCeiling),
	}
	if req.SinceWatermark && window.After.IsZero() && !settings.Watermark.IsZero() {
		window.After = settings.Watermark
	}

	log.Info("fetching",
		zap.String("backend", inference.Name()),
		zap.Int("limit", limit),
		zap.Int("seen", len(seen)),
		zap.Int("fetch_size", window.MaxCount),
		zap.Time("after", window.Floor(o.now())))

	items, err := o.deps.Source.Fetch(ctx, window)
	if err != nil {
		if errors.Is(err, model.ErrAuth) {
			o.markUnauthenticated(ctx)
		}
		return summary, err
	}
	summary.Fetched = len(items)

	// Filtering
	o.setStage(ctx, run, req.Progress, model.StageFiltering)
	pending, filtered := Filter(items, seen, limit)
	log.Info("filtered", zap.Int("fetched", len(items)), zap.Int("already_seen", filtered), zap.Int("pending", len(pending)))

	// Iterating
	o.setStage(ctx, run, req.Progress, model.StageIterating)

	var attempted []string
	var candidates []model.Record
	errorCount := 0

	for i, item := range pending {
		if run.Cancelled() || ctx.Err() != nil {
			summary.Cancelled = true
			log.Info("run cancelled", zap.Int("attempted", len(attempted)), zap.Int("remaining", len(pending)-i))
			break
		}

		run.setProgress(i+1, len(pending))
		outcome, record, matched, failed := o.processItem(ctx, log, inference, item)

		// an aborted call means the item was not evaluated
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}

		attempted = append(attempted, item.ID)
		summary.Outcomes = append(summary.Outcomes, outcome)
		if matched {
			summary.Matched++
		}
		if failed {
			errorCount++
		}
		if record != nil {
			candidates = append(candidates, *record)
		}
		metrics.IncrementItemProcessed(string(outcome.Status))

		o.emit(ctx, run, req.Progress, model.Event{
			Kind:    model.EventItem,
			Stage:   model.StageIterating,
			Index:   i + 1,
			Total:   len(pending),
			Outcome: &outcome,
		})

		if i < len(pending)-1 {
			_ = worker.Sleep(ctx, o.cfg.ItemDelay)
		}
	}
	summary.Scanned = len(attempted)
	summary.Errors = errorCount

	// Reconciling runs to completion even if ctx was cancelled
	o.setStage(ctx, run, req.Progress, model.StageReconciling)
	rctx := context.WithoutCancel(ctx)

	if err := o.deps.Seen.MarkMany(rctx, attempted); err != nil {
		summary.Pending = candidates
		return summary, fmt.Errorf("%w: mark seen: %w", model.ErrPersistence, err)
	}

	res, err := o.deps.Records.Append(rctx, candidates)
	if err != nil {
		summary.Pending = candidates
		return summary, fmt.Errorf("%w: append records: %w", model.ErrPersistence, err)
	}
	summary.Recorded = res.Inserted
	summary.DuplicatesSkipped = filtered + res.Duplicates
	metrics.AddRecordsInserted(res.Inserted)

	watermark, err := o.deps.Settings.AdvanceWatermark(rctx, latestReceived(items))
	if err != nil {
		return summary, fmt.Errorf("%w: advance watermark: %w", model.ErrPersistence, err)
	}
	summary.Watermark = watermark

	finish()
	log.Info("run finished",
		zap.Int("scanned", summary.Scanned),
		zap.Int("matched", summary.Matched),
		zap.Int("recorded", summary.Recorded),
		zap.Int("duplicates", summary.DuplicatesSkipped),
		zap.Int("errors", summary.Errors),
		zap.Bool("cancelled", summary.Cancelled),
		zap.Duration("elapsed", summary.FinishedAt.Sub(summary.StartedAt)))

	return summary, nil
}

// processItem classifies and, when positive, extracts one item. failed is
// true when an inference failure (not an incomplete extraction) occurred.
func (o *Orchestrator) processItem(ctx context.Context, log *zap.Logger, inf Inference, item model.Item) (outcome model.Outcome, record *model.Record, matched, failed bool) {
	outcome = model.Outcome{
		ItemID:     item.ID,
		Subject:    item.Subject,
		Sender:     item.Sender,
		ReceivedAt: item.ReceivedAt,
	}

	isConfirmation, err := withRateLimitRetry(ctx, log, o.cfg.RateLimitBackoff, "classify", func() (bool, error) {
		return inf.Classify(ctx, item)
	})
	if err != nil {
		log.Warn("classify failed", zap.String("item", item.ID), zap.Error(err))
		outcome.Status = model.OutcomeError
		outcome.Error = err.Error()
		return outcome, nil, false, true
	}
	if !isConfirmation {
		outcome.Status = model.OutcomeSkipped
		return outcome, nil, false, false
	}

	ext, err := withRateLimitRetry(ctx, log, o.cfg.RateLimitBackoff, "extract", func() (model.Extraction, error) {
		return inf.Extract(ctx, item)
	})
	if err != nil {
		outcome.Status = model.OutcomeExtractionFailed
		outcome.Error = err.Error()
		incomplete := errors.Is(err, model.ErrExtractionIncomplete)
		if !incomplete {
			log.Warn("extract failed", zap.String("item", item.ID), zap.Error(err))
		}
		return outcome, nil, true, !incomplete
	}

	r := model.NewRecord(item, ext, o.now())
	outcome.Status = model.OutcomeSuccess
	outcome.Company = r.Company
	outcome.Position = r.Position
	return outcome, &r, true, false
}

// withRateLimitRetry retries call exactly once after backoff when it failed
// with a rate-limit error
func withRateLimitRetry[T any](ctx context.Context, log *zap.Logger, backoff time.Duration, op string, call func() (T, error)) (T, error) {
	v, err := call()
	if err == nil || !errors.Is(err, model.ErrRateLimited) {
		return v, err
	}

	log.Warn("rate limited, retrying once", zap.String("operation", op), zap.Duration("backoff", backoff))
	if err := worker.Sleep(ctx, backoff); err != nil {
		var zero T
		return zero, err
	}
	return call()
}

func (o *Orchestrator) setStage(ctx context.Context, run *Run, progress chan<- model.Event, stage model.Stage) {
	run.setStage(stage)
	o.emit(ctx, run, progress, model.Event{Kind: model.EventStage, Stage: stage})
}

// emit sends ev in order; it gives up only when ctx is done
func (o *Orchestrator) emit(ctx context.Context, run *Run, progress chan<- model.Event, ev model.Event) {
	if progress == nil {
		return
	}
	ev.Seq = run.nextSeq()
	ev.RunID = run.ID

	select {
	case progress <- ev:
	case <-ctx.Done():
	}
}

// emitFinal delivers the terminal event even after ctx is done; consumers
// read until the channel closes
func (o *Orchestrator) emitFinal(run *Run, progress chan<- model.Event, ev model.Event) {
	if progress == nil {
		return
	}
	ev.Seq = run.nextSeq()
	ev.RunID = run.ID

	select {
	case progress <- ev:
		return
	default:
	}

	timer := time.NewTimer(finalEventWait)
	defer timer.Stop()
	select {
	case progress <- ev:
	case <-timer.C:
		o.logger.Warn("progress consumer stalled, dropped final event", zap.String("run_id", run.ID))
	}
}

func (o *Orchestrator) markUnauthenticated(ctx context.Context) {
	_, err := o.deps.Settings.Update(context.WithoutCancel(ctx), func(s *model.Settings) error {
		s.Authenticated = false
		return nil
	})
	if err != nil {
		o.logger.Debug("could not clear authenticated flag", zap.Error(err))
	}
}
