// Package pipeline runs the worklist through extraction, the model, JSON
// repair and the catalog sink. Items are processed one at a time; a failing
// item is recorded in the worklist and never aborts the batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/catalog-crawler/internal/catalog"
	"github.com/maltedev/catalog-crawler/internal/llm"
	"github.com/maltedev/catalog-crawler/internal/metrics"
	"github.com/maltedev/catalog-crawler/internal/prompt"
	"github.com/maltedev/catalog-crawler/internal/queue"
	"github.com/maltedev/catalog-crawler/internal/ratelimit"
	"github.com/maltedev/catalog-crawler/internal/repair"
	"github.com/maltedev/catalog-crawler/internal/worklist"
)

const (
	StageExtract   = "extract"
	StagePrompt    = "prompt"
	StageGenerate  = "generate"
	StageRepair    = "repair"
	StageNormalize = "normalize"
	StageAppend    = "append"

	NoteDuplicate = "handle already in catalog"
)

var (
	ErrMissingDependency = errors.New("missing pipeline dependency")
	ErrNoContent         = errors.New("no product content found")
)

// StageError tells which stage an item failed in.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

type Extractor interface {
	Extract(ctx context.Context, url string) (string, bool, error)
}

type PromptBuilder interface {
	Build(variant prompt.Variant, productData string) (string, error)
}

type Repairer interface {
	RepairDetailed(raw string) (*repair.Result, error)
}

// feedback is implemented by limiters that adapt to outcomes, such as
// ratelimit.AdaptiveRateLimiter.
type feedback interface {
	RecordSuccess()
	RecordError()
}

type Deps struct {
	Tracker   worklist.Tracker
	Extractor Extractor
	Generator llm.Generator
	Repairer  Repairer
	Sink      catalog.Sink
	// Prompts defaults to prompt.New("").
	Prompts PromptBuilder
	// Delay is waited on before every item. Nil means no delay.
	Delay   ratelimit.RateLimiter
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

type Options struct {
	Variant  prompt.Variant
	SkipDone bool
	// ItemRetries is how many times a failed item is re-queued behind the
	// remaining items before its failure is recorded.
	ItemRetries int
	// Progress receives the number of finished items and the total.
	Progress func(processed, total int)
}

type Summary struct {
	RunID      string
	Total      int
	Succeeded  int
	Duplicates int
	Failed     int
	Skipped    int
	Retried    int
	Stopped    bool
	StartedAt  time.Time
	FinishedAt time.Time
}

type Pipeline struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

func New(deps Deps, opts Options) (*Pipeline, error) {
	var missing []string
	if deps.Tracker == nil {
		missing = append(missing, "tracker")
	}
	if deps.Extractor == nil {
		missing = append(missing, "extractor")
	}
	if deps.Generator == nil {
		missing = append(missing, "generator")
	}
	if deps.Repairer == nil {
		missing = append(missing, "repairer")
	}
	if deps.Sink == nil {
		missing = append(missing, "sink")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingDependency, strings.Join(missing, ", "))
	}
	if opts.ItemRetries < 0 {
		return nil, fmt.Errorf("item retries must not be negative: %d", opts.ItemRetries)
	}

	if deps.Prompts == nil {
		deps.Prompts = prompt.New("")
	}
	if opts.Variant == "" {
		opts.Variant = prompt.Standard
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		deps:   deps,
		opts:   opts,
		logger: logger.With("component", "pipeline"),
	}, nil
}

// Run processes the worklist once. It returns an error only when the
// worklist cannot be read; cancellation ends the run with Summary.Stopped set.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	summary := Summary{RunID: uuid.NewString(), StartedAt: time.Now()}
	logger := p.logger.With("run_id", summary.RunID)

	items, err := p.deps.Tracker.List(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to list worklist: %w", err)
	}

	q := queue.NewInMemoryQueue()
	defer q.Close()

	for _, item := range items {
		switch {
		case p.opts.SkipDone && item.Done:
			summary.Skipped++
			logger.Debug("skipping crawled item", "id", item.ID)
			continue
		case !isHTTP(item.URL):
			summary.Skipped++
			p.deps.Metrics.IncItem("skipped")
			logger.Warn("skipping invalid url", "id", item.ID, "url", item.URL)
			continue
		}
		if err := q.Push(&queue.Task{ItemID: item.ID, URL: item.URL}); err != nil {
			return summary, fmt.Errorf("failed to queue item %d: %w", item.ID, err)
		}
		summary.Total++
	}

	logger.Info("starting run", "items", summary.Total, "skipped", summary.Skipped)

	processed := 0
	for {
		if ctx.Err() != nil {
			summary.Stopped = true
			break
		}

		task, err := q.TryPop()
		if err != nil {
			break
		}

		if p.deps.Delay != nil {
			if err := p.deps.Delay.Wait(ctx); err != nil {
				summary.Stopped = true
				break
			}
		}

		itemLog := logger.With("id", task.ItemID, "url", task.URL, "attempt", task.Retries+1)
		itemLog.Info("processing item", "position", processed+1, "total", summary.Total)

		inserted, err := p.processItem(ctx, task.URL)
		if err != nil && ctx.Err() != nil {
			summary.Stopped = true
			itemLog.Info("item interrupted", "error", err)
			break
		}

		if err != nil {
			p.recordFeedback(false)
			var stageErr *StageError
			if errors.As(err, &stageErr) {
				p.deps.Metrics.IncStageError(stageErr.Stage)
			}

			if task.Retries < p.opts.ItemRetries {
				task.Retries++
				task.LastError = err.Error()
				task.Priority = -task.Retries
				if pushErr := q.Push(task); pushErr == nil {
					summary.Retried++
					itemLog.Warn("item failed, retrying later", "error", err)
					continue
				}
			}

			summary.Failed++
			p.deps.Metrics.IncItem("failed")
			itemLog.Error("item failed", "error", err)
			p.update(ctx, itemLog, task.ItemID, false, err.Error())
		} else {
			p.recordFeedback(true)
			note := ""
			if inserted {
				summary.Succeeded++
				p.deps.Metrics.IncItem("succeeded")
				itemLog.Info("item added to catalog")
			} else {
				summary.Duplicates++
				p.deps.Metrics.IncItem("duplicate")
				note = NoteDuplicate
				itemLog.Info("item already in catalog")
			}
			p.update(ctx, itemLog, task.ItemID, true, note)
		}

		processed++
		if p.opts.Progress != nil {
			p.opts.Progress(processed, summary.Total)
		}
	}

	summary.FinishedAt = time.Now()
	logger.Info("run finished",
		"succeeded", summary.Succeeded,
		"duplicates", summary.Duplicates,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"stopped", summary.Stopped,
		"duration", summary.FinishedAt.Sub(summary.StartedAt))

	return summary, nil
}

// processItem reports whether the sink stored a new record.
func (p *Pipeline) processItem(ctx context.Context, url string) (bool, error) {
	text, found, err := p.deps.Extractor.Extract(ctx, url)
	if err != nil {
		return false, &StageError{Stage: StageExtract, Err: err}
	}
	if !found {
		return false, &StageError{Stage: StageExtract, Err: ErrNoContent}
	}

	promptText, err := p.deps.Prompts.Build(p.opts.Variant, text)
	if err != nil {
		return false, &StageError{Stage: StagePrompt, Err: err}
	}

	start := time.Now()
	raw, err := p.deps.Generator.Generate(ctx, promptText)
	p.deps.Metrics.ObserveLLM(time.Since(start), err)
	if err != nil {
		return false, &StageError{Stage: StageGenerate, Err: err}
	}

	res, err := p.deps.Repairer.RepairDetailed(raw)
	attempts := 0
	if res != nil {
		attempts = res.Attempts
	}
	var uerr *repair.UnparseableError
	if errors.As(err, &uerr) {
		attempts = uerr.Attempts
	}
	p.deps.Metrics.ObserveRepair(attempts, err)
	if err != nil {
		return false, &StageError{Stage: StageRepair, Err: err}
	}

	rec, err := catalog.Normalize(res.Value)
	if err != nil {
		return false, &StageError{Stage: StageNormalize, Err: err}
	}

	inserted, err := p.deps.Sink.Append(ctx, rec)
	if err != nil {
		return false, &StageError{Stage: StageAppend, Err: err}
	}
	p.deps.Metrics.ObserveAppend(inserted)

	return inserted, nil
}

func (p *Pipeline) recordFeedback(ok bool) {
	fb, isFeedback := p.deps.Delay.(feedback)
	if !isFeedback {
		return
	}
	if ok {
		fb.RecordSuccess()
	} else {
		fb.RecordError()
	}
}

// update records an outcome. A worklist write failure is logged and the run
// goes on.
func (p *Pipeline) update(ctx context.Context, logger *slog.Logger, id int, done bool, note string) {
	if err := p.deps.Tracker.Update(ctx, id, done, note); err != nil {
		logger.Error("failed to update worklist", "error", err)
	}
}

func isHTTP(url string) bool {
	return strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://")
}
