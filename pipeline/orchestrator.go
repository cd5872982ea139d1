package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/athenadocs/athena/document"
)

// Options configures the orchestrator's worker pool and retry behavior.
type Options struct {
	Workers     int
	QueueSize   int
	StagePolicy RetryPolicy // applied to Summarize and Embed
	Retention   time.Duration
}

// Orchestrator runs stage chains with at-most-one-active-run-per-document
// semantics enforced by dispatch: stages of one run execute strictly in
// sequence on a single worker, while runs for different documents proceed in
// parallel across the pool.
type Orchestrator struct {
	store    Store
	stages   map[StageName]Stage
	policies map[StageName]RetryPolicy
	queue    chan *Run
	runs     *RunStore
	logger   *slog.Logger
	opts     Options

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewOrchestrator(store Store, stages []Stage, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Retention <= 0 {
		opts.Retention = 24 * time.Hour
	}

	byName := make(map[StageName]Stage, len(stages))
	for _, s := range stages {
		byName[s.Name()] = s
	}

	// Extraction failures are fatal for the chain; only the later stages
	// get the transient-retry policy.
	policies := map[StageName]RetryPolicy{
		StageExtractAndChunk: {MaxAttempts: 1},
		StageSummarize:       opts.StagePolicy,
		StageEmbed:           opts.StagePolicy,
	}

	return &Orchestrator{
		store:    store,
		stages:   byName,
		policies: policies,
		queue:    make(chan *Run, opts.QueueSize),
		runs:     NewRunStore(logger),
		logger:   logger,
		opts:     opts,
	}
}

// Start launches the worker pool and the run-store cleanup.
func (o *Orchestrator) Start(ctx context.Context) {
	o.baseCtx, o.cancel = context.WithCancel(ctx)

	for i := 0; i < o.opts.Workers; i++ {
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			for {
				select {
				case <-o.baseCtx.Done():
					return
				case run, ok := <-o.queue:
					if !ok {
						return
					}
					o.process(run)
				}
			}
		}()
	}

	o.runs.StartCleanup(o.opts.Retention, time.Hour)
}

// Stop shuts the pool down, waiting for in-flight runs to finish their
// current stage.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	close(o.queue)
	o.wg.Wait()
	o.runs.StopCleanup()
}

// Dispatch enqueues the stage suffix implied by from for the document and
// records the new task handle on the row. It returns the handle.
func (o *Orchestrator) Dispatch(ctx context.Context, docID string, from document.Status) (string, error) {
	stages := StagesFor(from)
	if len(stages) == 0 {
		return "", fmt.Errorf("no stages to run for status %s", from)
	}

	handle := uuid.NewString()
	if err := o.store.SetTaskHandle(ctx, docID, handle); err != nil {
		return "", err
	}
	return handle, o.enqueue(docID, handle, stages)
}

// Resume re-dispatches the remaining stage suffix for a failed document.
// Clearing is_failed and recording the new task handle happen in a single
// atomic write before enqueueing; if the queue rejects the run, the failure
// flag is restored so the document never looks healthy while stuck.
func (o *Orchestrator) Resume(ctx context.Context, docID string) (string, error) {
	doc, err := o.store.GetDocument(ctx, docID)
	if err != nil {
		return "", err
	}

	stages := StagesFor(doc.Status)
	if len(stages) == 0 {
		return "", fmt.Errorf("no stages to retry for status %s", doc.Status)
	}

	handle := uuid.NewString()
	if err := o.store.BeginRetry(ctx, docID, handle); err != nil {
		return "", err
	}

	if err := o.enqueue(docID, handle, stages); err != nil {
		if restoreErr := o.store.MarkFailed(ctx, docID); restoreErr != nil {
			o.logger.Error("Failed to restore failure flag after enqueue rejection",
				slog.String("document_id", docID),
				slog.String("error", restoreErr.Error()))
		}
		return "", err
	}
	return handle, nil
}

// Revoke asks a running chain to stop. Best-effort: work already committed
// stays committed, and the document keeps whatever status the last completed
// atomic write established.
func (o *Orchestrator) Revoke(handle string) bool {
	if handle == "" {
		return false
	}
	return o.runs.Cancel(handle)
}

func (o *Orchestrator) enqueue(docID, handle string, stages []StageName) error {
	runCtx, cancel := context.WithCancel(o.baseCtx)
	run := &Run{
		Handle:     handle,
		DocumentID: docID,
		Stages:     stages,
		EnqueuedAt: timeProvider.Now(),
		ctx:        runCtx,
		cancel:     cancel,
	}
	o.runs.Put(run)

	select {
	case o.queue <- run:
		return nil
	default:
		cancel()
		run.markCompleted(timeProvider.Now())
		return fmt.Errorf("pipeline queue is full (%d)", o.opts.QueueSize)
	}
}

func (o *Orchestrator) process(run *Run) {
	defer run.cancel()
	defer run.markCompleted(timeProvider.Now())

	log := o.logger.With(
		slog.String("document_id", run.DocumentID),
		slog.String("task_handle", run.Handle))

	for _, name := range run.Stages {
		stage, ok := o.stages[name]
		if !ok {
			log.Error("Unknown stage in chain", slog.String("stage", string(name)))
			o.markFailed(run.DocumentID, log)
			return
		}

		err := o.policies[name].Execute(run.ctx, log, string(name),
			func(ctx context.Context) error {
				return stage.Run(ctx, run.DocumentID)
			},
			func(attemptErr error) {
				if errors.Is(attemptErr, context.Canceled) {
					return
				}
				// Raise the flag before any backoff so the document is
				// queryable as failed while the retry waits.
				o.markFailed(run.DocumentID, log)
			})
		if err != nil {
			if errors.Is(err, context.Canceled) {
				// Revoked. Committed partial work stands; the caller
				// resolves the document via explicit retry or delete.
				log.Warn("Run cancelled", slog.String("stage", string(name)))
				return
			}
			log.Error("Stage failed, chain halted",
				slog.String("stage", string(name)),
				slog.Bool("structural", IsStructural(err)),
				slog.Bool("transient", IsTransient(err)),
				slog.String("error", err.Error()))
			return
		}
	}

	log.Info("Pipeline run completed")
}

func (o *Orchestrator) markFailed(docID string, log *slog.Logger) {
	// The run context may already be cancelled; the flag write gets its own
	// deadline.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.store.MarkFailed(ctx, docID); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Failed to mark document failed", slog.String("error", err.Error()))
	}
}
