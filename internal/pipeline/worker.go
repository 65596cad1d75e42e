package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dgallion1/treegest/internal/element"
	"github.com/dgallion1/treegest/internal/render"
	"go.uber.org/zap"
)

// Capturer loads a page into an element tree.
type Capturer interface {
	Capture(ctx context.Context, url string) (*element.Tree, error)
}

// Renderer serializes an element tree.
type Renderer interface {
	RenderTree(ctx context.Context, tree *element.Tree, params render.Params) (*render.Result, error)
}

// Worker processes a single capture job.
type Worker struct {
	capturer Capturer
	renderer Renderer
	log      *zap.Logger
	backoff  func(attempt int) time.Duration
}

func NewWorker(capturer Capturer, renderer Renderer, log *zap.Logger) *Worker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Worker{
		capturer: capturer,
		renderer: renderer,
		log:      log,
		backoff:  Backoff,
	}
}

// Process captures the job's page, retrying transient failures, and renders
// the resulting tree.
func (w *Worker) Process(ctx context.Context, job *Job) {
	log := w.log.With(zap.String("job_id", job.ID), zap.String("url", job.URL))

	// Phase 1: Capture
	job.SetStatus(StatusCapturing, "capturing")
	tree, err := w.capture(ctx, job, log)
	if err != nil {
		log.Error("capture failed", zap.Error(err))
		job.AddError(fmt.Sprintf("capture: %s", err))
		job.SetStatus(StatusFailed, "capturing")
		return
	}
	job.SetElements(tree.Len())
	log.Info("page captured", zap.Int("elements", tree.Len()))

	// Phase 2: Render
	job.SetStatus(StatusRendering, "rendering")
	res, err := w.renderer.RenderTree(ctx, tree, job.Params)
	if err != nil {
		log.Error("render failed", zap.Error(err))
		job.AddError(fmt.Sprintf("render: %s", err))
		job.SetStatus(StatusFailed, "rendering")
		return
	}
	job.SetResult(res)
	log.Info("render complete",
		zap.Int("visited", res.Visited),
		zap.Int("rendered", res.Rendered),
		zap.Int("tokens", res.Tokens),
	)
	job.SetStatus(StatusCompleted, "done")
}

func (w *Worker) capture(ctx context.Context, job *Job, log *zap.Logger) (*element.Tree, error) {
	var lastErr error
	for attempt := range MaxRetries {
		job.IncrAttempts()
		tree, err := w.capturer.Capture(ctx, job.URL)
		if err == nil {
			return tree, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == MaxRetries-1 {
			break
		}
		log.Warn("retryable capture error", zap.Int("attempt", attempt), zap.Error(err))
		job.AddError(err.Error())
		select {
		case <-time.After(w.backoff(attempt)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}
