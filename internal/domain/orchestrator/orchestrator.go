// Package orchestrator drives one assessment from processing to a terminal
// state: integrity pre-check, analysis, validation and persistence.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/okian/kaushal/internal/domain/analysis"
	"github.com/okian/kaushal/internal/domain/model"
	"github.com/okian/kaushal/pkg/logger"
	"github.com/okian/kaushal/pkg/metrics"
)

const (
	defaultTimeout = 90 * time.Second
	persistTimeout = 10 * time.Second

	callAnalysis  = "analysis"
	callIntegrity = "integrity"
)

// Outcome is the terminal result of one run.
type Outcome struct {
	AssessmentID string
	Status       model.Status
	Reason       model.FailureReason
	// Result is set when Status is completed.
	Result *analysis.Result
	// Issues lists integrity findings when Reason is integrity_failed.
	Issues []string
	// Err is the cause of a failure or of a run that could not start.
	Err error
}

// Orchestrator runs assessments. It is safe for concurrent use.
type Orchestrator struct {
	store    Store
	clips    Clips
	collab   Collaborator
	notifier Notifier
	timeout  time.Duration
	maxClip  int64
	now      func() time.Time
	log      logger.Logger
}

// New creates an orchestrator.
func New(store Store, clips Clips, collab Collaborator, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:    store,
		clips:    clips,
		collab:   collab,
		notifier: nopNotifier{},
		timeout:  defaultTimeout,
		maxClip:  50 << 20,
		now:      time.Now,
		log:      logger.Named("orchestrator"),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run finalizes the processing assessment id. It never retries; every
// failure after the clip is accepted ends in a persisted failed state.
func (o *Orchestrator) Run(ctx context.Context, id string) Outcome {
	log := o.log.With(logger.String("assessment_id", id))

	a, err := o.store.GetAssessment(ctx, id)
	if err != nil {
		log.Error(ctx, "load assessment", logger.Error(err))
		return Outcome{AssessmentID: id, Err: err}
	}
	if a.Status != model.StatusProcessing {
		// Finalized elsewhere, for example by the watchdog.
		return Outcome{AssessmentID: id, Status: a.Status, Reason: a.FailureReason, Err: ErrNotProcessing}
	}

	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	res, reason, issues, err := o.analyze(runCtx, log, a)
	if err == nil && runCtx.Err() != nil {
		reason, err = model.ReasonTimeout, runCtx.Err()
	}

	// Persist on a context that outlives the analysis deadline.
	pctx, pcancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer pcancel()

	if err != nil {
		return o.fail(pctx, log, id, reason, err, issues)
	}
	return o.complete(pctx, log, id, res)
}

func (o *Orchestrator) analyze(ctx context.Context, log logger.Logger, a model.Assessment) (*analysis.Result, model.FailureReason, []string, error) {
	tt, err := o.store.GetTestType(ctx, a.TestTypeID)
	if err != nil {
		return nil, model.ReasonAnalysisError, nil, fmt.Errorf("load test type: %w", err)
	}
	var athlete *model.Athlete
	if ath, err := o.store.GetAthlete(ctx, a.AthleteID); err == nil {
		athlete = &ath
	} else {
		log.Warn(ctx, "athlete context unavailable", logger.String("athlete_id", a.AthleteID), logger.Error(err))
	}

	clip, err := o.readClip(ctx, a.VideoKey)
	if err != nil {
		return nil, classify(ctx, model.ReasonAnalysisError), nil, fmt.Errorf("read clip: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, model.ReasonTimeout, nil, err
	}

	raw, err := o.call(ctx, callIntegrity, func(ctx context.Context) ([]byte, error) {
		return o.collab.CheckIntegrity(ctx, clip)
	})
	if err != nil {
		return nil, callReason(ctx, err), nil, err
	}
	report, err := analysis.ParseIntegrity(raw)
	if err != nil {
		return nil, model.ReasonMalformedResponse, nil, err
	}
	if !report.IsValid {
		return nil, model.ReasonIntegrityFailed, report.Issues, ErrIntegrity
	}
	if err := ctx.Err(); err != nil {
		return nil, model.ReasonTimeout, nil, err
	}

	raw, err = o.call(ctx, callAnalysis, func(ctx context.Context) ([]byte, error) {
		return o.collab.Analyze(ctx, analysis.Request{
			TestSlug: tt.Slug,
			Prompt:   analysis.BuildPrompt(&tt, athlete),
			Clip:     clip,
		})
	})
	if err != nil {
		return nil, callReason(ctx, err), nil, err
	}
	res, err := analysis.ParseResult(raw)
	if err != nil {
		return nil, model.ReasonMalformedResponse, nil, err
	}
	return &res, "", nil, nil
}

func (o *Orchestrator) readClip(ctx context.Context, key string) (analysis.Clip, error) {
	rc, info, err := o.clips.Open(ctx, key)
	if err != nil {
		return analysis.Clip{}, err
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, o.maxClip+1))
	if err != nil {
		return analysis.Clip{}, err
	}
	if int64(len(data)) > o.maxClip {
		return analysis.Clip{}, fmt.Errorf("clip exceeds %d bytes", o.maxClip)
	}
	return analysis.Clip{Data: data, MIME: info.ContentType}, nil
}

// call times one collaborator call and records its latency.
func (o *Orchestrator) call(ctx context.Context, name string, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	start := time.Now()
	raw, err := fn(ctx)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.RecordCollaboratorLatency(name, outcome, float64(time.Since(start).Microseconds())/1000)
	return raw, err
}

// callReason maps a collaborator call error to a failure reason. A call that
// produced no content is a malformed response rather than a transport error.
func callReason(ctx context.Context, err error) model.FailureReason {
	if errors.Is(err, analysis.ErrEmptyResponse) {
		return model.ReasonMalformedResponse
	}
	return classify(ctx, model.ReasonAnalysisError)
}

// classify maps a call error to timeout when the run deadline expired.
func classify(ctx context.Context, fallback model.FailureReason) model.FailureReason {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return model.ReasonTimeout
	}
	return fallback
}

func (o *Orchestrator) complete(ctx context.Context, log logger.Logger, id string, res *analysis.Result) Outcome {
	blob, err := json.Marshal(res)
	if err != nil {
		return o.fail(ctx, log, id, model.ReasonMalformedResponse, err, nil)
	}
	err = o.store.Complete(ctx, id, res.PerformanceScore, res.Feedback, blob, res.ModelMetrics(id))
	if err != nil {
		return o.persistFailed(ctx, log, id, err)
	}

	metrics.RecordTransition(string(model.StatusCompleted))
	log.Info(ctx, "assessment completed",
		logger.Float64("score", res.PerformanceScore),
		logger.Int("metrics", len(res.Metrics)))
	score := res.PerformanceScore
	o.publish(ctx, log, model.StatusEvent{AssessmentID: id, Status: string(model.StatusCompleted), PerformanceScore: &score})
	return Outcome{AssessmentID: id, Status: model.StatusCompleted, Result: res}
}

func (o *Orchestrator) fail(ctx context.Context, log logger.Logger, id string, reason model.FailureReason, cause error, issues []string) Outcome {
	details := cause.Error()
	if reason == model.ReasonIntegrityFailed {
		details = "Video integrity check failed"
	}
	blob, _ := json.Marshal(analysis.NewFailure(reason, details, issues))

	if err := o.store.Fail(ctx, id, reason, blob); err != nil {
		return o.persistFailed(ctx, log, id, err)
	}

	metrics.RecordTransition(string(model.StatusFailed))
	metrics.RecordFailure(string(reason))
	log.Warn(ctx, "assessment failed", logger.String("reason", string(reason)), logger.Error(cause))
	o.publish(ctx, log, model.StatusEvent{AssessmentID: id, Status: string(model.StatusFailed), Reason: string(reason)})
	return Outcome{AssessmentID: id, Status: model.StatusFailed, Reason: reason, Issues: issues, Err: cause}
}

// persistFailed reports the stored state when a terminal write was refused,
// or leaves the assessment in processing for the watchdog when the store failed.
func (o *Orchestrator) persistFailed(ctx context.Context, log logger.Logger, id string, err error) Outcome {
	if errors.Is(err, model.ErrAlreadyFinalized) {
		if a, gerr := o.store.GetAssessment(ctx, id); gerr == nil {
			return Outcome{AssessmentID: id, Status: a.Status, Reason: a.FailureReason, Err: ErrNotProcessing}
		}
	}
	metrics.RecordErrorByComponent("orchestrator", "persist")
	log.Error(ctx, "persist terminal state", logger.Error(err))
	return Outcome{AssessmentID: id, Status: model.StatusProcessing, Err: fmt.Errorf("%w: %w", ErrPersist, err)}
}

func (o *Orchestrator) publish(ctx context.Context, log logger.Logger, ev model.StatusEvent) {
	ev.At = o.now().UTC()
	if err := o.notifier.Notify(ctx, ev); err != nil {
		log.Debug(ctx, "status push failed", logger.Error(err))
	}
}
