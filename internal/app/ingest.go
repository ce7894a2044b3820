package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"sync"
	"time"

	eventqueue "github.com/okian/kaushal/internal/adapters/mq/queue"
	"github.com/okian/kaushal/internal/adapters/notify"
	"github.com/okian/kaushal/internal/adapters/repository"
	"github.com/okian/kaushal/internal/domain/analysis"
	"github.com/okian/kaushal/internal/domain/claim"
	"github.com/okian/kaushal/internal/domain/model"
	"github.com/okian/kaushal/internal/domain/orchestrator"
	"github.com/okian/kaushal/internal/domain/types"
	"github.com/okian/kaushal/pkg/logger"
	"github.com/okian/kaushal/pkg/metrics"
)

const terminalWriteTimeout = 10 * time.Second

// Upload is one clip submitted for an assessment.
type Upload struct {
	AssessmentID string
	Filename     string
	ContentType  string
	Body         io.Reader
	// Duration is the client-reported clip length in seconds.
	Duration *int
	// Wait blocks until analysis finishes or ctx ends.
	Wait bool
}

// IngestResult is the state after an accepted upload.
type IngestResult struct {
	Assessment types.Assessment
	// Outcome is set when the caller waited and the analysis finished.
	Outcome *orchestrator.Outcome
}

// Video is an opened clip. The caller closes Body.
type Video struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
	Name        string
}

// Ingest validates and stores a clip, moves the assessment to processing and
// queues its analysis. Rejections leave the assessment untouched.
func (s *Service) Ingest(ctx context.Context, up Upload) (IngestResult, error) {
	if !s.running() {
		return IngestResult{}, ErrNotStarted
	}
	id := strings.TrimSpace(up.AssessmentID)
	log := s.logger.With(logger.String("assessment_id", id))

	if err := s.claims.Claim(ctx, id); err != nil {
		if errors.Is(err, claim.ErrCapacity) {
			metrics.RecordUploadRejected("capacity")
		} else {
			metrics.RecordUploadRejected("in_flight")
		}
		return IngestResult{}, err
	}
	release := sync.OnceFunc(func() { s.claims.Release(ctx, id) })
	defer release()

	a, err := s.store.GetAssessment(ctx, id)
	if err != nil {
		metrics.RecordUploadRejected("not_found")
		return IngestResult{}, err
	}
	if a.Status != model.StatusPending {
		metrics.RecordUploadRejected("not_pending")
		return IngestResult{}, fmt.Errorf("%w: status is %s", ErrNotPending, a.Status)
	}

	contentType, ok := videoType(up.ContentType)
	if !ok {
		metrics.RecordUploadRejected("media_type")
		return IngestResult{}, fmt.Errorf("%w: got %q", ErrUnsupportedMedia, up.ContentType)
	}
	if up.Duration != nil && *up.Duration < 0 {
		metrics.RecordUploadRejected("duration")
		return IngestResult{}, fmt.Errorf("%w: duration must not be negative", ErrInvalidInput)
	}

	body := &capReader{r: up.Body, remaining: s.maxUploadBytes}
	key, size, err := s.clips.Save(ctx, up.Filename, contentType, body)
	if body.exceeded {
		if err == nil {
			s.removeClip(ctx, log, key)
		}
		metrics.RecordUploadRejected("too_large")
		return IngestResult{}, fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, s.maxUploadBytes)
	}
	if err != nil {
		metrics.RecordErrorByComponent("service", "clip_save")
		return IngestResult{}, fmt.Errorf("store clip: %w", err)
	}
	if size == 0 {
		s.removeClip(ctx, log, key)
		metrics.RecordUploadRejected("empty")
		return IngestResult{}, fmt.Errorf("%w: video file is empty", ErrInvalidInput)
	}

	if err := s.store.MarkProcessing(ctx, id, key, up.Duration); err != nil {
		s.removeClip(ctx, log, key)
		if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrAlreadyFinalized) {
			metrics.RecordUploadRejected("not_pending")
			return IngestResult{}, fmt.Errorf("%w: %w", ErrNotPending, err)
		}
		return IngestResult{}, err
	}
	// The conditional update now rejects duplicates; the claim is no longer needed.
	release()
	metrics.RecordUploadAccepted(size)
	metrics.RecordTransition(string(model.StatusProcessing))
	log.Info(ctx, "video accepted", logger.String("key", key), logger.Int64("bytes", size))
	s.publish(ctx, notify.Event{AssessmentID: id, Status: string(model.StatusProcessing)})

	// The status has flipped; from here on the request must not abort the work.
	bg := context.WithoutCancel(ctx)
	job := eventqueue.NewJob(id)
	if err := s.jobs.Enqueue(bg, job); err != nil {
		s.failQueued(bg, log, id, err)
		return IngestResult{}, fmt.Errorf("%w: %w", ErrQueueFull, err)
	}

	if !up.Wait {
		view, err := s.GetAssessment(bg, id)
		return IngestResult{Assessment: view}, err
	}

	select {
	case out := <-job.Done:
		view, err := s.GetAssessment(bg, id)
		return IngestResult{Assessment: view, Outcome: &out}, err
	case <-ctx.Done():
		view, err := s.GetAssessment(bg, id)
		return IngestResult{Assessment: view}, err
	}
}

// failQueued finalizes an assessment whose job could not be queued.
func (s *Service) failQueued(ctx context.Context, log logger.Logger, id string, cause error) {
	wctx, cancel := context.WithTimeout(ctx, terminalWriteTimeout)
	defer cancel()

	blob, _ := json.Marshal(analysis.NewFailure(model.ReasonQueueFull, cause.Error(), nil))
	if err := s.store.Fail(wctx, id, model.ReasonQueueFull, blob); err != nil {
		log.Error(ctx, "fail unqueued assessment", logger.Error(err))
		return
	}
	metrics.RecordTransition(string(model.StatusFailed))
	metrics.RecordFailure(string(model.ReasonQueueFull))
	log.Warn(ctx, "analysis queue full", logger.Error(cause))
	s.publish(ctx, notify.Event{AssessmentID: id, Status: string(model.StatusFailed), Reason: string(model.ReasonQueueFull)})
}

func (s *Service) removeClip(ctx context.Context, log logger.Logger, key string) {
	if err := s.clips.Remove(context.WithoutCancel(ctx), key); err != nil {
		log.Warn(ctx, "remove rejected clip", logger.String("key", key), logger.Error(err))
	}
}

func (s *Service) publish(ctx context.Context, ev notify.Event) {
	ev.At = s.now().UTC()
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Debug(ctx, "status push failed", logger.Error(err))
	}
}

// videoType returns the media type when it is a video type.
func videoType(contentType string) (string, bool) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = strings.ToLower(strings.TrimSpace(contentType))
	}
	return mt, strings.HasPrefix(mt, "video/")
}

// capReader fails once more than remaining bytes are read.
type capReader struct {
	r         io.Reader
	remaining int64
	exceeded  bool
}

func (c *capReader) Read(p []byte) (int, error) {
	if c.exceeded {
		return 0, ErrTooLarge
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		c.exceeded = true
		return n, ErrTooLarge
	}
	return n, err
}
