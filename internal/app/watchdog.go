package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/okian/kaushal/internal/adapters/notify"
	"github.com/okian/kaushal/internal/adapters/repository"
	"github.com/okian/kaushal/internal/domain/analysis"
	"github.com/okian/kaushal/internal/domain/model"
	"github.com/okian/kaushal/pkg/logger"
	"github.com/okian/kaushal/pkg/metrics"
)

const sweepBatch = 100

func (s *Service) watchdog(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.watchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if _, err := s.SweepStale(ctx); err != nil {
				s.logger.Error(ctx, "stale sweep failed", logger.Error(err))
			}
		}
	}
}

// SweepStale fails processing assessments not updated within the stale age
// and returns how many it failed. Rows finalized concurrently are skipped.
func (s *Service) SweepStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.staleAfter)
	ids, err := s.store.ListStaleProcessing(ctx, cutoff, sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list stale: %w", err)
	}

	details := fmt.Sprintf("no result within %s", s.staleAfter)
	blob, _ := json.Marshal(analysis.NewFailure(model.ReasonStaleProcessing, details, nil))

	swept := 0
	for _, id := range ids {
		err := s.store.Fail(ctx, id, model.ReasonStaleProcessing, blob)
		switch {
		case errors.Is(err, repository.ErrAlreadyFinalized), errors.Is(err, repository.ErrConflict):
			continue
		case err != nil:
			s.logger.Warn(ctx, "fail stale assessment", logger.String("assessment_id", id), logger.Error(err))
			continue
		}
		swept++
		metrics.RecordTransition(string(model.StatusFailed))
		metrics.RecordFailure(string(model.ReasonStaleProcessing))
		s.publish(ctx, notify.Event{AssessmentID: id, Status: string(model.StatusFailed), Reason: string(model.ReasonStaleProcessing)})
	}
	if swept > 0 {
		metrics.RecordStaleSwept(swept)
		s.logger.Warn(ctx, "stale assessments failed", logger.Int("count", swept))
	}
	return swept, nil
}
