// Package poll watches an assessment by re-reading it on a fixed interval
// while it is processing.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/kaushal/internal/domain/model"
	"github.com/okian/kaushal/internal/domain/types"
	"github.com/okian/kaushal/pkg/logger"
)

const (
	defaultInterval  = 2 * time.Second
	defaultMaxErrors = 3
)

var (
	// ErrStatusRegressed means the server reported a status behind one
	// already observed.
	ErrStatusRegressed = errors.New("assessment status moved backwards")
	// ErrNotProcessing means the assessment was still pending, so there is
	// nothing to wait for.
	ErrNotProcessing = errors.New("assessment is not processing")
)

// Getter reads one assessment.
type Getter interface {
	GetAssessment(ctx context.Context, id string) (types.Assessment, error)
}

// Poller re-reads an assessment until it reaches a terminal status.
type Poller struct {
	get       Getter
	interval  time.Duration
	maxErrors int
	log       logger.Logger
}

// Option configures a Poller.
type Option func(*Poller)

// WithInterval sets the delay between reads.
func WithInterval(d time.Duration) Option {
	return func(p *Poller) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithMaxErrors sets how many consecutive read errors end the watch.
func WithMaxErrors(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxErrors = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.log = l
		}
	}
}

// New creates a Poller reading through get.
func New(get Getter, opts ...Option) *Poller {
	p := &Poller{
		get:       get,
		interval:  defaultInterval,
		maxErrors: defaultMaxErrors,
		log:       logger.Named("poll"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Watch reads the assessment immediately and then once per interval while
// it is processing. onUpdate sees every observation whose status differs
// from the previous one. The terminal assessment is returned with a nil
// error.
func (p *Poller) Watch(ctx context.Context, id string, onUpdate func(types.Assessment)) (types.Assessment, error) {
	var (
		last     types.Assessment
		seen     bool
		failures int
	)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-timer.C:
		}

		a, err := p.get.GetAssessment(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			failures++
			p.log.Warn(ctx, "poll read failed", logger.String("assessment_id", id),
				logger.Int("consecutive", failures), logger.Error(err))
			if failures >= p.maxErrors {
				return last, fmt.Errorf("poll %s: %w", id, err)
			}
			timer.Reset(p.interval)
			continue
		}
		failures = 0

		if seen && a.Status.Rank() < last.Status.Rank() {
			return last, fmt.Errorf("%w: %s after %s", ErrStatusRegressed, a.Status, last.Status)
		}
		if !seen || a.Status != last.Status {
			if onUpdate != nil {
				onUpdate(a)
			}
		}
		seen = true
		last = a

		switch {
		case a.Status.IsTerminal():
			return a, nil
		case a.Status != model.StatusProcessing:
			return a, ErrNotProcessing
		}
		timer.Reset(p.interval)
	}
}
