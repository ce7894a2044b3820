package collaborator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/okian/kaushal/internal/domain/analysis"
)

// Markers a clip can carry to steer the simulated provider. The e2e runner
// uses them to drive every failure path without a real model.
var (
	MarkerIntegrityFail = []byte("SIMULATE:integrity_fail")
	MarkerMalformed     = []byte("SIMULATE:malformed")
	MarkerError         = []byte("SIMULATE:error")
	MarkerHang          = []byte("SIMULATE:hang")
	MarkerOutOfRange    = []byte("SIMULATE:out_of_range")
)

var errSimulated = errors.New("simulated provider failure")

// simulatedMetric describes the headline measurement per test slug.
type simulatedMetric struct {
	name string
	unit string
	min  float64
	max  float64
}

var simulatedMetrics = map[string]simulatedMetric{
	"sprint":        {name: "top_speed", unit: "m/s", min: 5, max: 10},
	"vertical_jump": {name: "jump_height", unit: "cm", min: 25, max: 75},
	"agility":       {name: "split_time", unit: "s", min: 9, max: 14},
	"strength":      {name: "repetitions", unit: "reps", min: 10, max: 50},
	"endurance":     {name: "laps", unit: "laps", min: 4, max: 20},
}

// Simulated is a deterministic stand-in for the vision model. Output depends
// only on the clip bytes and test slug; latency is drawn from a range.
type Simulated struct {
	minLatency time.Duration
	maxLatency time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulated builds the simulated provider.
func NewSimulated(s Settings) *Simulated {
	return &Simulated{
		minLatency: s.MinLatency,
		maxLatency: s.MaxLatency,
		rng:        rand.New(rand.NewSource(s.Seed)), //nolint:gosec // reproducible latency
	}
}

func (s *Simulated) wait(ctx context.Context) error {
	latency := s.minLatency
	if span := s.maxLatency - s.minLatency; span > 0 {
		s.mu.Lock()
		latency += time.Duration(s.rng.Int63n(int64(span)))
		s.mu.Unlock()
	}
	t := time.NewTimer(latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (s *Simulated) CheckIntegrity(ctx context.Context, clip Clip) ([]byte, error) {
	if err := s.wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: integrity: %w", ErrCall, err)
	}
	if bytes.Contains(clip.Data, MarkerIntegrityFail) {
		return json.Marshal(analysis.IntegrityReport{
			IsValid:    false,
			Confidence: 0.93,
			Issues:     []string{"frame rate inconsistent with motion blur"},
		})
	}
	return json.Marshal(analysis.IntegrityReport{IsValid: true, Confidence: 0.9, Issues: []string{}})
}

func (s *Simulated) Analyze(ctx context.Context, req AnalysisRequest) ([]byte, error) {
	data := req.Clip.Data
	if bytes.Contains(data, MarkerHang) {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: analyze: %w", ErrCall, ctx.Err())
	}
	if err := s.wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: analyze: %w", ErrCall, err)
	}
	switch {
	case bytes.Contains(data, MarkerError):
		return nil, fmt.Errorf("%w: analyze: %w", ErrCall, errSimulated)
	case bytes.Contains(data, MarkerMalformed):
		return []byte("I'm unable to assess this video."), nil
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(req.TestSlug))
	_, _ = h.Write(data)
	sum := h.Sum64()
	frac := func(shift uint) float64 { return float64((sum>>shift)&0xffff) / 0xffff }

	score := 40 + 60*frac(0)
	if bytes.Contains(data, MarkerOutOfRange) {
		score = 142
	}
	m, ok := simulatedMetrics[req.TestSlug]
	if !ok {
		m = simulatedMetric{name: "movement_quality", unit: "score", min: 0, max: 10}
	}

	return json.Marshal(analysis.Result{
		PerformanceScore: round1(score),
		Metrics: []analysis.Metric{{
			Name:       m.name,
			Value:      round1(m.min + (m.max-m.min)*frac(16)),
			Unit:       m.unit,
			Confidence: round1(0.6 + 0.4*frac(32)),
		}},
		Feedback: "Consistent effort throughout the clip. Keep the core braced through the finish.",
		FormAnalysis: analysis.FormAnalysis{
			OverallForm:  round1(50 + 50*frac(48)),
			Improvements: []string{"arm drive"},
			Strengths:    []string{"balance"},
		},
		DetectedMovements: []string{req.TestSlug},
		RiskFactors:       []string{},
	})
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
