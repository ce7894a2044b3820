// Package service wires storage, the analysis pipeline and the worker pool
// into the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/okian/kaushal/internal/adapters/collaborator"
	eventqueue "github.com/okian/kaushal/internal/adapters/mq/queue"
	workerpool "github.com/okian/kaushal/internal/adapters/mq/worker"
	"github.com/okian/kaushal/internal/adapters/notify"
	"github.com/okian/kaushal/internal/adapters/repository"
	"github.com/okian/kaushal/internal/adapters/storage"
	"github.com/okian/kaushal/internal/domain/analysis"
	"github.com/okian/kaushal/internal/domain/claim"
	"github.com/okian/kaushal/internal/domain/identity"
	"github.com/okian/kaushal/internal/domain/model"
	"github.com/okian/kaushal/internal/domain/orchestrator"
	"github.com/okian/kaushal/internal/domain/types"
	"github.com/okian/kaushal/pkg/logger"
	"github.com/okian/kaushal/pkg/metrics"
)

// Service implements the API dependencies for the assessment pipeline.
type Service struct {
	mu sync.RWMutex

	// Injected
	store    repository.Store
	clips    storage.ClipStore
	collab   collaborator.Collaborator
	notifier notify.Notifier

	// Built on Start
	catalog    *analysis.Catalog
	jobs       eventqueue.Queue
	claims     claim.Guard
	runner     *orchestrator.Orchestrator
	workerPool *workerpool.Pool

	// Configuration
	workerCount      int
	queueSize        int
	maxInflight      int
	maxUploadBytes   int64
	analysisTimeout  time.Duration
	staleAfter       time.Duration
	watchdogInterval time.Duration
	seed             []model.TestType

	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	now     func() time.Time

	logger logger.Logger
}

// New constructs a Service over its adapters. Nothing runs until Start.
func New(store repository.Store, clips storage.ClipStore, collab collaborator.Collaborator, opts ...Option) *Service {
	s := &Service{
		store:            store,
		clips:            clips,
		collab:           collab,
		notifier:         notify.Nop{},
		workerCount:      runtime.NumCPU() * 2,
		queueSize:        1024,
		maxInflight:      256,
		maxUploadBytes:   50 << 20,
		analysisTimeout:  90 * time.Second,
		staleAfter:       5 * time.Minute,
		watchdogInterval: 30 * time.Second,
		now:              time.Now,
		logger:           logger.Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start seeds the catalog and starts the workers and the watchdog.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if err := s.seedCatalog(ctx); err != nil {
		return err
	}

	s.jobs = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.claims = claim.NewInMemoryGuard(claim.WithCapacity(s.maxInflight))
	s.runner = orchestrator.New(s.store, s.clips, s.collab,
		orchestrator.WithTimeout(s.analysisTimeout),
		orchestrator.WithMaxClipBytes(s.maxUploadBytes),
		orchestrator.WithNotifier(s.notifier),
		orchestrator.WithClock(s.now),
	)

	// Workers outlive the request that started the service.
	runCtx := context.WithoutCancel(ctx)
	s.workerPool = workerpool.NewPool(s.workerCount, s.jobs, s.runner)
	s.workerPool.Start(runCtx)

	s.stopCh = make(chan struct{})
	if s.watchdogInterval > 0 {
		s.wg.Add(1)
		go s.watchdog(runCtx, s.stopCh)
	}

	s.started = true
	s.logger.Info(ctx, "assessment service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Duration("analysisTimeout", s.analysisTimeout),
	)
	return nil
}

func (s *Service) seedCatalog(ctx context.Context) error {
	seed := s.seed
	if seed == nil {
		builtin, err := analysis.BuiltinTestTypes()
		if err != nil {
			return err
		}
		seed = builtin
	}
	for i := range seed {
		tt := seed[i]
		if err := s.store.UpsertTestType(ctx, &tt); err != nil {
			return fmt.Errorf("seed test type %s: %w", tt.Slug, err)
		}
	}
	return s.reloadCatalog(ctx)
}

func (s *Service) reloadCatalog(ctx context.Context) error {
	all, err := s.store.ListTestTypes(ctx, true)
	if err != nil {
		return fmt.Errorf("load test types: %w", err)
	}
	s.catalog = analysis.NewCatalog(all)
	return nil
}

// Stop drains the workers and stops the watchdog. Adapters stay open; their
// owner closes them.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping assessment service...")

	close(s.stopCh)
	s.wg.Wait()

	if s.workerPool != nil {
		if err := s.workerPool.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "assessment service stopped")
}

func (s *Service) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// CreateAthlete stores a new athlete. The caller identity fills in a missing user id.
func (s *Service) CreateAthlete(ctx context.Context, req types.CreateAthleteRequest) (types.Athlete, error) {
	a := model.Athlete{
		UserID:       strings.TrimSpace(req.UserID),
		Age:          req.Age,
		HeightCm:     req.HeightCm,
		WeightKg:     req.WeightKg,
		PrimarySport: strings.TrimSpace(req.PrimarySport),
		Location:     strings.TrimSpace(req.Location),
	}
	if a.UserID == "" {
		a.UserID = identity.FromContext(ctx).UserID
	}
	switch {
	case a.UserID == "":
		return types.Athlete{}, fmt.Errorf("%w: userId is required", ErrInvalidInput)
	case a.Age != nil && (*a.Age <= 0 || *a.Age > 120):
		return types.Athlete{}, fmt.Errorf("%w: age out of range", ErrInvalidInput)
	case a.HeightCm != nil && *a.HeightCm <= 0:
		return types.Athlete{}, fmt.Errorf("%w: height must be positive", ErrInvalidInput)
	case a.WeightKg != nil && *a.WeightKg <= 0:
		return types.Athlete{}, fmt.Errorf("%w: weight must be positive", ErrInvalidInput)
	}
	if err := s.store.CreateAthlete(ctx, &a); err != nil {
		return types.Athlete{}, err
	}
	return types.FromAthlete(&a), nil
}

// GetAthlete returns one athlete.
func (s *Service) GetAthlete(ctx context.Context, id string) (types.Athlete, error) {
	a, err := s.store.GetAthlete(ctx, id)
	if err != nil {
		return types.Athlete{}, err
	}
	return types.FromAthlete(&a), nil
}

// ListTestTypes returns the active test types.
func (s *Service) ListTestTypes(ctx context.Context) ([]types.TestType, error) {
	all, err := s.store.ListTestTypes(ctx, true)
	if err != nil {
		return nil, err
	}
	out := make([]types.TestType, 0, len(all))
	for i := range all {
		out = append(out, types.FromTestType(&all[i]))
	}
	return out, nil
}

// CreateTestType adds or updates a test type by slug.
func (s *Service) CreateTestType(ctx context.Context, req types.CreateTestTypeRequest) (types.TestType, error) {
	tt := model.TestType{
		Slug:                 analysis.NormalizeSlug(req.Slug),
		Name:                 strings.TrimSpace(req.Name),
		Category:             strings.TrimSpace(req.Category),
		Description:          req.Description,
		Instructions:         req.Instructions,
		PromptHint:           req.PromptHint,
		EstimatedDurationMin: req.EstimatedDurationMin,
		Difficulty:           req.Difficulty,
		Active:               true,
	}
	if tt.Slug == "" {
		tt.Slug = analysis.NormalizeSlug(tt.Name)
	}
	if tt.Slug == "" || tt.Name == "" {
		return types.TestType{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := s.store.UpsertTestType(ctx, &tt); err != nil {
		return types.TestType{}, err
	}

	s.mu.Lock()
	err := s.reloadCatalog(ctx)
	s.mu.Unlock()
	if err != nil {
		s.logger.Warn(ctx, "catalog reload failed", logger.Error(err))
	}
	return types.FromTestType(&tt), nil
}

// CreateAssessment opens a pending assessment. A free-form test type name is
// resolved through the catalog when no id is given.
func (s *Service) CreateAssessment(ctx context.Context, req types.CreateAssessmentRequest) (types.Assessment, error) {
	if strings.TrimSpace(req.AthleteID) == "" {
		return types.Assessment{}, fmt.Errorf("%w: athleteId is required", ErrInvalidInput)
	}
	if _, err := s.store.GetAthlete(ctx, req.AthleteID); err != nil {
		return types.Assessment{}, err
	}

	testTypeID := strings.TrimSpace(req.TestTypeID)
	switch {
	case testTypeID != "":
		if _, err := s.store.GetTestType(ctx, testTypeID); err != nil {
			return types.Assessment{}, err
		}
	case strings.TrimSpace(req.TestType) != "":
		s.mu.RLock()
		cat := s.catalog
		s.mu.RUnlock()
		if cat == nil {
			return types.Assessment{}, ErrNotStarted
		}
		tt, err := cat.Resolve(req.TestType)
		if err != nil {
			return types.Assessment{}, fmt.Errorf("%w: %q", err, req.TestType)
		}
		testTypeID = tt.ID
	default:
		return types.Assessment{}, fmt.Errorf("%w: testTypeId or testType is required", ErrInvalidInput)
	}

	a := model.Assessment{
		AthleteID:  req.AthleteID,
		TestTypeID: testTypeID,
		Metadata:   req.Metadata,
	}
	if err := s.store.CreateAssessment(ctx, &a); err != nil {
		return types.Assessment{}, err
	}
	metrics.RecordTransition(string(model.StatusPending))
	return types.FromAssessment(&a, nil), nil
}

// GetAssessment returns the current persisted view used by polling clients.
func (s *Service) GetAssessment(ctx context.Context, id string) (types.Assessment, error) {
	a, err := s.store.GetAssessment(ctx, id)
	if err != nil {
		return types.Assessment{}, err
	}
	var rows []model.PerformanceMetric
	if a.Status == model.StatusCompleted {
		if rows, err = s.store.ListMetrics(ctx, id); err != nil {
			return types.Assessment{}, err
		}
	}
	return types.FromAssessment(&a, rows), nil
}

// OpenVideo returns the stored clip of an assessment.
func (s *Service) OpenVideo(ctx context.Context, id string) (Video, error) {
	a, err := s.store.GetAssessment(ctx, id)
	if err != nil {
		return Video{}, err
	}
	if a.VideoKey == "" {
		return Video{}, fmt.Errorf("%w: assessment has no video", ErrNotFound)
	}
	rc, info, err := s.clips.Open(ctx, a.VideoKey)
	if errors.Is(err, storage.ErrNotFound) {
		return Video{}, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if err != nil {
		return Video{}, err
	}
	return Video{Body: rc, Size: info.Size, ContentType: info.ContentType, Name: a.VideoKey}, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
	}
	if !s.started {
		return stats
	}

	queueLen := s.jobs.Len(ctx)
	stats["queueLength"] = queueLen
	stats["uploadsInFlight"] = s.claims.Len()
	metrics.UpdateQueueSize(queueLen)

	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		s.logger.Warn(ctx, "count by status", logger.Error(err))
		return stats
	}
	byStatus := make(map[string]int, len(counts))
	for _, st := range []model.Status{model.StatusPending, model.StatusProcessing, model.StatusCompleted, model.StatusFailed} {
		byStatus[string(st)] = counts[st]
		metrics.UpdateAssessmentsByStatus(string(st), counts[st])
	}
	stats["assessments"] = byStatus
	return stats
}
