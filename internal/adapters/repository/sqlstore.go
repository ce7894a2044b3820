package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"  // postgres driver
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/okian/kaushal/internal/domain/model"
	"github.com/okian/kaushal/pkg/logger"
	"github.com/okian/kaushal/pkg/metrics"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const sqlitePragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// SQLStore implements Store on database/sql for SQLite and PostgreSQL.
// Queries are written with ? placeholders and rebound per driver.
type SQLStore struct {
	db     *sql.DB
	driver string
	now    func() time.Time
	log    logger.Logger

	maxOpenConns   int
	skipMigrations bool
}

// Open connects to the database, verifies the connection and applies migrations.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*SQLStore, error) {
	const op = "repository.Open"

	s := &SQLStore{
		driver:       driver,
		now:          time.Now,
		log:          logger.Named("store"),
		maxOpenConns: 10,
	}
	for _, opt := range opts {
		opt(s)
	}

	switch driver {
	case DriverSQLite:
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, NewKind(op, ErrUnknownDriver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if driver == DriverSQLite {
		// One writer; WAL lets readers proceed from the same connection.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(s.maxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: ping: %w", op, err)
	}
	s.db = db

	if !s.skipMigrations {
		applied, err := s.Migrate(ctx)
		if err != nil {
			db.Close()
			return nil, err
		}
		if len(applied) > 0 {
			s.log.Info(ctx, "migrations applied", logger.Any("versions", applied), logger.String("driver", driver))
		}
	}
	return s, nil
}

// sqliteDSN turns a plain path into a URI carrying the connection pragmas.
// DSNs that already carry parameters are used as given.
func sqliteDSN(dsn string) string {
	if strings.Contains(dsn, "?") || dsn == ":memory:" {
		return dsn
	}
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	return dsn + "?" + sqlitePragmas
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(q string) string {
	if s.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for i := 0; i < len(q); i++ {
		if q[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(q[i])
	}
	return b.String()
}

func (s *SQLStore) stamp() int64 {
	return s.now().UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Athletes

func (s *SQLStore) CreateAthlete(ctx context.Context, a *model.Athlete) error {
	const op = "repository.CreateAthlete"
	if a == nil {
		return NewKind(op, ErrInvalidArgument)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	ms := s.stamp()
	a.CreatedAt = fromMillis(ms)

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO athletes (id, user_id, age, height_cm, weight_kg, primary_sport, location, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.UserID, nullInt(a.Age), nullFloat(a.HeightCm), nullFloat(a.WeightKg), a.PrimarySport, a.Location, ms)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLStore) GetAthlete(ctx context.Context, id string) (model.Athlete, error) {
	const op = "repository.GetAthlete"
	var (
		a      model.Athlete
		age    sql.NullInt64
		height sql.NullFloat64
		weight sql.NullFloat64
		ms     int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, user_id, age, height_cm, weight_kg, primary_sport, location, created_at
		FROM athletes WHERE id = ?`), id).
		Scan(&a.ID, &a.UserID, &age, &height, &weight, &a.PrimarySport, &a.Location, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Athlete{}, NewKind(op, ErrNotFound)
	}
	if err != nil {
		return model.Athlete{}, fmt.Errorf("%s: %w", op, err)
	}
	if age.Valid {
		v := int(age.Int64)
		a.Age = &v
	}
	if height.Valid {
		a.HeightCm = &height.Float64
	}
	if weight.Valid {
		a.WeightKg = &weight.Float64
	}
	a.CreatedAt = fromMillis(ms)
	return a, nil
}

// Test types

const testTypeColumns = `id, slug, name, category, description, instructions, prompt_hint,
	estimated_duration_min, difficulty, is_active, created_at`

func (s *SQLStore) UpsertTestType(ctx context.Context, t *model.TestType) error {
	const op = "repository.UpsertTestType"
	if t == nil || t.Slug == "" || t.Name == "" {
		return NewKind(op, ErrInvalidArgument)
	}
	id := t.ID
	if id == "" {
		id = uuid.NewString()
	}

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO test_types (`+testTypeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (slug) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			description = excluded.description,
			instructions = excluded.instructions,
			prompt_hint = excluded.prompt_hint,
			estimated_duration_min = excluded.estimated_duration_min,
			difficulty = excluded.difficulty,
			is_active = excluded.is_active`),
		id, t.Slug, t.Name, t.Category, t.Description, t.Instructions, t.PromptHint,
		t.EstimatedDurationMin, t.Difficulty, t.Active, s.stamp())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	stored, err := s.GetTestTypeBySlug(ctx, t.Slug)
	if err != nil {
		return err
	}
	*t = stored
	return nil
}

func (s *SQLStore) GetTestType(ctx context.Context, id string) (model.TestType, error) {
	return s.getTestType(ctx, "repository.GetTestType", "id", id)
}

func (s *SQLStore) GetTestTypeBySlug(ctx context.Context, slug string) (model.TestType, error) {
	return s.getTestType(ctx, "repository.GetTestTypeBySlug", "slug", slug)
}

func (s *SQLStore) getTestType(ctx context.Context, op, column, value string) (model.TestType, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+testTypeColumns+` FROM test_types WHERE `+column+` = ?`), value)
	t, err := scanTestType(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.TestType{}, NewKind(op, ErrNotFound)
	}
	if err != nil {
		return model.TestType{}, fmt.Errorf("%s: %w", op, err)
	}
	return t, nil
}

func (s *SQLStore) ListTestTypes(ctx context.Context, activeOnly bool) ([]model.TestType, error) {
	const op = "repository.ListTestTypes"
	q := `SELECT ` + testTypeColumns + ` FROM test_types`
	var args []any
	if activeOnly {
		q += ` WHERE is_active = ?`
		args = append(args, true)
	}
	q += ` ORDER BY category, name`

	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := []model.TestType{}
	for rows.Next() {
		t, err := scanTestType(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTestType(r scanner) (model.TestType, error) {
	var (
		t  model.TestType
		ms int64
	)
	err := r.Scan(&t.ID, &t.Slug, &t.Name, &t.Category, &t.Description, &t.Instructions, &t.PromptHint,
		&t.EstimatedDurationMin, &t.Difficulty, &t.Active, &ms)
	if err != nil {
		return model.TestType{}, err
	}
	t.CreatedAt = fromMillis(ms)
	return t, nil
}

// Assessments

const assessmentColumns = `id, athlete_id, test_type_id, status, video_key, duration_seconds,
	performance_score, feedback, ai_analysis_results, failure_reason, metadata, created_at, updated_at`

func (s *SQLStore) CreateAssessment(ctx context.Context, a *model.Assessment) error {
	const op = "repository.CreateAssessment"
	if a == nil || a.AthleteID == "" || a.TestTypeID == "" {
		return NewKind(op, ErrInvalidArgument)
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Metadata == nil {
		a.Metadata = map[string]any{}
	}
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return WrapKind(op, ErrInvalidArgument, err)
	}
	ms := s.stamp()
	a.Status = model.StatusPending
	a.CreatedAt = fromMillis(ms)
	a.UpdatedAt = a.CreatedAt

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO assessments (id, athlete_id, test_type_id, status, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		a.ID, a.AthleteID, a.TestTypeID, string(a.Status), string(meta), ms, ms)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *SQLStore) GetAssessment(ctx context.Context, id string) (model.Assessment, error) {
	const op = "repository.GetAssessment"
	a, err := scanAssessment(s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+assessmentColumns+` FROM assessments WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Assessment{}, NewKind(op, ErrNotFound)
	}
	if err != nil {
		return model.Assessment{}, fmt.Errorf("%s: %w", op, err)
	}
	return a, nil
}

func scanAssessment(r scanner) (model.Assessment, error) {
	var (
		a        model.Assessment
		status   string
		reason   string
		duration sql.NullInt64
		score    sql.NullFloat64
		results  sql.NullString
		meta     string
		created  int64
		updated  int64
	)
	err := r.Scan(&a.ID, &a.AthleteID, &a.TestTypeID, &status, &a.VideoKey, &duration,
		&score, &a.Feedback, &results, &reason, &meta, &created, &updated)
	if err != nil {
		return model.Assessment{}, err
	}
	a.Status = model.Status(status)
	a.FailureReason = model.FailureReason(reason)
	if duration.Valid {
		d := int(duration.Int64)
		a.DurationSeconds = &d
	}
	if score.Valid {
		a.PerformanceScore = &score.Float64
	}
	if results.Valid && results.String != "" {
		a.AIAnalysisResults = json.RawMessage(results.String)
	}
	a.Metadata = map[string]any{}
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &a.Metadata); err != nil {
			return model.Assessment{}, fmt.Errorf("decoding metadata: %w", err)
		}
	}
	a.CreatedAt = fromMillis(created)
	a.UpdatedAt = fromMillis(updated)
	return a, nil
}

func (s *SQLStore) ListMetrics(ctx context.Context, assessmentID string) ([]model.PerformanceMetric, error) {
	const op = "repository.ListMetrics"
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, assessment_id, metric_name, value, unit, confidence, created_at
		FROM performance_metrics WHERE assessment_id = ? ORDER BY created_at, metric_name`), assessmentID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := []model.PerformanceMetric{}
	for rows.Next() {
		var (
			m  model.PerformanceMetric
			ms int64
		)
		if err := rows.Scan(&m.ID, &m.AssessmentID, &m.Name, &m.Value, &m.Unit, &m.Confidence, &ms); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		m.CreatedAt = fromMillis(ms)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

// Transitions

func (s *SQLStore) MarkProcessing(ctx context.Context, id, videoKey string, duration *int) error {
	const op = "repository.MarkProcessing"
	if videoKey == "" {
		return NewKind(op, ErrInvalidArgument)
	}
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE assessments SET status = ?, video_key = ?, duration_seconds = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		string(model.StatusProcessing), videoKey, nullInt(duration), s.stamp(), id, string(model.StatusPending))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return s.checkTransition(ctx, s.db, op, res, id)
}

func (s *SQLStore) Complete(ctx context.Context, id string, score float64, feedback string,
	results json.RawMessage, metricRows []model.PerformanceMetric,
) error {
	const op = "repository.Complete"
	start := time.Now()
	defer func() { recordPersist(start) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	ms := s.stamp()
	res, err := tx.ExecContext(ctx, s.rebind(`
		UPDATE assessments SET status = ?, performance_score = ?, feedback = ?, ai_analysis_results = ?,
			failure_reason = '', updated_at = ?
		WHERE id = ? AND status = ?`),
		string(model.StatusCompleted), score, feedback, nullableJSON(results), ms, id, string(model.StatusProcessing))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := s.checkTransition(ctx, tx, op, res, id); err != nil {
		return err
	}

	insert := s.rebind(`
		INSERT INTO performance_metrics (id, assessment_id, metric_name, value, unit, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (assessment_id, metric_name) DO NOTHING`)
	for _, m := range metricRows {
		if _, err := tx.ExecContext(ctx, insert, uuid.NewString(), id, m.Name, m.Value, m.Unit, m.Confidence, ms); err != nil {
			return fmt.Errorf("%s: metric %q: %w", op, m.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}
	return nil
}

func (s *SQLStore) Fail(ctx context.Context, id string, reason model.FailureReason, results json.RawMessage) error {
	const op = "repository.Fail"
	start := time.Now()
	defer func() { recordPersist(start) }()

	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE assessments SET status = ?, failure_reason = ?, ai_analysis_results = ?, updated_at = ?
		WHERE id = ? AND status = ?`),
		string(model.StatusFailed), string(reason), nullableJSON(results), s.stamp(), id, string(model.StatusProcessing))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return s.checkTransition(ctx, s.db, op, res, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// checkTransition explains a conditional update that matched no row.
func (s *SQLStore) checkTransition(ctx context.Context, q queryer, op string, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n > 0 {
		return nil
	}

	var status string
	err = q.QueryRowContext(ctx, s.rebind(`SELECT status FROM assessments WHERE id = ?`), id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return NewKind(op, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if model.Status(status).IsTerminal() {
		return WrapKind(op, ErrAlreadyFinalized, fmt.Errorf("status is %s", status))
	}
	return WrapKind(op, ErrConflict, fmt.Errorf("status is %s", status))
}

func (s *SQLStore) ListStaleProcessing(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	const op = "repository.ListStaleProcessing"
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id FROM assessments WHERE status = ? AND updated_at < ?
		ORDER BY updated_at LIMIT ?`),
		string(model.StatusProcessing), cutoff.UTC().UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ids, nil
}

func (s *SQLStore) CountByStatus(ctx context.Context) (map[model.Status]int, error) {
	const op = "repository.CountByStatus"
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM assessments GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := map[model.Status]int{
		model.StatusPending:    0,
		model.StatusProcessing: 0,
		model.StatusCompleted:  0,
		model.StatusFailed:     0,
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		out[model.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func nullInt(v *int) any {
	if v == nil {
		return nil
	}
	return int64(*v)
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func recordPersist(start time.Time) {
	metrics.RecordPersistLatency(float64(time.Since(start).Microseconds()) / 1000)
}
