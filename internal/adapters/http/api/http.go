// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/okian/kaushal/internal/app"
	"github.com/okian/kaushal/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	CreateAthlete(ctx context.Context, req types.CreateAthleteRequest) (types.Athlete, error)
	GetAthlete(ctx context.Context, id string) (types.Athlete, error)

	ListTestTypes(ctx context.Context) ([]types.TestType, error)
	CreateTestType(ctx context.Context, req types.CreateTestTypeRequest) (types.TestType, error)

	CreateAssessment(ctx context.Context, req types.CreateAssessmentRequest) (types.Assessment, error)
	GetAssessment(ctx context.Context, id string) (types.Assessment, error)

	// Ingest accepts one clip and optionally waits for its analysis.
	Ingest(ctx context.Context, up service.Upload) (service.IngestResult, error)
	OpenVideo(ctx context.Context, id string) (service.Video, error)
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	athletesHandler    *AthletesHandler
	testTypesHandler   *TestTypesHandler
	assessmentsHandler *AssessmentsHandler

	requireIdentity bool
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	s := &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(statsProvider),
		athletesHandler:    NewAthletesHandler(deps),
		testTypesHandler:   NewTestTypesHandler(deps),
		assessmentsHandler: NewAssessmentsHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithRequireIdentity rejects mutating requests that carry no user id.
func WithRequireIdentity(require bool) ServerOption {
	return func(s *Server) { s.requireIdentity = require }
}

// WithMaxUploadBytes bounds the multipart body of an upload.
func WithMaxUploadBytes(n int64) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.assessmentsHandler.maxBody = n + multipartOverhead
		}
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	id := func(h http.HandlerFunc) http.HandlerFunc { return IdentityMiddleware(h, s.requireIdentity) }

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("POST /athletes", MetricsMiddleware(id(s.athletesHandler.HandleCreate), "athletes"))
	mux.HandleFunc("GET /athletes/{id}", MetricsMiddleware(id(s.athletesHandler.HandleGet), "athlete"))

	mux.HandleFunc("GET /test-types", MetricsMiddleware(id(s.testTypesHandler.HandleList), "test_types"))
	mux.HandleFunc("POST /test-types", MetricsMiddleware(id(s.testTypesHandler.HandleCreate), "test_types"))

	mux.HandleFunc("POST /assessments", MetricsMiddleware(id(s.assessmentsHandler.HandleCreate), "assessments"))
	mux.HandleFunc("GET /assessments/{id}", MetricsMiddleware(id(s.assessmentsHandler.HandleGet), "assessment"))
	mux.HandleFunc("POST /assessments/{id}/upload-video", MetricsMiddleware(id(s.assessmentsHandler.HandleUpload), "upload_video"))
	mux.HandleFunc("GET /assessments/{id}/video", MetricsMiddleware(id(s.assessmentsHandler.HandleVideo), "video"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, types.ErrorResponse{Code: code, Message: msg})
}

// writeServiceError maps a service error to its status and code.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return WrapKind("api.decodeJSON", ErrBadRequest, err)
	}
	return nil
}
