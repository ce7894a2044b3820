package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	service "github.com/okian/kaushal/internal/app"
	"github.com/okian/kaushal/internal/domain/model"
	"github.com/okian/kaushal/internal/domain/orchestrator"
	"github.com/okian/kaushal/internal/domain/types"
)

const (
	maxJSONBody       = 1 << 20
	multipartOverhead = 64 << 10
	maxFieldBytes     = 32

	// Multipart field names.
	fieldVideo    = "video"
	fieldDuration = "duration"

	msgAnalyzed        = "Video analyzed successfully"
	msgAnalysisFailed  = "AI analysis failed"
	msgIntegrityFailed = "Video integrity check failed"
)

// AssessmentsHandler serves assessments, uploads and clips.
type AssessmentsHandler struct {
	deps    Dependencies
	maxBody int64
}

// NewAssessmentsHandler creates a new assessments handler.
func NewAssessmentsHandler(deps Dependencies) *AssessmentsHandler {
	return &AssessmentsHandler{deps: deps, maxBody: 50<<20 + multipartOverhead}
}

// HandleCreate handles POST /assessments.
func (h *AssessmentsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req types.CreateAssessmentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	a, err := h.deps.CreateAssessment(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// HandleGet handles GET /assessments/{id}. Polling clients call it until
// the status is terminal.
func (h *AssessmentsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	a, err := h.deps.GetAssessment(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, a)
}

// HandleUpload handles POST /assessments/{id}/upload-video. The clip is
// streamed from the "video" part; a "duration" part must precede it.
func (h *AssessmentsHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	const op = "api.HandleUpload"

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	mr, err := r.MultipartReader()
	if err != nil {
		writeServiceError(w, WrapKind(op, ErrNoFile, err))
		return
	}

	up := service.Upload{AssessmentID: r.PathValue("id"), Wait: !async(r)}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeServiceError(w, NewKind(op, ErrNoFile))
			return
		}
		if err != nil {
			writeServiceError(w, WrapKind(op, ErrBadRequest, err))
			return
		}

		switch part.FormName() {
		case fieldDuration:
			d, err := readDuration(part)
			if err != nil {
				writeServiceError(w, WrapKind(op, ErrBadRequest, err))
				return
			}
			up.Duration = &d
		case fieldVideo:
			up.Filename = part.FileName()
			up.ContentType = part.Header.Get("Content-Type")
			up.Body = part
			res, err := h.deps.Ingest(r.Context(), up)
			if err != nil {
				writeServiceError(w, err)
				return
			}
			writeIngest(w, res)
			return
		default:
			_, _ = io.Copy(io.Discard, part)
		}
	}
}

// HandleVideo handles GET /assessments/{id}/video.
func (h *AssessmentsHandler) HandleVideo(w http.ResponseWriter, r *http.Request) {
	v, err := h.deps.OpenVideo(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer v.Body.Close()

	if v.ContentType != "" {
		w.Header().Set("Content-Type", v.ContentType)
	}
	if rs, ok := v.Body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, v.Name, time.Time{}, rs)
		return
	}
	if v.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(v.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, v.Body)
}

// writeIngest renders the state reached by an accepted upload.
func writeIngest(w http.ResponseWriter, res service.IngestResult) {
	out := res.Outcome
	if out == nil || res.Assessment.Status == model.StatusProcessing {
		if out != nil && errors.Is(out.Err, orchestrator.ErrPersist) {
			writeJSON(w, http.StatusInternalServerError, types.ErrorResponse{
				Code:    "persist_failed",
				Message: msgAnalysisFailed,
				Error:   out.Err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusAccepted, res.Assessment)
		return
	}

	a := res.Assessment
	if a.Status == model.StatusCompleted {
		writeJSON(w, http.StatusOK, types.UploadResponse{
			Message:        msgAnalyzed,
			Assessment:     a,
			AnalysisResult: a.AIAnalysisResults,
		})
		return
	}

	reason := model.FailureReason(a.FailureReason)
	body := types.ErrorResponse{
		Code:    "analysis_failed",
		Message: msgAnalysisFailed,
		Reason:  a.FailureReason,
	}
	if out.Err != nil {
		body.Error = out.Err.Error()
	}
	status := http.StatusInternalServerError
	switch reason {
	case model.ReasonIntegrityFailed:
		status = http.StatusUnprocessableEntity
		body.Code = "integrity_failed"
		body.Message = msgIntegrityFailed
		body.Issues = out.Issues
	case model.ReasonTimeout:
		status = http.StatusGatewayTimeout
		body.Code = "timeout"
	}
	writeJSON(w, status, body)
}

func readDuration(r io.Reader) (int, error) {
	raw, err := io.ReadAll(io.LimitReader(r, maxFieldBytes))
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(raw))
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 && f < 1e6 {
		return int(f + 0.5), nil
	}
	return 0, errors.New("duration must be a non-negative number of seconds")
}

// async reports whether the client asked not to wait for the analysis.
func async(r *http.Request) bool {
	if v, err := strconv.ParseBool(r.URL.Query().Get("async")); err == nil && v {
		return true
	}
	return strings.Contains(strings.ToLower(r.Header.Get("Prefer")), "respond-async")
}
