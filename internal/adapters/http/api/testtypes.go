package api

import (
	"net/http"

	"github.com/okian/kaushal/internal/domain/types"
)

// TestTypesHandler serves the test type catalog.
type TestTypesHandler struct {
	deps Dependencies
}

// NewTestTypesHandler creates a new test types handler.
func NewTestTypesHandler(deps Dependencies) *TestTypesHandler {
	return &TestTypesHandler{deps: deps}
}

// HandleList handles GET /test-types.
func (h *TestTypesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	tts, err := h.deps.ListTestTypes(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tts)
}

// HandleCreate handles POST /test-types.
func (h *TestTypesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req types.CreateTestTypeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	tt, err := h.deps.CreateTestType(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tt)
}
