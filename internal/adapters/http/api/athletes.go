package api

import (
	"net/http"

	"github.com/okian/kaushal/internal/domain/types"
)

// AthletesHandler serves athlete resources.
type AthletesHandler struct {
	deps Dependencies
}

// NewAthletesHandler creates a new athletes handler.
func NewAthletesHandler(deps Dependencies) *AthletesHandler {
	return &AthletesHandler{deps: deps}
}

// HandleCreate handles POST /athletes.
func (h *AthletesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req types.CreateAthleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	ath, err := h.deps.CreateAthlete(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ath)
}

// HandleGet handles GET /athletes/{id}.
func (h *AthletesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ath, err := h.deps.GetAthlete(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ath)
}
