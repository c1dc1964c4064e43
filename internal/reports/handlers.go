package reports

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/Carnacky79/energy-optimizer-v2/internal/scoring"
	"github.com/Carnacky79/energy-optimizer-v2/internal/userctx"
	"github.com/google/uuid"
)

// Handlers handles HTTP requests for reports
type Handlers struct {
	service *Service
}

// NewHandlers creates new handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Register mounts report routes on the mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/calculate", h.HandleCalculate)
	mux.HandleFunc("POST /v1/reports", h.HandleCreate)
	mux.HandleFunc("GET /v1/reports", h.HandleList)
	mux.HandleFunc("GET /v1/reports/stats", h.HandleStats)
	mux.HandleFunc("GET /v1/reports/export", h.HandleExport)
	mux.HandleFunc("GET /v1/reports/{id}", h.HandleGet)
	mux.HandleFunc("PATCH /v1/reports/{id}", h.HandleUpdate)
	mux.HandleFunc("DELETE /v1/reports/{id}", h.HandleDelete)
	mux.HandleFunc("POST /v1/reports/{id}/share", h.HandleShare)
	mux.HandleFunc("GET /v1/public/reports/{publicId}", h.HandleGetPublic)
	mux.HandleFunc("GET /v1/guest/status", h.HandleGuestStatus)
}

// CalculateResponse is the stateless calculator result
type CalculateResponse struct {
	scoring.Assessment
	ROIDisplay string `json:"roi_display"`
}

// HandleCalculate handles POST /v1/calculate
func (h *Handlers) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	var profile scoring.EnergyProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON")
		return
	}

	a, err := h.service.Calculate(profile)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CalculateResponse{Assessment: a, ROIDisplay: a.Projection.ROIDisplay()})
}

// HandleCreate handles POST /v1/reports
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req CreateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON")
		return
	}

	report, err := h.service.CreateReport(r.Context(), owner, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDTO(*report))
}

// HandleList handles GET /v1/reports
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	params := ListParams{
		SortBy: q.Get("sort_by"),
		Order:  q.Get("order"),
	}
	if v := q.Get("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil || p < 1 {
			writeError(w, http.StatusBadRequest, "invalid_argument", "page must be a positive integer")
			return
		}
		params.Page = p
	}
	if v := q.Get("page_size"); v != "" {
		ps, err := strconv.Atoi(v)
		if err != nil || ps < 1 {
			writeError(w, http.StatusBadRequest, "invalid_argument", "page_size must be a positive integer")
			return
		}
		params.PageSize = ps
	}

	page, err := h.service.ListReports(r.Context(), owner, params)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// HandleGet handles GET /v1/reports/{id}
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id, ok := parseReportID(w, r)
	if !ok {
		return
	}

	report, err := h.service.GetReport(r.Context(), owner, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(*report))
}

// HandleUpdate handles PATCH /v1/reports/{id}
func (h *Handlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id, ok := parseReportID(w, r)
	if !ok {
		return
	}

	var req UpdateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON")
		return
	}

	report, err := h.service.UpdateReport(r.Context(), owner, id, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDTO(*report))
}

// HandleDelete handles DELETE /v1/reports/{id}
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id, ok := parseReportID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteReport(r.Context(), owner, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleShare handles POST /v1/reports/{id}/share
func (h *Handlers) HandleShare(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	id, ok := parseReportID(w, r)
	if !ok {
		return
	}

	res, err := h.service.ShareReport(r.Context(), owner, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleGetPublic handles GET /v1/public/reports/{publicId}
func (h *Handlers) HandleGetPublic(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.GetPublicReport(r.Context(), r.PathValue("publicId"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// HandleStats handles GET /v1/reports/stats
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	stats, err := h.service.Stats(r.Context(), owner)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// HandleExport handles GET /v1/reports/export
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	data, err := h.service.ExportCSV(r.Context(), owner)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	filename := fmt.Sprintf("energy-reports-%s.csv", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.Write(data)
}

// HandleGuestStatus handles GET /v1/guest/status
func (h *Handlers) HandleGuestStatus(w http.ResponseWriter, r *http.Request) {
	token, _ := userctx.GetGuestToken(r.Context())
	status, err := h.service.GuestStatus(r.Context(), token)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func requireOwner(w http.ResponseWriter, r *http.Request) (userctx.Owner, bool) {
	owner, ok := userctx.OwnerFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Missing account token or guest token")
		return userctx.Owner{}, false
	}
	return owner, true
}

func parseReportID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		// несуществующий id неотличим от чужого
		writeError(w, http.StatusNotFound, "report_not_found", "Report not found")
		return uuid.Nil, false
	}
	return id, true
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, ErrReportNotFound):
		writeError(w, http.StatusNotFound, "report_not_found", "Report not found")
	case errors.Is(err, ErrQuotaExceeded):
		writeError(w, http.StatusPaymentRequired, "quota_exceeded", "Report limit reached for the current plan")
	case errors.Is(err, ErrShareRequiresAccount):
		writeError(w, http.StatusForbidden, "account_required", "Create an account to share reports")
	case errors.Is(err, ErrOwnerNotFound):
		writeError(w, http.StatusUnauthorized, "unauthorized", "Account not found")
	case errors.Is(err, ErrStorageUnavailable):
		log.Printf("ERROR reports: %v", err)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "Storage is temporarily unavailable")
	default:
		log.Printf("ERROR reports: %v", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
