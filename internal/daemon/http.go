package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"curator/internal/api"
	"curator/internal/ledger"
	"curator/internal/logging"
	"curator/internal/services"
)

// httpServer exposes the service facade over REST.
type httpServer struct {
	service *api.Service
	metrics *metrics
	logger  *slog.Logger
}

func newHTTPServer(service *api.Service, m *metrics, logger *slog.Logger) *httpServer {
	return &httpServer{service: service, metrics: m, logger: logger}
}

func (h *httpServer) router() *mux.Router {
	r := mux.NewRouter()
	r.Use(h.instrument)

	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", h.metrics.handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/samples", h.handleListSamples).Methods(http.MethodGet)
	v1.HandleFunc("/samples/{id:.+}/conflicts", h.handleConflicts).Methods(http.MethodGet)
	v1.HandleFunc("/samples/{id:.+}", h.handleGetSample).Methods(http.MethodGet)
	v1.HandleFunc("/tags", h.handleTag).Methods(http.MethodPost)
	v1.HandleFunc("/fields", h.handleSetFields).Methods(http.MethodPost)
	v1.HandleFunc("/fields/bulk", h.handleBulkSetFields).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{session}/selection", h.handleGetSelection).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{session}/selection", h.handleSelect).Methods(http.MethodPost)
	v1.HandleFunc("/sessions/{session}/selection", h.handleClearSelection).Methods(http.MethodDelete)
	v1.HandleFunc("/sessions/{session}/selection/remove", h.handleDeselect).Methods(http.MethodPost)
	v1.HandleFunc("/exports", h.handleExport).Methods(http.MethodPost)
	v1.HandleFunc("/sync", h.handleSync).Methods(http.MethodPost)
	v1.HandleFunc("/jobs", h.handleListJobs).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{id}", h.handleJobStatus).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{id}/cancel", h.handleJobAction(h.service.CancelJob)).Methods(http.MethodPost)
	v1.HandleFunc("/jobs/{id}/pause", h.handleJobAction(h.service.PauseJob)).Methods(http.MethodPost)
	v1.HandleFunc("/jobs/{id}/resume", h.handleJobAction(h.service.ResumeJob)).Methods(http.MethodPost)
	v1.HandleFunc("/formats", h.handleFormats).Methods(http.MethodGet)
	return r
}

func (h *httpServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if template, err := current.GetPathTemplate(); err == nil {
				route = template
			}
		}
		h.metrics.observe(route, strconv.Itoa(recorder.code), time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *httpServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *httpServer) handleListSamples(w http.ResponseWriter, r *http.Request) {
	samples, err := h.service.ListSamples(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, samples)
}

func (h *httpServer) handleGetSample(w http.ResponseWriter, r *http.Request) {
	sample, err := h.service.GetSample(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sample)
}

func (h *httpServer) handleConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.service.Conflicts(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conflicts)
}

func (h *httpServer) handleTag(w http.ResponseWriter, r *http.Request) {
	var req api.TagRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.service.Tag(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *httpServer) handleSetFields(w http.ResponseWriter, r *http.Request) {
	var req api.FieldRequest
	if !decodeBody(w, r, &req) {
		return
	}
	view, err := h.service.SetFields(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *httpServer) handleBulkSetFields(w http.ResponseWriter, r *http.Request) {
	var req api.BulkFieldRequest
	if !decodeBody(w, r, &req) {
		return
	}
	results, err := h.service.BulkSetFields(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

type selectionRequest struct {
	SampleIDs []string `json:"sample_ids"`
}

func (h *httpServer) handleGetSelection(w http.ResponseWriter, r *http.Request) {
	selected := h.service.Selection(mux.Vars(r)["session"])
	writeJSON(w, http.StatusOK, map[string]any{"sample_ids": selected, "count": len(selected)})
}

func (h *httpServer) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	count, err := h.service.Select(r.Context(), mux.Vars(r)["session"], req.SampleIDs)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *httpServer) handleDeselect(w http.ResponseWriter, r *http.Request) {
	var req selectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	count := h.service.Deselect(mux.Vars(r)["session"], req.SampleIDs)
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

func (h *httpServer) handleClearSelection(w http.ResponseWriter, r *http.Request) {
	h.service.ClearSelection(mux.Vars(r)["session"])
	writeJSON(w, http.StatusOK, map[string]int{"count": 0})
}

type exportRequest struct {
	SessionID string `json:"session_id"`
	Format    string `json:"format"`
}

func (h *httpServer) handleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !decodeBody(w, r, &req) {
		return
	}
	job, err := h.service.Export(r.Context(), req.SessionID, req.Format)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *httpServer) handleSync(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.SyncLibrary(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (h *httpServer) handleListJobs(w http.ResponseWriter, r *http.Request) {
	all, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *httpServer) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := h.service.JobStatus(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *httpServer) handleJobAction(action func(ctx context.Context, jobID string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := action(r.Context(), mux.Vars(r)["id"]); err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (h *httpServer) handleFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"formats": h.service.Formats()})
}

type errorResponse struct {
	Error     string `json:"error"`
	Kind      string `json:"kind"`
	Current   int64  `json:"current_version,omitempty"`
	Attempted int64  `json:"attempted_version,omitempty"`
}

func (h *httpServer) writeError(w http.ResponseWriter, err error) {
	kind := services.Kind(err)
	resp := errorResponse{Error: err.Error(), Kind: kind}

	var conflict *ledger.ConflictError
	if errors.As(err, &conflict) {
		resp.Current = conflict.Current
		resp.Attempted = conflict.Attempted
	}

	status := http.StatusInternalServerError
	switch kind {
	case "not_found":
		status = http.StatusNotFound
	case "conflict":
		status = http.StatusConflict
	case "empty_selection", "unknown_format", "validation":
		status = http.StatusBadRequest
	case "retry_budget_exceeded", "stall_timeout", "encode_error":
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			logging.String(logging.FieldComponent, "http"),
			logging.Error(err))
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error(), Kind: "validation"})
		return false
	}
	return true
}
