// Package httptransport exposes the operator API: trigger generation runs,
// inspect inventories and history, and purge generated state.
package httptransport

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"chartforge/internal/artifact"
	"chartforge/internal/history"
	"chartforge/internal/inventory"
	"chartforge/internal/purge"
	"chartforge/internal/workflow"
	dErrors "chartforge/pkg/domain-errors"
	"chartforge/pkg/domain"
	"chartforge/pkg/platform/httputil"
)

// Handler wires operator endpoints to the workflow services.
type Handler struct {
	workflow *workflow.Service
	purge    *purge.Service
	scanner  *inventory.Scanner
	history  *history.Service
	auth     func(http.Handler) http.Handler
	logger   *slog.Logger

	defaultWorkerLimit int
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithHistory enables the history endpoint.
func WithHistory(svc *history.Service) Option {
	return func(h *Handler) {
		h.history = svc
	}
}

// WithDefaultWorkerLimit sets the batch concurrency used when a request
// does not name one.
func WithDefaultWorkerLimit(limit int) Option {
	return func(h *Handler) {
		h.defaultWorkerLimit = limit
	}
}

// WithAuth protects destructive endpoints with the given middleware.
func WithAuth(mw func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.auth = mw
	}
}

// New constructs the operator API handler.
func New(wf *workflow.Service, purger *purge.Service, scanner *inventory.Scanner, opts ...Option) (*Handler, error) {
	if wf == nil {
		return nil, fmt.Errorf("workflow service is required")
	}
	if purger == nil {
		return nil, fmt.Errorf("purge service is required")
	}
	if scanner == nil {
		return nil, fmt.Errorf("inventory scanner is required")
	}
	h := &Handler{
		workflow: wf,
		purge:    purger,
		scanner:  scanner,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Register mounts operator endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/patients/{id}/generate", h.HandleGenerate)
	r.Post("/patients/generate", h.HandleGenerateBatch)
	r.Get("/patients/{id}/inventory", h.HandleInventory)
	r.Get("/patients/{id}/history", h.HandleHistory)

	destructive := func(r chi.Router) {
		if h.auth != nil {
			r.Use(h.auth)
		}
		r.Delete("/purge/{scope}", h.HandlePurge)
		r.Delete("/patients/{id}", h.HandlePurgePatient)
	}
	r.Group(destructive)
}

// GenerateRequest is the body of POST /patients/{id}/generate.
type GenerateRequest struct {
	Kinds             []string `json:"kinds,omitempty"`
	DocumentTitles    []string `json:"document_titles,omitempty"`
	ForcePersona      bool     `json:"force_persona,omitempty"`
	ForceDocuments    bool     `json:"force_documents,omitempty"`
	ForceSummary      bool     `json:"force_summary,omitempty"`
	AllowRepeatTitles bool     `json:"allow_repeat_titles,omitempty"`
	OverrideName      string   `json:"override_name,omitempty"`
	Feedback          string   `json:"feedback,omitempty"`
}

// Validate implements httputil.Validatable.
func (req GenerateRequest) Validate() error {
	for _, raw := range req.Kinds {
		if !artifact.Kind(raw).IsValid() {
			return fmt.Errorf("unknown artifact kind %q", raw)
		}
	}
	return nil
}

func (req GenerateRequest) options() workflow.Options {
	kinds := make([]artifact.Kind, 0, len(req.Kinds))
	for _, raw := range req.Kinds {
		kinds = append(kinds, artifact.Kind(raw))
	}
	return workflow.Options{
		Kinds:             kinds,
		DocumentTitles:    req.DocumentTitles,
		ForcePersona:      req.ForcePersona,
		ForceDocuments:    req.ForceDocuments,
		ForceSummary:      req.ForceSummary,
		AllowRepeatTitles: req.AllowRepeatTitles,
		OverrideName:      req.OverrideName,
		Feedback:          req.Feedback,
	}
}

// HandleGenerate handles POST /patients/{id}/generate.
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	key := domain.PatientKey(chi.URLParam(r, "id"))

	req, ok := httputil.Decode[GenerateRequest](w, r, h.logger)
	if !ok {
		return
	}

	outcome, err := h.workflow.Run(r.Context(), key, req.options())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "generation run failed",
			"patient_key", key, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromOutcome(outcome))
}

// BatchRequest is the body of POST /patients/generate.
type BatchRequest struct {
	GenerateRequest
	PatientKeys []string `json:"patient_keys"`
	PendingOnly bool     `json:"pending_only,omitempty"`
	WorkerLimit int      `json:"worker_limit,omitempty"`
}

// Validate implements httputil.Validatable.
func (req BatchRequest) Validate() error {
	if len(req.PatientKeys) == 0 {
		return fmt.Errorf("patient_keys is required")
	}
	return req.GenerateRequest.Validate()
}

// HandleGenerateBatch handles POST /patients/generate.
func (h *Handler) HandleGenerateBatch(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[BatchRequest](w, r, h.logger)
	if !ok {
		return
	}

	keys := make([]domain.PatientKey, len(req.PatientKeys))
	for i, raw := range req.PatientKeys {
		keys[i] = domain.PatientKey(raw)
	}

	limit := req.WorkerLimit
	if limit == 0 {
		limit = h.defaultWorkerLimit
	}

	outcome, err := h.workflow.RunBatch(r.Context(), keys, workflow.BatchOptions{
		Options:     req.options(),
		WorkerLimit: limit,
		PendingOnly: req.PendingOnly,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "batch run failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromBatchOutcome(outcome))
}

// HandleInventory handles GET /patients/{id}/inventory.
func (h *Handler) HandleInventory(w http.ResponseWriter, r *http.Request) {
	key := domain.PatientKey(chi.URLParam(r, "id"))

	inv, err := h.scanner.Scan(r.Context(), key)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, fromInventory(key, inv))
}

// HandleHistory handles GET /patients/{id}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "history is not enabled"))
		return
	}
	key := domain.PatientKey(chi.URLParam(r, "id"))

	entries, err := h.history.List(r.Context(), key)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, entries)
}

// HandlePurge handles DELETE /purge/{scope}.
func (h *Handler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	scope, err := purge.ParseScope(chi.URLParam(r, "scope"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	report, err := h.purge.Purge(r.Context(), scope)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "purge failed", "scope", scope, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// HandlePurgePatient handles DELETE /patients/{id}.
func (h *Handler) HandlePurgePatient(w http.ResponseWriter, r *http.Request) {
	key := domain.PatientKey(chi.URLParam(r, "id"))

	report, err := h.purge.Patient(r.Context(), key)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "patient purge failed",
			"patient_key", key, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}
