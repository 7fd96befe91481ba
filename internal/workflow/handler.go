package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"jobmate/posting-service/internal/apperr"
	"jobmate/posting-service/internal/draft"
	"jobmate/posting-service/internal/screening"
)

const maxBodyBytes = 1 << 20

// CompanyLister serves the company list for the selection affordances
// upstream of the workflow.
type CompanyLister interface {
	List(ctx context.Context) (json.RawMessage, error)
}

// ─── Handler ─────────────────────────────────────────────────────────────────

// Handler is the HTTP transport for Service.
//
// All /drafts routes expect an x-user-id header (and optionally x-user-email)
// forwarded by the Gateway.
//
// Routes:
//
//	GET    /health
//	GET    /catalog                                  → static question catalog
//	GET    /companies                                → company list (cached)
//	POST   /drafts                                   → start a create draft
//	POST   /jobs/{jobId}/draft                       → start an update draft
//	GET    /drafts/{id}                              → draft
//	GET    /drafts/{id}/catalog                      → catalog with availability
//	POST   /drafts/{id}/questions                    → add question {type}
//	PATCH  /drafts/{id}/questions/{qid}              → edit question fields
//	DELETE /drafts/{id}/questions/{qid}              → remove question
//	POST   /drafts/{id}/questions/{qid}/must-have    → {mustHave}
//	POST   /drafts/{id}/settings/edit                → {group}
//	POST   /drafts/{id}/settings/cancel
//	POST   /drafts/{id}/settings/save
//	PUT    /drafts/{id}/settings/rejection           → {enabled, message}
//	PUT    /drafts/{id}/settings/applicant           → {emailUpdates}
//	POST   /drafts/{id}/continue
//	POST   /drafts/{id}/back
//	GET    /drafts/{id}/review
//	POST   /drafts/{id}/submit
type Handler struct {
	svc       *Service
	companies CompanyLister
	logger    *zap.Logger
}

// NewHandler returns a configured Handler.
func NewHandler(svc *Service, companies CompanyLister, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, companies: companies, logger: logger}
}

// RegisterRoutes mounts all posting-service routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		jsonOK(w, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /catalog", func(w http.ResponseWriter, _ *http.Request) {
		jsonOK(w, screening.Catalog())
	})
	mux.HandleFunc("GET /companies", h.listCompanies)

	mux.HandleFunc("POST /drafts", h.withUser(h.start))
	mux.HandleFunc("POST /jobs/{jobId}/draft", h.withUser(h.startUpdate))
	mux.HandleFunc("GET /drafts/{id}", h.withUser(h.get))
	mux.HandleFunc("GET /drafts/{id}/catalog", h.withUser(h.catalog))

	mux.HandleFunc("POST /drafts/{id}/questions", h.withUser(h.selectQuestion))
	mux.HandleFunc("PATCH /drafts/{id}/questions/{qid}", h.withUser(h.updateQuestion))
	mux.HandleFunc("DELETE /drafts/{id}/questions/{qid}", h.withUser(h.removeQuestion))
	mux.HandleFunc("POST /drafts/{id}/questions/{qid}/must-have", h.withUser(h.setMustHave))

	mux.HandleFunc("POST /drafts/{id}/settings/edit", h.withUser(h.editGroup))
	mux.HandleFunc("POST /drafts/{id}/settings/cancel", h.withUser(h.cancelEdit))
	mux.HandleFunc("POST /drafts/{id}/settings/save", h.withUser(h.saveGroup))
	mux.HandleFunc("PUT /drafts/{id}/settings/rejection", h.withUser(h.setRejection))
	mux.HandleFunc("PUT /drafts/{id}/settings/applicant", h.withUser(h.setApplicant))

	mux.HandleFunc("POST /drafts/{id}/continue", h.withUser(h.continueDraft))
	mux.HandleFunc("POST /drafts/{id}/back", h.withUser(h.back))
	mux.HandleFunc("GET /drafts/{id}/review", h.withUser(h.review))
	mux.HandleFunc("POST /drafts/{id}/submit", h.withUser(h.submit))
}

type userHandler func(w http.ResponseWriter, r *http.Request, u draft.User)

func (h *Handler) withUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("x-user-id")
		if userID == "" {
			jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next(w, r, draft.User{ID: userID, Email: r.Header.Get("x-user-email")})
	}
}

// DraftView is the JSON shape returned for a draft.
type DraftView struct {
	*draft.Draft
	RejectionRemaining int  `json:"rejectionRemaining"`
	Truncated          bool `json:"truncated,omitempty"`
}

func viewOf(d *draft.Draft) DraftView {
	return DraftView{Draft: d, RejectionRemaining: d.Panel.Rejection.Remaining()}
}

// ─── Individual handlers ──────────────────────────────────────────────────────

func (h *Handler) listCompanies(w http.ResponseWriter, r *http.Request) {
	body, err := h.companies.List(r.Context())
	if err != nil {
		h.logger.Error("list companies failed", zap.Error(err))
		jsonError(w, "company list unavailable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) start(w http.ResponseWriter, r *http.Request, u draft.User) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		jsonError(w, "invalid body", http.StatusBadRequest)
		return
	}
	d, err := h.svc.Start(r.Context(), u, raw)
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonStatus(w, http.StatusCreated, viewOf(d))
}

func (h *Handler) startUpdate(w http.ResponseWriter, r *http.Request, u draft.User) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		jsonError(w, "invalid body", http.StatusBadRequest)
		return
	}
	d, err := h.svc.StartUpdate(r.Context(), u, r.PathValue("jobId"), raw)
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonStatus(w, http.StatusCreated, viewOf(d))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, u draft.User) {
	d, err := h.svc.Get(r.Context(), u.ID, r.PathValue("id"))
	h.reply(w, d, err)
}

func (h *Handler) catalog(w http.ResponseWriter, r *http.Request, u draft.User) {
	view, err := h.svc.Catalog(r.Context(), u.ID, r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonOK(w, view)
}

func (h *Handler) selectQuestion(w http.ResponseWriter, r *http.Request, u draft.User) {
	var body struct {
		Type string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Type == "" {
		jsonError(w, "body must contain type", http.StatusBadRequest)
		return
	}
	q, err := h.svc.SelectQuestion(r.Context(), u.ID, r.PathValue("id"), screening.Archetype(body.Type))
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonStatus(w, http.StatusCreated, q)
}

func (h *Handler) updateQuestion(w http.ResponseWriter, r *http.Request, u draft.User) {
	var p screening.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	q, err := h.svc.UpdateQuestion(r.Context(), u.ID, r.PathValue("id"), r.PathValue("qid"), p)
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonOK(w, q)
}

func (h *Handler) removeQuestion(w http.ResponseWriter, r *http.Request, u draft.User) {
	d, err := h.svc.RemoveQuestion(r.Context(), u.ID, r.PathValue("id"), r.PathValue("qid"))
	h.reply(w, d, err)
}

func (h *Handler) setMustHave(w http.ResponseWriter, r *http.Request, u draft.User) {
	var body struct {
		MustHave *bool `json:"mustHave"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.MustHave == nil {
		jsonError(w, "body must contain mustHave", http.StatusBadRequest)
		return
	}
	q, err := h.svc.SetMustHave(r.Context(), u.ID, r.PathValue("id"), r.PathValue("qid"), *body.MustHave)
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonOK(w, q)
}

func (h *Handler) editGroup(w http.ResponseWriter, r *http.Request, u draft.User) {
	var body struct {
		Group *int `json:"group"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Group == nil {
		jsonError(w, "body must contain group", http.StatusBadRequest)
		return
	}
	d, err := h.svc.EditGroup(r.Context(), u.ID, r.PathValue("id"), *body.Group)
	h.reply(w, d, err)
}

func (h *Handler) cancelEdit(w http.ResponseWriter, r *http.Request, u draft.User) {
	d, err := h.svc.CancelEdit(r.Context(), u.ID, r.PathValue("id"))
	h.reply(w, d, err)
}

func (h *Handler) saveGroup(w http.ResponseWriter, r *http.Request, u draft.User) {
	d, err := h.svc.SaveGroup(r.Context(), u.ID, r.PathValue("id"))
	h.reply(w, d, err)
}

func (h *Handler) setRejection(w http.ResponseWriter, r *http.Request, u draft.User) {
	var body struct {
		Enabled *bool   `json:"enabled"`
		Message *string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	d, truncated, err := h.svc.SetRejection(r.Context(), u.ID, r.PathValue("id"), body.Enabled, body.Message)
	if err != nil {
		h.fail(w, err)
		return
	}
	v := viewOf(d)
	v.Truncated = truncated
	jsonOK(w, v)
}

func (h *Handler) setApplicant(w http.ResponseWriter, r *http.Request, u draft.User) {
	var body struct {
		EmailUpdates string `json:"emailUpdates"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	d, err := h.svc.SetApplicantEmail(r.Context(), u.ID, r.PathValue("id"), body.EmailUpdates)
	h.reply(w, d, err)
}

func (h *Handler) continueDraft(w http.ResponseWriter, r *http.Request, u draft.User) {
	d, err := h.svc.Continue(r.Context(), u.ID, r.PathValue("id"))
	h.reply(w, d, err)
}

func (h *Handler) back(w http.ResponseWriter, r *http.Request, u draft.User) {
	d, err := h.svc.Back(r.Context(), u.ID, r.PathValue("id"))
	h.reply(w, d, err)
}

func (h *Handler) review(w http.ResponseWriter, r *http.Request, u draft.User) {
	rv, err := h.svc.Review(r.Context(), u.ID, r.PathValue("id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonOK(w, rv)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, u draft.User) {
	out, err := h.svc.Submit(r.Context(), u.ID, r.PathValue("id"))
	if errors.Is(err, ErrSubmitFailed) && out != nil {
		jsonStatus(w, http.StatusBadGateway, out)
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonOK(w, out)
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func (h *Handler) reply(w http.ResponseWriter, d *draft.Draft, err error) {
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonOK(w, viewOf(d))
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	code := StatusFor(err)
	switch code {
	case http.StatusInternalServerError:
		h.logger.Error("request failed", zap.Error(err))
		jsonError(w, "internal error", code)
		return
	case http.StatusServiceUnavailable:
		h.logger.Warn("dependency unavailable", zap.Error(err))
		jsonError(w, "service unavailable", code)
		return
	}
	jsonError(w, err.Error(), code)
}

// StatusFor maps a Service error to an HTTP status code.
func StatusFor(err error) int {
	var ve *ValidationError
	var se *StageError
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrQuestionNotFound):
		return http.StatusNotFound
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &se),
		errors.Is(err, ErrSubmitInFlight),
		errors.Is(err, ErrAlreadySubmitted),
		errors.Is(err, ErrConflict),
		errors.Is(err, screening.ErrAlreadyAdded):
		return http.StatusConflict
	case errors.Is(err, ErrSubmitFailed):
		return http.StatusBadGateway
	case apperr.Is(err, apperr.ErrTypeInvalidInput):
		return http.StatusBadRequest
	case apperr.Is(err, apperr.ErrTypeUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func jsonOK(w http.ResponseWriter, v any) {
	jsonStatus(w, http.StatusOK, v)
}

func jsonStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	jsonStatus(w, code, map[string]string{"error": msg})
}
