package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/contractor-booking/internal/attachments"
	"github.com/wolfman30/contractor-booking/internal/bookingapi"
	"github.com/wolfman30/contractor-booking/internal/session"
	"github.com/wolfman30/contractor-booking/internal/steps"
	"github.com/wolfman30/contractor-booking/internal/submission"
	"github.com/wolfman30/contractor-booking/internal/wizard"
	"github.com/wolfman30/contractor-booking/pkg/logging"
)

const (
	maxJSONBody       = 64 << 10
	defaultAvailDays  = 14
	availabilityDate  = "2006-01-02"
	multipartOverhead = 1 << 20
)

// SessionStore is the subset of session.Manager the handlers use.
type SessionStore interface {
	Create(ctx context.Context, businessID string, branding wizard.Branding) (*session.Session, error)
	Resume(ctx context.Context, id string) (*session.Session, error)
	Delete(ctx context.Context, id string) error
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(sessionID, businessID string) (string, error)
}

// AttachmentStore uploads and removes attachment files.
type AttachmentStore interface {
	Enabled() bool
	Upload(ctx context.Context, sessionID, filename, contentType string, body io.Reader) (wizard.Attachment, error)
	Delete(ctx context.Context, a wizard.Attachment) error
}

// WizardHandler exposes booking wizard sessions over HTTP.
type WizardHandler struct {
	sessions SessionStore
	tokens   TokenIssuer
	uploads  AttachmentStore
	logger   *logging.Logger
	now      func() time.Time
}

// NewWizardHandler creates the wizard handler. uploads may be nil.
func NewWizardHandler(sessions SessionStore, tokens TokenIssuer, uploads AttachmentStore, logger *logging.Logger) *WizardHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WizardHandler{
		sessions: sessions,
		tokens:   tokens,
		uploads:  uploads,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateSessionRequest starts a wizard for a business.
type CreateSessionRequest struct {
	BusinessID string          `json:"businessId"`
	Branding   wizard.Branding `json:"branding"`
}

// CreateSessionResponse carries the token the widget uses on session routes.
type CreateSessionResponse struct {
	SessionID string     `json:"sessionId"`
	Token     string     `json:"token"`
	View      steps.View `json:"view"`
}

// ViewResponse wraps the rendered step with an optional error and payload.
type ViewResponse struct {
	Error   string              `json:"error,omitempty"`
	View    steps.View          `json:"view"`
	Catalog *bookingapi.Catalog `json:"catalog,omitempty"`
	Booking *wizard.Booking     `json:"booking,omitempty"`
	Upload  *wizard.Attachment  `json:"attachment,omitempty"`
	Hints   map[string]string   `json:"hints,omitempty"`
}

// Routes registers the session endpoints on r. auth, when set, guards every
// route below /{id}.
func (h *WizardHandler) Routes(r chi.Router, auth func(http.Handler) http.Handler) {
	r.Post("/", h.CreateSession)
	r.Route("/{id}", func(r chi.Router) {
		if auth != nil {
			r.Use(auth)
		}
		r.Get("/", h.GetSession)
		r.Delete("/", h.DeleteSession)
		r.Get("/stream", h.Stream)
		r.Post("/zip", h.CheckZip)
		r.Get("/catalog", h.GetCatalog)
		r.Get("/availability", h.GetAvailability)
		r.Put("/service", h.UpdateService)
		r.Put("/address", h.UpdateAddress)
		r.Put("/slot", h.UpdateSlot)
		r.Put("/contact", h.UpdateContact)
		r.Put("/details", h.UpdateDetails)
		r.Put("/flags", h.UpdateFlags)
		r.Post("/attachments", h.UploadAttachment)
		r.Delete("/attachments/{attachmentID}", h.DeleteAttachment)
		r.Post("/next", h.Next)
		r.Post("/prev", h.Prev)
		r.Post("/goto/{step}", h.GoTo)
		r.Post("/confirm", h.Confirm)
		r.Post("/reset", h.Reset)
	})
}

// CreateSession handles POST /v1/wizard/sessions.
func (h *WizardHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.BusinessID == "" {
		req.BusinessID = strings.TrimSpace(r.Header.Get("X-Business-Id"))
	}
	s, err := h.sessions.Create(r.Context(), req.BusinessID, req.Branding)
	if err != nil {
		if errors.Is(err, session.ErrMissingBusinessID) {
			jsonError(w, "businessId is required", http.StatusBadRequest)
			return
		}
		h.logger.Error("create wizard session failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	token, err := h.tokens.Issue(s.ID, s.BusinessID)
	if err != nil {
		h.logger.Error("issue session token failed", "error", err, "session_id", s.ID)
		_ = h.sessions.Delete(r.Context(), s.ID)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, CreateSessionResponse{SessionID: s.ID, Token: token, View: s.View()})
}

// GetSession handles GET /v1/wizard/sessions/{id}.
func (h *WizardHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *session.Session) {
		writeView(w, http.StatusOK, s, nil)
	})
}

// DeleteSession handles DELETE /v1/wizard/sessions/{id}.
func (h *WizardHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.sessions.Delete(r.Context(), id); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		h.logger.Error("delete wizard session failed", "error", err, "session_id", id)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CheckZip handles POST .../zip {postalCode}.
func (h *WizardHandler) CheckZip(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PostalCode string `json:"postalCode"`
	}
	h.withBody(w, r, &req, func(s *session.Session) {
		err := s.CheckZip(r.Context(), req.PostalCode)
		h.respond(w, s, err, nil)
	})
}

// GetCatalog handles GET .../catalog. The catalog is fetched once per
// session unless refresh=true.
func (h *WizardHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *session.Session) {
		refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh"))
		if s.Catalog() == nil || refresh {
			if err := s.LoadCatalog(r.Context()); err != nil {
				h.respond(w, s, err, nil)
				return
			}
		}
		writeJSON(w, http.StatusOK, ViewResponse{View: s.View(), Catalog: s.Catalog()})
	})
}

// UpdateService handles PUT .../service.
func (h *WizardHandler) UpdateService(w http.ResponseWriter, r *http.Request) {
	var req wizard.ServiceSelection
	h.withBody(w, r, &req, func(s *session.Session) {
		s.Controller().UpdateService(req.CategoryID, req.ServiceID)
		writeView(w, http.StatusOK, s, nil)
	})
}

// UpdateAddress handles PUT .../address.
func (h *WizardHandler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	var req wizard.Address
	h.withBody(w, r, &req, func(s *session.Session) {
		s.Controller().UpdateAddress(req)
		writeView(w, http.StatusOK, s, nil)
	})
}

// GetAvailability handles GET .../availability?from=YYYY-MM-DD&to=YYYY-MM-DD.
// Without a range the next two weeks are fetched.
func (h *WizardHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	from, to, err := h.parseRange(r)
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.withSession(w, r, func(s *session.Session) {
		err := s.LoadAvailability(r.Context(), from, to)
		h.respond(w, s, err, nil)
	})
}

// UpdateSlot handles PUT .../slot.
func (h *WizardHandler) UpdateSlot(w http.ResponseWriter, r *http.Request) {
	var req wizard.Slot
	h.withBody(w, r, &req, func(s *session.Session) {
		s.Controller().UpdateSlot(req)
		writeView(w, http.StatusOK, s, nil)
	})
}

// UpdateContact handles PUT .../contact. Malformed email or phone values
// are stored and reported as hints.
func (h *WizardHandler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var req wizard.Contact
	h.withBody(w, r, &req, func(s *session.Session) {
		s.Controller().UpdateContact(req)
		writeJSON(w, http.StatusOK, ViewResponse{View: s.View(), Hints: steps.ContactHints(req)})
	})
}

// UpdateDetails handles PUT .../details. Attachments are managed through
// the attachments routes and are kept as uploaded.
func (h *WizardHandler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Notes   string         `json:"notes"`
		Urgency wizard.Urgency `json:"urgency"`
	}
	h.withBody(w, r, &req, func(s *session.Session) {
		if req.Urgency != "" && !req.Urgency.Valid() {
			jsonError(w, "unknown urgency", http.StatusBadRequest)
			return
		}
		details := wizard.Details{Notes: req.Notes, Urgency: req.Urgency}
		if cur := s.State().Details; cur != nil {
			details.Attachments = cur.Attachments
		}
		s.Controller().UpdateDetails(details)
		writeView(w, http.StatusOK, s, nil)
	})
}

// UpdateFlags handles PUT .../flags.
func (h *WizardHandler) UpdateFlags(w http.ResponseWriter, r *http.Request) {
	var req wizard.Flags
	h.withBody(w, r, &req, func(s *session.Session) {
		s.Controller().UpdateFlags(req)
		writeView(w, http.StatusOK, s, nil)
	})
}

// UploadAttachment handles POST .../attachments (multipart field "file").
func (h *WizardHandler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	if h.uploads == nil || !h.uploads.Enabled() {
		jsonError(w, "attachments are not enabled", http.StatusServiceUnavailable)
		return
	}
	h.withSession(w, r, func(s *session.Session) {
		r.Body = http.MaxBytesReader(w, r.Body, attachments.MaxSizeBytes+multipartOverhead)
		file, header, err := r.FormFile("file")
		if err != nil {
			jsonError(w, "file is required", http.StatusBadRequest)
			return
		}
		defer file.Close()

		att, err := h.uploads.Upload(r.Context(), s.ID, header.Filename, header.Header.Get("Content-Type"), file)
		switch {
		case errors.Is(err, attachments.ErrTooLarge):
			jsonError(w, "file is too large", http.StatusRequestEntityTooLarge)
			return
		case errors.Is(err, attachments.ErrUnsupportedType), errors.Is(err, attachments.ErrEmpty):
			jsonError(w, err.Error(), http.StatusBadRequest)
			return
		case err != nil:
			h.logger.Error("attachment upload failed", "error", err, "session_id", s.ID)
			jsonError(w, "upload failed", http.StatusBadGateway)
			return
		}
		s.Controller().AddAttachment(att)
		writeJSON(w, http.StatusCreated, ViewResponse{View: s.View(), Upload: &att})
	})
}

// DeleteAttachment handles DELETE .../attachments/{attachmentID}.
func (h *WizardHandler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *session.Session) {
		att, ok := s.Controller().RemoveAttachment(chi.URLParam(r, "attachmentID"))
		if !ok {
			jsonError(w, "attachment not found", http.StatusNotFound)
			return
		}
		if h.uploads != nil && h.uploads.Enabled() {
			if err := h.uploads.Delete(r.Context(), att); err != nil {
				h.logger.Warn("attachment delete failed", "error", err, "session_id", s.ID, "attachment_id", att.ID)
			}
		}
		writeView(w, http.StatusOK, s, nil)
	})
}

// Next handles POST .../next.
func (h *WizardHandler) Next(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *session.Session) {
		h.respond(w, s, s.Controller().NextStep(), nil)
	})
}

// Prev handles POST .../prev.
func (h *WizardHandler) Prev(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *session.Session) {
		h.respond(w, s, s.Controller().PrevStep(), nil)
	})
}

// GoTo handles POST .../goto/{step}; step is a name such as "address" or
// a zero-based index.
func (h *WizardHandler) GoTo(w http.ResponseWriter, r *http.Request) {
	target, ok := parseStep(chi.URLParam(r, "step"))
	if !ok {
		jsonError(w, wizard.ErrInvalidStep.Error(), http.StatusBadRequest)
		return
	}
	h.withSession(w, r, func(s *session.Session) {
		h.respond(w, s, s.Controller().GoToStep(target), nil)
	})
}

// Confirm handles POST .../confirm.
func (h *WizardHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *session.Session) {
		booking, err := s.Confirm(r.Context())
		h.respond(w, s, err, booking)
	})
}

// Reset handles POST .../reset.
func (h *WizardHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.withSession(w, r, func(s *session.Session) {
		s.Reset()
		writeView(w, http.StatusOK, s, nil)
	})
}

func (h *WizardHandler) withSession(w http.ResponseWriter, r *http.Request, fn func(*session.Session)) {
	id := chi.URLParam(r, "id")
	s, err := h.sessions.Resume(r.Context(), id)
	if errors.Is(err, session.ErrSessionNotFound) {
		jsonError(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("load wizard session failed", "error", err, "session_id", id)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	fn(s)
}

func (h *WizardHandler) withBody(w http.ResponseWriter, r *http.Request, dst any, fn func(*session.Session)) {
	if err := decodeJSON(r, dst); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	h.withSession(w, r, fn)
}

// respond maps an operation result to a status code. The wizard has
// already recorded user-facing errors in its state, so the view is always
// returned.
func (h *WizardHandler) respond(w http.ResponseWriter, s *session.Session, err error, booking *wizard.Booking) {
	if err == nil {
		writeJSON(w, http.StatusOK, ViewResponse{View: s.View(), Booking: booking})
		return
	}
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Warn("wizard operation failed", "error", err, "session_id", s.ID, "status", status)
	}
	writeView(w, status, s, err)
}

func statusFor(err error) int {
	var apiErr *bookingapi.APIError
	switch {
	case errors.Is(err, session.ErrInvalidPostalCode),
		errors.Is(err, session.ErrInvalidDateRange),
		errors.Is(err, session.ErrAvailabilityWindow),
		errors.Is(err, wizard.ErrInvalidStep):
		return http.StatusBadRequest
	case errors.Is(err, wizard.ErrStepIncomplete),
		errors.Is(err, wizard.ErrAtLastStep),
		errors.Is(err, wizard.ErrSubmissionRequired),
		errors.Is(err, wizard.ErrStepLocked),
		errors.Is(err, wizard.ErrBusy),
		errors.Is(err, session.ErrServiceRequired),
		errors.Is(err, submission.ErrNotOnReview),
		errors.Is(err, submission.ErrTermsNotAccepted),
		errors.Is(err, submission.ErrDispatchFeeNotAccepted),
		errors.Is(err, submission.ErrIncomplete),
		errors.Is(err, submission.ErrSuperseded),
		errors.Is(err, submission.ErrInFlight):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnprocessableEntity:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadGateway
	}
}

func (h *WizardHandler) parseRange(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	today := h.now().UTC().Truncate(24 * time.Hour)
	from, to := today, today.AddDate(0, 0, defaultAvailDays-1)
	var err error
	if v := q.Get("from"); v != "" {
		if from, err = time.Parse(availabilityDate, v); err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be YYYY-MM-DD")
		}
		if q.Get("to") == "" {
			to = from.AddDate(0, 0, defaultAvailDays-1)
		}
	}
	if v := q.Get("to"); v != "" {
		if to, err = time.Parse(availabilityDate, v); err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be YYYY-MM-DD")
		}
	}
	return from, to, nil
}

func parseStep(v string) (wizard.Step, bool) {
	if step, ok := wizard.ParseStep(v); ok {
		return step, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || !wizard.Step(n).Valid() {
		return 0, false
	}
	return wizard.Step(n), true
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeView(w http.ResponseWriter, status int, s *session.Session, err error) {
	resp := ViewResponse{View: s.View()}
	if err != nil {
		resp.Error = err.Error()
		if resp.View.Error != "" {
			resp.Error = resp.View.Error
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
