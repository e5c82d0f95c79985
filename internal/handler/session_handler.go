package handler

import (
	"context"
	"net/http"
	"net/mail"
	"strings"

	"thinkora-client/internal/model"
	"thinkora-client/pkg/apierror"
)

type sessionManager interface {
	Snapshot() model.Snapshot
	Login(ctx context.Context, identifier string, secret string) error
	Register(ctx context.Context, fields model.RegistrationFields) error
	Refresh(ctx context.Context) (string, error)
	Logout()
}

// SessionHandler is the UI's view onto the session manager. Tokens never
// leave the host; responses carry snapshots only.
type SessionHandler struct {
	sessions sessionManager
}

func NewSessionHandler(sessions sessionManager) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

func (h *SessionHandler) Get(w http.ResponseWriter, _ *http.Request) {
	writeSuccess(w, http.StatusOK, h.sessions.Snapshot())
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	payload.Email = strings.TrimSpace(payload.Email)
	fields := map[string]string{}
	if payload.Email == "" {
		fields["email"] = "This field may not be blank."
	}
	if payload.Password == "" {
		fields["password"] = "This field may not be blank."
	}
	if len(fields) > 0 {
		writeError(w, apierror.Validation("Email and password are required.", fields, http.StatusBadRequest))
		return
	}

	if err := h.sessions.Login(r.Context(), payload.Email, payload.Password); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, h.sessions.Snapshot())
}

func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.RegisterRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	reg := model.RegistrationFields{
		Username: strings.TrimSpace(payload.Username),
		Email:    strings.TrimSpace(payload.Email),
		Password: payload.Password,
	}
	if fields := validateRegistration(reg); len(fields) > 0 {
		writeError(w, apierror.Validation("Please correct the highlighted fields.", fields, http.StatusBadRequest))
		return
	}

	if err := h.sessions.Register(r.Context(), reg); err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, h.sessions.Snapshot())
}

func (h *SessionHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if _, err := h.sessions.Refresh(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, h.sessions.Snapshot())
}

func (h *SessionHandler) Logout(w http.ResponseWriter, _ *http.Request) {
	h.sessions.Logout()
	writeSuccess(w, http.StatusOK, h.sessions.Snapshot())
}

// validateRegistration catches what the server would reject anyway, so an
// obviously bad form never costs a round trip.
func validateRegistration(reg model.RegistrationFields) map[string]string {
	fields := map[string]string{}
	if reg.Username == "" {
		fields["username"] = "This field may not be blank."
	}
	if reg.Email == "" {
		fields["email"] = "This field may not be blank."
	} else if _, err := mail.ParseAddress(reg.Email); err != nil {
		fields["email"] = "Enter a valid email address."
	}
	if reg.Password == "" {
		fields["password"] = "This field may not be blank."
	}
	return fields
}
