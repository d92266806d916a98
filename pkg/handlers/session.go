package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"timebox/pkg/credential"
	"timebox/pkg/middleware"
	"timebox/pkg/session"
)

const (
	muxVarSessionID = "session_id"

	msgRejected = "invalid or expired session"
	msgNotFound = "session not found"
)

type CreateForm struct {
	DurationMinutes *int `json:"duration_minutes"`
}

type SessionHandler struct {
	Store    session.Store
	Acquirer credential.Acquirer
	Logger   *slog.Logger
	Clock    func() time.Time
}

func NewSessionHandler(store session.Store, acquirer credential.Acquirer, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		Store:    store,
		Acquirer: acquirer,
		Logger:   logger,
	}
}

// manager scopes the request to the caller's user id, or writes 401.
func (h *SessionHandler) manager(w http.ResponseWriter, r *http.Request) (*session.Manager, bool) {
	userID, ok := middleware.UserFromContext(r.Context())
	if !ok {
		WriteError(w, http.StatusUnauthorized, typeMessage, "unauthorized")
		return nil, false
	}

	var opts []session.Option
	if h.Clock != nil {
		opts = append(opts, session.WithClock(h.Clock))
	}
	return session.NewManager(userID, h.Store, opts...), true
}

func sessionID(r *http.Request) string {
	return mux.Vars(r)[muxVarSessionID]
}

func (h *SessionHandler) internalError(w http.ResponseWriter, action string, err error) {
	h.Logger.Error(action, "error", err)
	WriteError(w, http.StatusInternalServerError, typeError, "internal error")
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var form CreateForm
	if ok := DecodeJSONBody(w, r, &form); !ok {
		return
	}
	if form.DurationMinutes == nil {
		WriteError(w, http.StatusBadRequest, typeError, "duration_minutes is required")
		return
	}

	m, ok := h.manager(w, r)
	if !ok {
		return
	}

	id, err := m.CreateSession(r.Context(), *form.DurationMinutes)
	if errors.Is(err, session.ErrInvalidDuration) {
		WriteError(w, http.StatusBadRequest, typeError, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, "create session", err)
		return
	}

	if ok := writeJSON(w, h.Logger, http.StatusCreated, map[string]string{"session_id": id}); ok {
		h.Logger.Info("session created", "user", m.UserID(), "session", id, "minutes", *form.DurationMinutes)
	}
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}

	s, err := m.Lookup(r.Context(), sessionID(r))
	if errors.Is(err, session.ErrNotFound) {
		WriteError(w, http.StatusNotFound, typeMessage, msgNotFound)
		return
	}
	if err != nil {
		h.internalError(w, "lookup session", err)
		return
	}

	writeJSON(w, h.Logger, http.StatusOK, s.Record())
}

func (h *SessionHandler) Validate(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}

	id := sessionID(r)
	valid, err := m.ValidateSession(r.Context(), id)
	if err != nil {
		h.internalError(w, "validate session", err)
		return
	}
	if !valid {
		h.Logger.Info("session rejected", "user", m.UserID(), "session", id)
	}

	writeJSON(w, h.Logger, http.StatusOK, map[string]bool{"valid": valid})
}

func (h *SessionHandler) Emergency(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}

	id := sessionID(r)
	granted, err := m.EmergencyAccess(r.Context(), id)
	if err != nil {
		h.internalError(w, "emergency access", err)
		return
	}

	if ok := writeJSON(w, h.Logger, http.StatusOK, map[string]bool{"granted": granted}); ok {
		h.Logger.Info("emergency access", "user", m.UserID(), "session", id, "granted", granted)
	}
}

func (h *SessionHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}

	id := sessionID(r)
	err := m.Deactivate(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		WriteError(w, http.StatusNotFound, typeMessage, msgNotFound)
		return
	}
	if err != nil {
		h.internalError(w, "deactivate session", err)
		return
	}

	if ok := writeJSON(w, h.Logger, http.StatusOK, map[string]string{"message": "success"}); ok {
		h.Logger.Info("session paused", "user", m.UserID(), "session", id)
	}
}

// Credential hands out the external credential only while the session is valid.
func (h *SessionHandler) Credential(w http.ResponseWriter, r *http.Request) {
	m, ok := h.manager(w, r)
	if !ok {
		return
	}

	id := sessionID(r)
	valid, err := m.ValidateSession(r.Context(), id)
	if err != nil {
		h.internalError(w, "validate session", err)
		return
	}
	if !valid {
		WriteError(w, http.StatusForbidden, typeMessage, msgRejected)
		return
	}

	cred, err := h.Acquirer.Acquire(r.Context())
	if errors.Is(err, credential.ErrNotFound) {
		WriteError(w, http.StatusNotFound, typeMessage, "credential not found")
		return
	}
	if err != nil {
		h.Logger.Error("acquire credential", "error", err)
		WriteError(w, http.StatusBadGateway, typeError, "credential unavailable")
		return
	}

	writeJSON(w, h.Logger, http.StatusOK, map[string]string{"credential": cred})
}
