package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/notifyengine/pkg/logger"
	"github.com/dmitrymomot/notifyengine/pkg/notifications"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	engine *notifications.Engine
	logger *slog.Logger
}

func (h *handlers) create(w http.ResponseWriter, r *http.Request) {
	var req notifications.Request
	if !h.decode(w, r, &req) {
		return
	}
	outcome, err := h.engine.CreateNotification(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusCreated
	if outcome.Kind == notifications.OutcomeSuppressed {
		status = http.StatusOK
	}
	h.respond(w, status, outcome)
}

type listResponse struct {
	Notifications []notifications.Notification `json:"notifications"`
}

func (h *handlers) listUnread(w http.ResponseWriter, r *http.Request) {
	list, err := h.engine.ListUnread(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if list == nil {
		list = []notifications.Notification{}
	}
	h.respond(w, http.StatusOK, listResponse{Notifications: list})
}

type countResponse struct {
	Count int `json:"count"`
}

func (h *handlers) countUnread(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.CountUnread(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, countResponse{Count: count})
}

func (h *handlers) markRead(w http.ResponseWriter, r *http.Request) {
	err := h.engine.MarkRead(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) markAllRead(w http.ResponseWriter, r *http.Request) {
	count, err := h.engine.MarkAllRead(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, countResponse{Count: count})
}

type snoozeRequest struct {
	Duration notifications.SnoozeDuration `json:"duration"`
}

type snoozeResponse struct {
	SnoozedUntil time.Time `json:"snoozed_until"`
}

func (h *handlers) snooze(w http.ResponseWriter, r *http.Request) {
	var body snoozeRequest
	if !h.decode(w, r, &body) {
		return
	}
	until, err := h.engine.Snooze(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "userID"), body.Duration)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, snoozeResponse{SnoozedUntil: until})
}

func (h *handlers) getPreferences(w http.ResponseWriter, r *http.Request) {
	prefs, err := h.engine.Preferences(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respond(w, http.StatusOK, prefs)
}

func (h *handlers) updatePreferences(w http.ResponseWriter, r *http.Request) {
	var patch notifications.PreferencesPatch
	if !h.decode(w, r, &patch) {
		return
	}
	prefs, err := h.engine.UpdatePreferences(r.Context(), chi.URLParam(r, "userID"), patch)
	if err != nil && prefs == nil {
		h.fail(w, r, err)
		return
	}
	if err != nil {
		// Stored, but a stale cached copy may linger until its TTL.
		h.logger.WarnContext(r.Context(), "preferences updated with stale cache", logger.Error(err))
	}
	h.respond(w, http.StatusOK, prefs)
}

func (h *handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.respond(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", logger.Error(err))
	}
	h.respond(w, status, errorResponse{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, notifications.ErrInvalidRequest),
		errors.Is(err, notifications.ErrInvalidSnoozeDuration),
		errors.Is(err, notifications.ErrInvalidPreferences):
		return http.StatusBadRequest
	case errors.Is(err, notifications.ErrNotificationNotFound):
		return http.StatusNotFound
	case errors.Is(err, notifications.ErrTransient):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", logger.Error(err))
	}
}
