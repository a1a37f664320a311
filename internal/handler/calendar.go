package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/jiaa-auth/internal/service"
)

// CalendarHandler proxies the caller's primary Google calendar.
// Every route requires authentication.
type CalendarHandler struct {
	calendar *service.CalendarService
	logger   *slog.Logger
}

func NewCalendarHandler(calendar *service.CalendarService, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{calendar: calendar, logger: logger}
}

// HandleList → GET /api/calendar/events
func (h *CalendarHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	events, err := h.calendar.ListEvents(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleCreate → POST /api/calendar/events
func (h *CalendarHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	var data map[string]any
	if err := decodeJSON(r, &data); err != nil {
		writeError(w, h.logger, err)
		return
	}
	ev, err := h.calendar.CreateEvent(r.Context(), user.ID, data)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// HandleUpdate → PUT /api/calendar/events/{id}
func (h *CalendarHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	var data map[string]any
	if err := decodeJSON(r, &data); err != nil {
		writeError(w, h.logger, err)
		return
	}
	ev, err := h.calendar.UpdateEvent(r.Context(), user.ID, chi.URLParam(r, "id"), data)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// HandleDelete → DELETE /api/calendar/events/{id}
func (h *CalendarHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.calendar.DeleteEvent(r.Context(), user.ID, chi.URLParam(r, "id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
