package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/wardenhq/warden/internal/events"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
)

// EventsHandler exposes read-only views of the audit log for operators.
type EventsHandler struct {
	store events.Store
}

func NewEventsHandler(store events.Store) *EventsHandler {
	return &EventsHandler{store: store}
}

// Recent returns the newest audit entries, newest first. ?limit caps the
// page size.
func (h *EventsHandler) Recent(c echo.Context) error {
	limit := defaultRecentLimit
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		}
		limit = n
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	entries, err := h.store.RecentEvents(c.Request().Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to query recent events")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
	}
	if entries == nil {
		entries = []events.Entry{}
	}

	return c.JSON(http.StatusOK, map[string]any{
		"count":  len(entries),
		"events": entries,
	})
}

// Stats returns decision counts over a trailing window (?hours, default 24).
func (h *EventsHandler) Stats(c echo.Context) error {
	hours := 24
	if raw := c.QueryParam("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "hours must be a positive integer"})
		}
		hours = n
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour).Unix()
	counts, err := h.store.CountByDecision(c.Request().Context(), since)
	if err != nil {
		log.Error().Err(err).Msg("failed to query event stats")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "query failed"})
	}

	return c.JSON(http.StatusOK, map[string]any{
		"since":  since,
		"hours":  hours,
		"counts": counts,
	})
}
