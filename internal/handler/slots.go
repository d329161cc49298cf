// Package handler exposes the HTTP endpoints: public slot browsing, the
// booking form submission and the admin listing and export.
package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hyrox-registration/internal/logger"
	"github.com/iliyamo/hyrox-registration/internal/model"
)

const dateLayout = "2006-01-02"

// SlotReader is the read side of the slot store.
type SlotReader interface {
	EventDates(ctx context.Context) ([]string, error)
	ListByDate(ctx context.Context, date, category string) ([]model.SlotAvailability, error)
	Categories(ctx context.Context, date string) ([]model.Category, error)
}

// PublicHandler serves the unauthenticated browse endpoints.  Responses may
// be served from cache and lag behind bookings by a few seconds.
type PublicHandler struct {
	Slots       SlotReader
	DefaultDate string
	Log         *logger.Logger
}

// EventDates lists the days that have slots.
func (h *PublicHandler) EventDates(c echo.Context) error {
	dates, err := h.Slots.EventDates(c.Request().Context())
	if err != nil {
		return h.dbError(c, "list event dates", err)
	}
	if dates == nil {
		dates = []string{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": dates})
}

// ListSlots lists the slots of ?date= with their remaining capacity,
// optionally narrowed to ?category=.
func (h *PublicHandler) ListSlots(c echo.Context) error {
	ctx := c.Request().Context()
	date, err := h.resolveDate(ctx, c.QueryParam("date"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date"})
	}
	category := strings.TrimSpace(c.QueryParam("category"))
	items := []model.SlotAvailability{}
	if date != "" {
		items, err = h.Slots.ListByDate(ctx, date, category)
		if err != nil {
			return h.dbError(c, "list slots", err)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"date": date, "items": items})
}

// ListCategories lists the categories offered on ?date=.
func (h *PublicHandler) ListCategories(c echo.Context) error {
	ctx := c.Request().Context()
	date, err := h.resolveDate(ctx, c.QueryParam("date"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date"})
	}
	items := []model.Category{}
	if date != "" {
		items, err = h.Slots.Categories(ctx, date)
		if err != nil {
			return h.dbError(c, "list categories", err)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"date": date, "items": items})
}

// resolveDate validates raw, falling back to the configured event date and
// then to the first day that has slots.  An empty result means there are
// no slots at all.
func (h *PublicHandler) resolveDate(ctx context.Context, raw string) (string, error) {
	if d := strings.TrimSpace(raw); d != "" {
		return parseDate(d)
	}
	if h.DefaultDate != "" {
		return h.DefaultDate, nil
	}
	dates, err := h.Slots.EventDates(ctx)
	if err != nil || len(dates) == 0 {
		return "", nil
	}
	return dates[0], nil
}

func (h *PublicHandler) dbError(c echo.Context, op string, err error) error {
	logOrDiscard(h.Log).Error(op+" failed", "error", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
}

func parseDate(s string) (string, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return "", err
	}
	return t.Format(dateLayout), nil
}

func logOrDiscard(l *logger.Logger) *logger.Logger {
	if l == nil {
		return logger.Discard()
	}
	return l
}
