package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hyrox-registration/internal/logger"
	"github.com/iliyamo/hyrox-registration/internal/model"
	"github.com/iliyamo/hyrox-registration/internal/report"
	"github.com/iliyamo/hyrox-registration/internal/utils"
)

// RegistrationLister is the admin read side of the registration store.
type RegistrationLister interface {
	ListByDate(ctx context.Context, date string) ([]model.RegistrationRow, error)
}

// AdminHandler serves the organiser endpoints.  There are no user accounts:
// one shared password, stored as a bcrypt hash, unlocks an ADMIN token.
type AdminHandler struct {
	PasswordHash  string
	JWTSecret     string
	TokenTTLMin   int
	Registrations RegistrationLister
	DefaultDate   string
	Log           *logger.Logger
}

type loginReq struct {
	Password string `json:"password"`
}

// Login exchanges the shared admin password for an access token.
func (h *AdminHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password required"})
	}
	if !utils.VerifyPassword(h.PasswordHash, req.Password) {
		logOrDiscard(h.Log).Warn("admin login rejected", "remote_ip", c.RealIP())
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	tok, err := utils.NewAccessToken(h.JWTSecret, "admin", utils.RoleAdmin, h.TokenTTLMin)
	if err != nil {
		logOrDiscard(h.Log).Error("issue admin token failed", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token error"})
	}
	return c.JSON(http.StatusOK, tok)
}

// List returns every registration of ?date=.
func (h *AdminHandler) List(c echo.Context) error {
	date, rows, err := h.rows(c)
	if err != nil {
		return err
	}
	if rows == nil {
		return nil
	}
	return c.JSON(http.StatusOK, echo.Map{"date": date, "count": len(rows), "items": rows})
}

// Export downloads the registrations of ?date= as CSV.
func (h *AdminHandler) Export(c echo.Context) error {
	date, rows, err := h.rows(c)
	if err != nil {
		return err
	}
	if rows == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := report.WriteRegistrationsCSV(&buf, rows); err != nil {
		logOrDiscard(h.Log).Error("write csv failed", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "export failed"})
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", report.Filename(date)))
	return c.Blob(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// rows resolves the date and loads its registrations.  When it has
// already written an error response it returns nil rows.
func (h *AdminHandler) rows(c echo.Context) (string, []model.RegistrationRow, error) {
	date := h.DefaultDate
	if raw := strings.TrimSpace(c.QueryParam("date")); raw != "" {
		d, err := parseDate(raw)
		if err != nil {
			return "", nil, c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid date"})
		}
		date = d
	}
	if date == "" {
		return "", nil, c.JSON(http.StatusBadRequest, echo.Map{"error": "date required"})
	}
	rows, err := h.Registrations.ListByDate(c.Request().Context(), date)
	if err != nil {
		logOrDiscard(h.Log).Error("list registrations failed", "date", date, "error", err)
		return "", nil, c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if rows == nil {
		rows = []model.RegistrationRow{}
	}
	return date, rows, nil
}
