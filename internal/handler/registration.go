package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hyrox-registration/internal/booking"
	"github.com/iliyamo/hyrox-registration/internal/model"
)

// HeaderIdempotencyKey carries the client's retry key on booking requests.
const HeaderIdempotencyKey = "Idempotency-Key"

// Booker is implemented by *booking.Service.
type Booker interface {
	Book(ctx context.Context, req booking.Request) booking.Outcome
}

// RegistrationHandler accepts registration form submissions.
type RegistrationHandler struct {
	Booker Booker
}

type personBody struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
}

type registrationBody struct {
	personBody
	Partner *personBody `json:"partner"`
	Consent bool        `json:"consent"`
}

func (p personBody) person() model.Person {
	return model.Person{FullName: p.FullName, Phone: p.Phone, Email: p.Email}
}

// Create books the slot in the path for the submitted people.  The form's
// consent box must be ticked before anything is booked.
//
//	201 confirmed, 200 replayed (same Idempotency-Key), 409 slot full,
//	422 validation failed, 404 unknown slot, 503 store unavailable.
func (h *RegistrationHandler) Create(c echo.Context) error {
	slotID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || slotID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid slot id"})
	}
	var body registrationBody
	if err := (&echo.DefaultBinder{}).BindBody(c, &body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}

	if !body.Consent {
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"error":   "validation_failed",
			"field":   "consent",
			"reason":  "must be accepted",
			"message": "consent must be accepted.",
		})
	}

	req := booking.Request{
		SlotID:         slotID,
		Registrant:     body.person(),
		IdempotencyKey: c.Request().Header.Get(HeaderIdempotencyKey),
	}
	if body.Partner != nil {
		p := body.Partner.person()
		req.Partner = &p
	}

	out := h.Booker.Book(c.Request().Context(), req)
	switch out.Kind {
	case booking.Confirmed:
		status := http.StatusCreated
		if out.Replayed {
			status = http.StatusOK
		}
		return c.JSON(status, echo.Map{
			"message":      out.Message(),
			"replayed":     out.Replayed,
			"registration": out.Registration,
		})
	case booking.SlotFull:
		return c.JSON(http.StatusConflict, echo.Map{"error": "slot_full", "message": out.Message()})
	case booking.ValidationFailed:
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"error":   "validation_failed",
			"field":   out.Field,
			"reason":  out.Reason,
			"message": out.Message(),
		})
	case booking.NotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"error": "slot_not_found", "message": out.Message()})
	default:
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "unavailable", "message": out.Message()})
	}
}
