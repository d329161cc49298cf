// Package queue carries registration events over RabbitMQ: the payloads,
// a publisher used after a booking commits and a consumer that appends
// them to a log file.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/hyrox-registration/internal/model"
)

// RegistrationConfirmedQueue is the durable queue confirmed bookings go to.
const RegistrationConfirmedQueue = "registration.confirmed"

// RegistrationConfirmedEvent is published once per new registration.  It
// holds enough of the slot and the people for downstream consumers to log
// or notify without reading the database.
type RegistrationConfirmedEvent struct {
	EventID         string `json:"event_id"`
	RegistrationID  int64  `json:"registration_id"`
	SlotID          int64  `json:"slot_id"`
	Category        string `json:"category"`
	EventDate       string `json:"event_date"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	PartnerFullName string `json:"partner_full_name,omitempty"`
	PartnerEmail    string `json:"partner_email,omitempty"`
	ConfirmedAt     string `json:"confirmed_at"`
}

// NewRegistrationConfirmedEvent builds the event for reg booked on slot.
func NewRegistrationConfirmedEvent(slot model.Slot, reg model.Registration) RegistrationConfirmedEvent {
	ev := RegistrationConfirmedEvent{
		EventID:        uuid.NewString(),
		RegistrationID: reg.ID,
		SlotID:         slot.ID,
		Category:       slot.Category,
		EventDate:      slot.EventDate,
		StartTime:      slot.StartTime,
		EndTime:        slot.EndTime,
		FullName:       reg.Registrant.FullName,
		Email:          reg.Registrant.Email,
		ConfirmedAt:    reg.CreatedAt.UTC().Format(time.RFC3339),
	}
	if reg.Partner != nil {
		ev.PartnerFullName = reg.Partner.FullName
		ev.PartnerEmail = reg.Partner.Email
	}
	return ev
}
