package model

import "time"

// Person is the contact data collected for a registrant or a partner.
type Person struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
}

// Registration records one booking against a slot.  Pair categories
// store both people on the same row so the booking takes one unit of
// capacity.  Rows are never updated or deleted.
//
// Fields:
//  ID         – primary key identifier.
//  SlotID     – slot the booking belongs to.
//  Registrant – primary person.
//  Partner    – second person, present only for pair categories.
//  RequestKey – client idempotency key, if one was sent.
//  CreatedAt  – commit timestamp (UTC).
type Registration struct {
	ID         int64     `json:"id"`                    // registrations.id
	SlotID     int64     `json:"slot_id"`               // registrations.slot_id
	Registrant Person    `json:"registrant"`            // registrations.full_name, phone, email
	Partner    *Person   `json:"partner,omitempty"`     // registrations.partner_* (nullable)
	RequestKey *string   `json:"request_key,omitempty"` // registrations.request_key (nullable)
	CreatedAt  time.Time `json:"created_at"`            // registrations.created_at
}

// RegistrationRow is a registration joined to its slot, the shape the
// admin listing and CSV export work with.
type RegistrationRow struct {
	EventDate string `json:"event_date"`
	Category  string `json:"category"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Registration
}
