// Package repository holds the SQL access for slots and registrations.
// The sentinel errors below let the booking service and handlers tell a
// missing row apart from a driver failure.
package repository

import "errors"

// ErrSlotNotFound is returned when a slot id does not resolve to a row.
// Handlers translate it into an HTTP 404 response.
var ErrSlotNotFound = errors.New("slot not found")

// ErrRegistrationNotFound is returned by lookups that match no
// registration, such as an unknown idempotency key.
var ErrRegistrationNotFound = errors.New("registration not found")
