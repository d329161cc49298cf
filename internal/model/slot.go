package model

// Slot is one bookable time window of a category on an event day.
// Slots are provisioned outside the service; capacity never changes
// once created and counts reservations, not people.
//
// Fields:
//  ID        – primary key identifier.
//  Category  – activity label (e.g. "Hyrox Individual").
//  EventDate – day of the event, YYYY-MM-DD.
//  StartTime – start of the window, HH:MM.
//  EndTime   – end of the window, HH:MM.
//  Capacity  – number of registrations the slot accepts.
type Slot struct {
	ID        int64  `json:"id"`         // slots.id
	Category  string `json:"category"`   // slots.category
	EventDate string `json:"event_date"` // slots.event_date
	StartTime string `json:"start_time"` // slots.start_time
	EndTime   string `json:"end_time"`   // slots.end_time
	Capacity  int    `json:"capacity"`   // slots.capacity
}

// SlotAvailability is a slot together with how much of it is taken.
// Remaining is capacity minus booked and never goes below zero.
type SlotAvailability struct {
	Slot
	Booked    int  `json:"booked"`
	Remaining int  `json:"remaining"`
	Pair      bool `json:"pair"`
}

// NewSlotAvailability derives Remaining from the slot capacity and the
// number of registrations already stored against it.
func NewSlotAvailability(s Slot, booked int) SlotAvailability {
	remaining := s.Capacity - booked
	if remaining < 0 {
		remaining = 0
	}
	return SlotAvailability{Slot: s, Booked: booked, Remaining: remaining}
}

// Category summarises one activity offered on a day.
type Category struct {
	Name      string `json:"name"`
	Pair      bool   `json:"pair"`
	Slots     int    `json:"slots"`
	Remaining int    `json:"remaining"`
}
