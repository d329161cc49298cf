package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/hyrox-registration/internal/database"
	"github.com/iliyamo/hyrox-registration/internal/model"
)

// SlotRepo reads slots and their booked counts.  Reads run outside any
// transaction; the numbers they return may be stale by the time a
// booking is attempted, which Book re-checks under lock.
type SlotRepo struct {
	db    *database.DB
	pairs model.PairPolicy
}

// NewSlotRepo returns a SlotRepo bound to db.  pairs marks pair
// categories in listings.
func NewSlotRepo(db *database.DB, pairs model.PairPolicy) *SlotRepo {
	return &SlotRepo{db: db, pairs: pairs}
}

// DB exposes the underlying handle so callers can ping it.
func (r *SlotRepo) DB() *database.DB { return r.db }

// Create inserts a slot and fills in its generated ID.  Slots are normally
// provisioned by operators; the service itself never calls this.
func (r *SlotRepo) Create(ctx context.Context, s *model.Slot) error {
	if s.Capacity <= 0 {
		return fmt.Errorf("slot capacity must be positive, got %d", s.Capacity)
	}
	const q = `INSERT INTO slots (category, event_date, start_time, end_time, capacity) VALUES (?, ?, ?, ?, ?)`
	args := []any{s.Category, s.EventDate, s.StartTime, s.EndTime, s.Capacity}
	if r.db.Dialect.Returning() {
		return r.db.QueryRowContext(ctx, r.db.Dialect.Rebind(q+` RETURNING id`), args...).Scan(&s.ID)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = id
	return nil
}

// GetByID returns the slot with the given id or ErrSlotNotFound.
func (r *SlotRepo) GetByID(ctx context.Context, id int64) (*model.Slot, error) {
	q := r.db.Dialect.Rebind(`SELECT id, category, event_date, start_time, end_time, capacity FROM slots WHERE id = ?`)
	var s model.Slot
	err := r.db.QueryRowContext(ctx, q, id).Scan(&s.ID, &s.Category, &s.EventDate, &s.StartTime, &s.EndTime, &s.Capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// EventDates lists the distinct days that have slots, ascending.
func (r *SlotRepo) EventDates(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT event_date FROM slots ORDER BY event_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	dates := []string{}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dates = append(dates, strings.TrimSpace(d))
	}
	return dates, rows.Err()
}

// ListByDate returns the slots of a day with booked and remaining counts,
// ordered by category then start time.  A non-empty category narrows the
// result (case-insensitive).
func (r *SlotRepo) ListByDate(ctx context.Context, date, category string) ([]model.SlotAvailability, error) {
	q := `
SELECT s.id, s.category, s.event_date, s.start_time, s.end_time, s.capacity, COUNT(r.id)
FROM slots s
LEFT JOIN registrations r ON r.slot_id = s.id
WHERE s.event_date = ?`
	args := []any{date}
	if c := strings.TrimSpace(category); c != "" {
		q += ` AND LOWER(s.category) = LOWER(?)`
		args = append(args, c)
	}
	q += `
GROUP BY s.id, s.category, s.event_date, s.start_time, s.end_time, s.capacity
ORDER BY s.category, s.start_time, s.id`

	rows, err := r.db.QueryContext(ctx, r.db.Dialect.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.SlotAvailability{}
	for rows.Next() {
		var (
			s      model.Slot
			booked int
		)
		if err := rows.Scan(&s.ID, &s.Category, &s.EventDate, &s.StartTime, &s.EndTime, &s.Capacity, &booked); err != nil {
			return nil, err
		}
		a := model.NewSlotAvailability(s, booked)
		a.Pair = r.pairs.IsPair(s.Category)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Categories summarises the activities offered on date in listing order.
func (r *SlotRepo) Categories(ctx context.Context, date string) ([]model.Category, error) {
	slots, err := r.ListByDate(ctx, date, "")
	if err != nil {
		return nil, err
	}
	out := []model.Category{}
	index := map[string]int{}
	for _, s := range slots {
		i, ok := index[s.Category]
		if !ok {
			i = len(out)
			index[s.Category] = i
			out = append(out, model.Category{Name: s.Category, Pair: s.Pair})
		}
		out[i].Slots++
		out[i].Remaining += s.Remaining
	}
	return out, nil
}
