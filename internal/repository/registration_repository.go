package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/hyrox-registration/internal/database"
	"github.com/iliyamo/hyrox-registration/internal/model"
)

// RegistrationRepo books slots and reads registrations back for the admin
// views.  Book is the only write path for registrations.
type RegistrationRepo struct {
	db    *database.DB
	pairs model.PairPolicy
	now   func() time.Time

	// afterCount runs between the capacity count and the insert.  Tests use
	// it to widen the race window.
	afterCount func()
}

// NewRegistrationRepo returns a RegistrationRepo bound to db.  pairs is the
// same policy the booking service validates against; Book re-applies it
// under the slot lock.
func NewRegistrationRepo(db *database.DB, pairs model.PairPolicy) *RegistrationRepo {
	return &RegistrationRepo{db: db, pairs: pairs, now: time.Now}
}

// BookingRecord is the already validated input of one booking.
type BookingRecord struct {
	SlotID     int64
	Registrant model.Person
	Partner    *model.Person
	RequestKey string
}

// BookCode tells why Book did or did not write a row.
type BookCode string

const (
	CodeConfirmed         BookCode = "confirmed"
	CodeReplayed          BookCode = "replayed"
	CodeSlotFull          BookCode = "slot_full"
	CodeSlotNotFound      BookCode = "slot_not_found"
	CodePartnerRequired   BookCode = "partner_required"
	CodePartnerNotAllowed BookCode = "partner_not_allowed"
	CodeKeyConflict       BookCode = "key_conflict"
)

// BookResult is the reply of Book.  OK is true only when Registration holds
// a committed row, either new (CodeConfirmed) or found by its request key
// (CodeReplayed).
type BookResult struct {
	OK           bool
	Code         BookCode
	Message      string
	Registration *model.Registration
}

func rejected(code BookCode, msg string) BookResult {
	return BookResult{Code: code, Message: msg}
}

// Book checks capacity and inserts the registration in one transaction.
//
// The slot row is locked first (SELECT ... FOR UPDATE; on SQLite the
// transaction already holds the write lock from BEGIN IMMEDIATE), so two
// bookers of the same slot cannot both count the last free unit.  Errors
// are driver failures; business rejections come back as a BookResult with
// OK false.
func (r *RegistrationRepo) Book(ctx context.Context, rec BookingRecord) (BookResult, error) {
	d := r.db.Dialect
	tx, err := r.db.BeginTx(ctx, d.TxOptions())
	if err != nil {
		return BookResult{}, fmt.Errorf("begin booking tx: %w", err)
	}
	done := false
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()

	var (
		category string
		capacity int
	)
	lock := d.Rebind(`SELECT category, capacity FROM slots WHERE id = ?` + d.ForUpdate())
	err = tx.QueryRowContext(ctx, lock, rec.SlotID).Scan(&category, &capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return rejected(CodeSlotNotFound, "slot not found"), nil
	}
	if err != nil {
		return BookResult{}, fmt.Errorf("lock slot %d: %w", rec.SlotID, err)
	}

	if rec.RequestKey != "" {
		existing, err := r.findByKey(ctx, tx, rec.RequestKey)
		if err == nil {
			return replay(existing, rec.SlotID), nil
		}
		if !errors.Is(err, ErrRegistrationNotFound) {
			return BookResult{}, err
		}
	}

	pair := r.pairs.IsPair(category)
	if pair && rec.Partner == nil {
		return rejected(CodePartnerRequired, "this category requires partner details"), nil
	}
	if !pair && rec.Partner != nil {
		return rejected(CodePartnerNotAllowed, "this category does not accept a partner"), nil
	}

	var booked int
	if err := tx.QueryRowContext(ctx, d.Rebind(`SELECT COUNT(*) FROM registrations WHERE slot_id = ?`), rec.SlotID).Scan(&booked); err != nil {
		return BookResult{}, fmt.Errorf("count registrations: %w", err)
	}
	if r.afterCount != nil {
		r.afterCount()
	}
	if booked >= capacity {
		return rejected(CodeSlotFull, "slot is full"), nil
	}

	reg, err := r.insertTx(ctx, tx, rec)
	if err != nil {
		if rec.RequestKey != "" && d.IsUniqueViolation(err) {
			// A concurrent request with the same key committed first.
			_ = tx.Rollback()
			done = true
			existing, ferr := r.findByKey(ctx, r.db, rec.RequestKey)
			if ferr != nil {
				return BookResult{}, fmt.Errorf("reload registration by key: %w", ferr)
			}
			return replay(existing, rec.SlotID), nil
		}
		return BookResult{}, fmt.Errorf("insert registration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return BookResult{}, fmt.Errorf("commit booking: %w", err)
	}
	done = true
	return BookResult{OK: true, Code: CodeConfirmed, Message: "registration confirmed", Registration: reg}, nil
}

func replay(existing *model.Registration, slotID int64) BookResult {
	if existing.SlotID != slotID {
		return rejected(CodeKeyConflict, "idempotency key was already used for another slot")
	}
	return BookResult{OK: true, Code: CodeReplayed, Message: "registration already confirmed", Registration: existing}
}

func (r *RegistrationRepo) insertTx(ctx context.Context, tx *sql.Tx, rec BookingRecord) (*model.Registration, error) {
	d := r.db.Dialect
	created := r.now().UTC().Truncate(time.Microsecond)
	var partner model.Person
	if rec.Partner != nil {
		partner = *rec.Partner
	}
	const q = `INSERT INTO registrations
    (slot_id, full_name, phone, email, partner_full_name, partner_phone, partner_email, request_key, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []any{
		rec.SlotID, rec.Registrant.FullName, rec.Registrant.Phone, rec.Registrant.Email,
		nullString(partner.FullName), nullString(partner.Phone), nullString(partner.Email),
		nullString(rec.RequestKey), d.TimeArg(created),
	}

	var id int64
	if d.Returning() {
		if err := tx.QueryRowContext(ctx, d.Rebind(q+` RETURNING id`), args...).Scan(&id); err != nil {
			return nil, err
		}
	} else {
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return nil, err
		}
		if id, err = res.LastInsertId(); err != nil {
			return nil, err
		}
	}

	reg := &model.Registration{
		ID:         id,
		SlotID:     rec.SlotID,
		Registrant: rec.Registrant,
		CreatedAt:  created,
	}
	if rec.Partner != nil {
		p := *rec.Partner
		reg.Partner = &p
	}
	if rec.RequestKey != "" {
		k := rec.RequestKey
		reg.RequestKey = &k
	}
	return reg, nil
}

func (r *RegistrationRepo) findByKey(ctx context.Context, q queryRower, key string) (*model.Registration, error) {
	query := r.db.Dialect.Rebind(`SELECT ` + registrationColumns + ` FROM registrations r WHERE r.request_key = ?`)
	reg, err := scanRegistration(q.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRegistrationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find registration by key: %w", err)
	}
	return &reg, nil
}

// CountBySlot returns how many registrations reference slotID.
func (r *RegistrationRepo) CountBySlot(ctx context.Context, slotID int64) (int, error) {
	var n int
	q := r.db.Dialect.Rebind(`SELECT COUNT(*) FROM registrations WHERE slot_id = ?`)
	if err := r.db.QueryRowContext(ctx, q, slotID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ListByDate returns the registrations of a day joined to their slot,
// ordered by category, start time and creation time.
func (r *RegistrationRepo) ListByDate(ctx context.Context, date string) ([]model.RegistrationRow, error) {
	q := r.db.Dialect.Rebind(`
SELECT s.event_date, s.category, s.start_time, s.end_time, ` + registrationColumns + `
FROM registrations r
JOIN slots s ON s.id = r.slot_id
WHERE s.event_date = ?
ORDER BY s.category, s.start_time, r.created_at, r.id`)
	rows, err := r.db.QueryContext(ctx, q, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.RegistrationRow{}
	for rows.Next() {
		var row model.RegistrationRow
		reg, err := scanRegistration(rows, &row.EventDate, &row.Category, &row.StartTime, &row.EndTime)
		if err != nil {
			return nil, err
		}
		row.Registration = reg
		out = append(out, row)
	}
	return out, rows.Err()
}
