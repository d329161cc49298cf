package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/hyrox-registration/internal/model"
)

// queryRower is satisfied by *sql.DB and *sql.Tx.
type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanTime accepts the timestamp shapes the three drivers hand back:
// time.Time from MySQL (parseTime) and pgx, text or time.Time from SQLite.
type scanTime struct {
	T time.Time
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
}

func (s *scanTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		s.T = time.Time{}
	case time.Time:
		s.T = x.UTC()
	case int64:
		s.T = time.UnixMilli(x).UTC()
	case []byte:
		return s.parse(string(x))
	case string:
		return s.parse(x)
	default:
		return fmt.Errorf("unsupported timestamp value %T", v)
	}
	return nil
}

func (s *scanTime) parse(raw string) error {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			s.T = t.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", raw)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const registrationColumns = `r.id, r.slot_id, r.full_name, r.phone, r.email,
       r.partner_full_name, r.partner_phone, r.partner_email, r.request_key, r.created_at`

// scanRegistration reads the columns listed in registrationColumns.
// extra receives any leading columns selected before them.
func scanRegistration(row rowScanner, extra ...any) (model.Registration, error) {
	var (
		reg                               model.Registration
		pName, pPhone, pEmail, requestKey sql.NullString
		created                           scanTime
	)
	dest := append(extra,
		&reg.ID, &reg.SlotID, &reg.Registrant.FullName, &reg.Registrant.Phone, &reg.Registrant.Email,
		&pName, &pPhone, &pEmail, &requestKey, &created,
	)
	if err := row.Scan(dest...); err != nil {
		return model.Registration{}, err
	}
	if pName.Valid || pPhone.Valid || pEmail.Valid {
		reg.Partner = &model.Person{FullName: pName.String, Phone: pPhone.String, Email: pEmail.String}
	}
	if requestKey.Valid {
		k := requestKey.String
		reg.RequestKey = &k
	}
	reg.CreatedAt = created.T
	return reg, nil
}
