// Package report renders the admin export of registrations.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/iliyamo/hyrox-registration/internal/model"
)

var header = []string{
	"event_date", "category", "start_time", "end_time",
	"full_name", "phone", "email", "created_at",
}

// Filename is the attachment name for the export of date.
func Filename(date string) string {
	return fmt.Sprintf("inscritos_%s.csv", date)
}

// WriteRegistrationsCSV writes a header line then one record per row, in
// the order given.  Only the registrant is exported; partner details are
// in the JSON listing.
func WriteRegistrationsCSV(w io.Writer, rows []model.RegistrationRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.EventDate, r.Category, r.StartTime, r.EndTime,
			r.Registrant.FullName, r.Registrant.Phone, r.Registrant.Email,
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
