package booking

import (
	"errors"
	"fmt"

	"github.com/iliyamo/hyrox-registration/internal/model"
)

// Kind tags the result of a booking attempt.
type Kind int

const (
	Confirmed Kind = iota + 1
	SlotFull
	ValidationFailed
	NotFound
	TransientError
)

func (k Kind) String() string {
	switch k {
	case Confirmed:
		return "confirmed"
	case SlotFull:
		return "slot_full"
	case ValidationFailed:
		return "validation_failed"
	case NotFound:
		return "not_found"
	case TransientError:
		return "transient_error"
	default:
		return "unknown"
	}
}

// ErrMalformedReply marks a store reply that matches no known outcome.  It
// is reported as a TransientError so it can never pass for a confirmation.
var ErrMalformedReply = errors.New("malformed booking reply")

// Outcome is the result of Book.  Registration is set only for Confirmed;
// Field and Reason only for ValidationFailed; Err only for TransientError.
type Outcome struct {
	Kind         Kind
	Registration *model.Registration
	Replayed     bool
	Field        string
	Reason       string
	Err          error
}

func confirmed(reg *model.Registration, replayed bool) Outcome {
	return Outcome{Kind: Confirmed, Registration: reg, Replayed: replayed}
}

func invalid(field, reason string) Outcome {
	return Outcome{Kind: ValidationFailed, Field: field, Reason: reason}
}

func transient(err error) Outcome {
	return Outcome{Kind: TransientError, Err: err}
}

// OK reports whether a registration row exists for this attempt.
func (o Outcome) OK() bool { return o.Kind == Confirmed && o.Registration != nil }

// Message is the text shown to the person who submitted the form.
func (o Outcome) Message() string {
	switch o.Kind {
	case Confirmed:
		if o.Replayed {
			return "Registration already confirmed."
		}
		return "Registration confirmed."
	case SlotFull:
		return "This slot is full. Please choose another time."
	case ValidationFailed:
		return fmt.Sprintf("%s %s.", o.Field, o.Reason)
	case NotFound:
		return "The selected slot does not exist."
	case TransientError:
		return "The registration could not be saved. Please try again."
	default:
		return "Unknown result."
	}
}

func (o Outcome) String() string {
	if o.Kind == ValidationFailed {
		return fmt.Sprintf("%s(%s: %s)", o.Kind, o.Field, o.Reason)
	}
	return o.Kind.String()
}
