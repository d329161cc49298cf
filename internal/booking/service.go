// Package booking implements the slot booking operation: it validates a
// submission, applies the pair policy and hands the atomic check-and-insert
// to the store, mapping every reply onto a tagged Outcome.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iliyamo/hyrox-registration/internal/logger"
	"github.com/iliyamo/hyrox-registration/internal/model"
	"github.com/iliyamo/hyrox-registration/internal/queue"
	"github.com/iliyamo/hyrox-registration/internal/repository"
)

// SlotFinder resolves a slot id.  It returns repository.ErrSlotNotFound for
// unknown ids.
type SlotFinder interface {
	GetByID(ctx context.Context, id int64) (*model.Slot, error)
}

// Store performs the atomic capacity check and insert.
type Store interface {
	Book(ctx context.Context, rec repository.BookingRecord) (repository.BookResult, error)
}

// Notifier receives confirmed registrations after commit.
type Notifier interface {
	RegistrationConfirmed(ctx context.Context, ev queue.RegistrationConfirmedEvent) error
}

const (
	defaultTimeout = 5 * time.Second
	publishTimeout = 3 * time.Second
)

// Config wires a Service.  Slots and Store are required; a nil Notifier
// disables confirmation events.
type Config struct {
	Slots    SlotFinder
	Store    Store
	Notifier Notifier
	Pairs    model.PairPolicy
	Logger   *logger.Logger
	Timeout  time.Duration
}

// Service books slots.  It holds no mutable state, so one instance serves
// all requests concurrently.
type Service struct {
	slots    SlotFinder
	store    Store
	notifier Notifier
	pairs    model.PairPolicy
	log      *logger.Logger
	timeout  time.Duration
	rules    *rules
}

func NewService(cfg Config) (*Service, error) {
	if cfg.Slots == nil || cfg.Store == nil {
		return nil, errors.New("booking: slot finder and store are required")
	}
	r, err := newRules()
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Discard()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Service{
		slots:    cfg.Slots,
		store:    cfg.Store,
		notifier: cfg.Notifier,
		pairs:    cfg.Pairs,
		log:      cfg.Logger.With("component", "booking"),
		timeout:  cfg.Timeout,
		rules:    r,
	}, nil
}

// Request is one submission of the registration form.
type Request struct {
	SlotID         int64
	Registrant     model.Person
	Partner        *model.Person
	IdempotencyKey string
}

func trimPerson(p model.Person) model.Person {
	return model.Person{
		FullName: strings.TrimSpace(p.FullName),
		Phone:    strings.TrimSpace(p.Phone),
		Email:    strings.TrimSpace(p.Email),
	}
}

// normalized trims every field.  A partner left completely blank counts as
// no partner.
func (r Request) normalized() Request {
	r.Registrant = trimPerson(r.Registrant)
	if r.Partner != nil {
		p := trimPerson(*r.Partner)
		if p == (model.Person{}) {
			r.Partner = nil
		} else {
			r.Partner = &p
		}
	}
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	return r
}

// Book validates req and books it.  Validation and the pair policy run
// before the store is touched; the capacity check and insert happen in one
// store transaction.  Every store failure, including the booking timeout,
// comes back as TransientError and never as Confirmed.
func (s *Service) Book(ctx context.Context, req Request) Outcome {
	req = req.normalized()

	if fe := s.rules.person(req.Registrant, ""); fe != nil {
		return invalid(fe.Field, fe.Reason)
	}
	if fe := s.rules.requestKey(req.IdempotencyKey); fe != nil {
		return invalid(fe.Field, fe.Reason)
	}
	if req.SlotID <= 0 {
		return Outcome{Kind: NotFound}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	slot, err := s.slots.GetByID(ctx, req.SlotID)
	if errors.Is(err, repository.ErrSlotNotFound) {
		return Outcome{Kind: NotFound}
	}
	if err != nil {
		s.log.Error("slot lookup failed", "slot_id", req.SlotID, "error", err)
		return transient(fmt.Errorf("load slot %d: %w", req.SlotID, err))
	}

	pair := s.pairs.IsPair(slot.Category)
	switch {
	case pair && req.Partner == nil:
		return invalid("partner", "is required for this category")
	case !pair && req.Partner != nil:
		return invalid("partner", "is not allowed for this category")
	}
	if req.Partner != nil {
		if fe := s.rules.person(*req.Partner, "partner"); fe != nil {
			return invalid(fe.Field, fe.Reason)
		}
	}

	res, err := s.store.Book(ctx, repository.BookingRecord{
		SlotID:     req.SlotID,
		Registrant: req.Registrant,
		Partner:    req.Partner,
		RequestKey: req.IdempotencyKey,
	})
	if err != nil {
		s.log.Error("booking transaction failed", "slot_id", req.SlotID, "error", err)
		return transient(err)
	}

	out := outcomeFromResult(res)
	switch out.Kind {
	case Confirmed:
		s.log.Info("registration confirmed",
			"slot_id", req.SlotID,
			"registration_id", out.Registration.ID,
			"replayed", out.Replayed,
		)
		if !out.Replayed {
			s.publish(ctx, *slot, *out.Registration)
		}
	case SlotFull:
		s.log.Info("slot full", "slot_id", req.SlotID)
	case TransientError:
		s.log.Error("unexpected booking reply", "slot_id", req.SlotID, "code", res.Code, "ok", res.OK)
	}
	return out
}

// outcomeFromResult maps the store reply.  Anything that does not match a
// known code exactly is treated as malformed.
func outcomeFromResult(res repository.BookResult) Outcome {
	switch res.Code {
	case repository.CodeConfirmed, repository.CodeReplayed:
		if !res.OK || res.Registration == nil {
			return transient(fmt.Errorf("%w: %s without registration", ErrMalformedReply, res.Code))
		}
		return confirmed(res.Registration, res.Code == repository.CodeReplayed)
	}
	if res.OK {
		return transient(fmt.Errorf("%w: ok with code %q", ErrMalformedReply, res.Code))
	}
	switch res.Code {
	case repository.CodeSlotFull:
		return Outcome{Kind: SlotFull}
	case repository.CodeSlotNotFound:
		return Outcome{Kind: NotFound}
	case repository.CodePartnerRequired:
		return invalid("partner", "is required for this category")
	case repository.CodePartnerNotAllowed:
		return invalid("partner", "is not allowed for this category")
	case repository.CodeKeyConflict:
		return invalid("idempotency_key", "was already used for another slot")
	default:
		return transient(fmt.Errorf("%w: code %q", ErrMalformedReply, res.Code))
	}
}

func (s *Service) publish(ctx context.Context, slot model.Slot, reg model.Registration) {
	if s.notifier == nil {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	ev := queue.NewRegistrationConfirmedEvent(slot, reg)
	if err := s.notifier.RegistrationConfirmed(pctx, ev); err != nil {
		s.log.Warn("publish registration.confirmed failed",
			"registration_id", reg.ID,
			"event_id", ev.EventID,
			"error", err,
		)
	}
}
