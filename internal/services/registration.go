package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"youthexchange/internal/domain"
	"youthexchange/internal/metrics"
)

type registrationService struct {
	tx             domain.Transactor
	registrations  domain.RegistrationRepository
	events         domain.EventRepository
	registrants    domain.RegistrantRepository
	canTransition  domain.TransitionPolicy
	metrics        *metrics.Metrics
	logger         *slog.Logger
	contextTimeout time.Duration
}

// NewRegistrationService returns the registration lifecycle. A nil policy means
// domain.PermissiveTransitions.
func NewRegistrationService(
	repos domain.Repositories,
	tx domain.Transactor,
	policy domain.TransitionPolicy,
	m *metrics.Metrics,
	logger *slog.Logger,
	timeout time.Duration,
) domain.RegistrationService {
	if policy == nil {
		policy = domain.PermissiveTransitions
	}
	return &registrationService{
		tx:             tx,
		registrations:  repos.Registrations,
		events:         repos.Events,
		registrants:    repos.Registrants,
		canTransition:  policy,
		metrics:        m,
		logger:         logger,
		contextTimeout: timeout,
	}
}

func (s *registrationService) CanTransition(from, to domain.RegistrationStatus) bool {
	return s.canTransition(from, to)
}

// CreateRegistration links an existing registrant to an existing event. Role defaults to
// participant and status to applied.
func (s *registrationService) CreateRegistration(ctx context.Context, in domain.CreateRegistrationInput) (*domain.Registration, error) {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if !in.EventRef.In(domain.CollectionEvents) {
		return nil, domain.Invalid("eventRef", "must reference an event")
	}
	if !in.RegistrantRef.In(domain.CollectionRegistrants) {
		return nil, domain.Invalid("registrantRef", "must reference a registrant")
	}
	if in.Role == "" {
		in.Role = domain.RoleParticipant
	}
	if !in.Role.Valid() {
		return nil, domain.Invalid("role", "unknown role %q", in.Role)
	}
	if in.Status == "" {
		in.Status = domain.RegistrationApplied
	}
	if !in.Status.Valid() {
		return nil, domain.Invalid("status", "unknown status %q", in.Status)
	}

	reg := &domain.Registration{
		EventRef:      in.EventRef,
		RegistrantRef: in.RegistrantRef,
		Role:          in.Role,
		Status:        in.Status,
	}
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if _, err := repos.Events.GetByID(ctx, in.EventRef.ID); err != nil {
			return fmt.Errorf("event %s: %w", in.EventRef, err)
		}
		if _, err := repos.Registrants.GetByID(ctx, in.RegistrantRef.ID); err != nil {
			return fmt.Errorf("registrant %s: %w", in.RegistrantRef, err)
		}
		return repos.Registrations.Create(ctx, reg)
	})
	if err != nil {
		return nil, fmt.Errorf("create registration: %w", err)
	}
	s.metrics.RegistrationCreated("admin")
	s.logger.Info("registration created", "registration_id", reg.ID, "event", reg.EventRef.String(), "status", reg.Status)
	return reg, nil
}

func (s *registrationService) GetRegistration(ctx context.Context, id string) (*domain.Registration, error) {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if id == "" {
		return nil, domain.Invalid("id", "is required")
	}
	return s.registrations.GetByID(ctx, id)
}

// UpdateStatus moves a registration to status if the transition policy allows it. The check and
// the write happen in one transaction; updatedAt is refreshed even when the status is unchanged.
func (s *registrationService) UpdateStatus(ctx context.Context, id string, status domain.RegistrationStatus) (*domain.Registration, error) {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if !status.Valid() {
		return nil, domain.Invalid("status", "unknown status %q", status)
	}
	var (
		from    domain.RegistrationStatus
		updated *domain.Registration
	)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		current, err := repos.Registrations.GetByID(ctx, id)
		if err != nil {
			return err
		}
		from = current.Status
		if !s.canTransition(from, status) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrIllegalTransition, from, status)
		}
		updated, err = repos.Registrations.UpdateStatus(ctx, id, status)
		return err
	})
	if err != nil {
		if errors.Is(err, domain.ErrIllegalTransition) {
			s.metrics.TransitionRejected()
		}
		return nil, fmt.Errorf("update registration %s: %w", id, err)
	}
	s.metrics.Transition(string(from), string(status))
	s.logger.Info("registration status changed", "registration_id", id, "from", from, "to", status)
	return updated, nil
}

// DeleteRegistration removes the registration only; its event and registrant are untouched.
func (s *registrationService) DeleteRegistration(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if err := s.registrations.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete registration %s: %w", id, err)
	}
	s.logger.Info("registration deleted", "registration_id", id)
	return nil
}

func (s *registrationService) ListRegistrations(ctx context.Context, filter domain.RegistrationFilter) ([]*domain.Registration, error) {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.Invalid("status", "unknown status %q", filter.Status)
	}
	return s.registrations.List(ctx, filter)
}

// ListRegistrationViews resolves event titles and registrant names. Dangling references fall back
// to the raw id and are flagged instead of failing the whole list.
func (s *registrationService) ListRegistrationViews(ctx context.Context, filter domain.RegistrationFilter) ([]*domain.RegistrationView, error) {
	regs, err := s.ListRegistrations(ctx, filter)
	if err != nil {
		return nil, err
	}
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	eventTitles := map[domain.Ref]*string{}
	registrantNames := map[domain.Ref]*string{}
	views := make([]*domain.RegistrationView, 0, len(regs))
	for _, reg := range regs {
		v := &domain.RegistrationView{Registration: reg}

		title, err := s.resolve(ctx, eventTitles, reg.EventRef, domain.CollectionEvents, func(id string) (string, error) {
			e, err := s.events.GetByID(ctx, id)
			if err != nil {
				return "", err
			}
			return e.Title, nil
		})
		if err != nil {
			return nil, err
		}
		if title == nil {
			v.EventTitle, v.EventMissing = reg.EventRef.ID, true
		} else {
			v.EventTitle = *title
		}

		name, err := s.resolve(ctx, registrantNames, reg.RegistrantRef, domain.CollectionRegistrants, func(id string) (string, error) {
			r, err := s.registrants.GetByID(ctx, id)
			if err != nil {
				return "", err
			}
			return r.DisplayName(), nil
		})
		if err != nil {
			return nil, err
		}
		if name == nil {
			v.RegistrantName, v.RegistrantMissing = reg.RegistrantRef.ID, true
		} else {
			v.RegistrantName = *name
		}
		views = append(views, v)
	}
	return views, nil
}

// resolve looks ref up once per call of ListRegistrationViews. A nil result means the reference
// is dangling or points at the wrong collection.
func (s *registrationService) resolve(ctx context.Context, cache map[domain.Ref]*string, ref domain.Ref, collection string, load func(id string) (string, error)) (*string, error) {
	if cached, ok := cache[ref]; ok {
		return cached, nil
	}
	var out *string
	if ref.In(collection) {
		label, err := load(ref.ID)
		switch {
		case err == nil:
			out = &label
		case errors.Is(err, domain.ErrNotFound):
		default:
			return nil, err
		}
	}
	if out == nil {
		s.logger.Debug("dangling reference", "ref", ref.String())
	}
	cache[ref] = out
	return out, nil
}

func (s *registrationService) ListOwnedRegistrations(ctx context.Context, principalID string) ([]*domain.Registration, error) {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if principalID == "" {
		return nil, domain.ErrUnauthorized
	}
	return s.registrations.ListByOwner(ctx, principalID)
}

func (s *registrationService) WatchRegistrations(filter domain.RegistrationFilter, fn func([]*domain.Registration)) (domain.Subscription, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, domain.Invalid("status", "unknown status %q", filter.Status)
	}
	return s.registrations.Subscribe(filter, fn)
}
