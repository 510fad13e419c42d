package services

import (
	"context"
	"fmt"
	"time"

	"youthexchange/internal/domain"
	"youthexchange/internal/pricing"
)

type eventService struct {
	eventRepo      domain.EventRepository
	contextTimeout time.Duration
}

func NewEventService(eventRepo domain.EventRepository, timeout time.Duration) domain.EventService {
	return &eventService{
		eventRepo:      eventRepo,
		contextTimeout: timeout,
	}
}

func (s *eventService) CreateEvent(ctx context.Context, event *domain.Event) error {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	event.ID = ""
	event.Normalize()
	if err := event.Validate(); err != nil {
		return err
	}
	if err := s.eventRepo.Create(ctx, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (s *eventService) GetEvent(ctx context.Context, id string) (*domain.Event, error) {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if id == "" {
		return nil, domain.Invalid("id", "is required")
	}
	return s.eventRepo.GetByID(ctx, id)
}

func (s *eventService) UpdateEvent(ctx context.Context, event *domain.Event) error {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if event.ID == "" {
		return domain.Invalid("id", "is required")
	}
	event.Normalize()
	if err := event.Validate(); err != nil {
		return err
	}
	if err := s.eventRepo.Update(ctx, event); err != nil {
		return fmt.Errorf("update event %s: %w", event.ID, err)
	}
	return nil
}

// DeleteEvent removes the event only. Registrations pointing at it are left dangling.
func (s *eventService) DeleteEvent(ctx context.Context, id string) error {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if err := s.eventRepo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete event %s: %w", id, err)
	}
	return nil
}

func (s *eventService) ListEvents(ctx context.Context) ([]*domain.Event, error) {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()
	return s.eventRepo.List(ctx)
}

// GetPricing resolves the event's lots against today. The caller supplies today so results are
// reproducible.
func (s *eventService) GetPricing(ctx context.Context, id string, today time.Time) (*domain.PricingState, error) {
	event, err := s.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	state := pricing.Resolve(event.Lots, today)
	return &state, nil
}
