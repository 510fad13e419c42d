package domain

import (
	"context"
	"strings"
	"time"
)

// DateLayout is the ISO calendar date format used for event and lot dates.
const DateLayout = "2006-01-02"

// EventType classifies an event.
type EventType string

const (
	EventTypeCamp       EventType = "camp"
	EventTypeExchange   EventType = "exchange"
	EventTypeConference EventType = "conference"
	EventTypeTraining   EventType = "training"
	EventTypeOther      EventType = "other"
)

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	switch t {
	case EventTypeCamp, EventTypeExchange, EventTypeConference, EventTypeTraining, EventTypeOther:
		return true
	}
	return false
}

// EventStatus is the publication state of an event.
type EventStatus string

const (
	EventStatusDraft    EventStatus = "draft"
	EventStatusOpen     EventStatus = "open"
	EventStatusClosed   EventStatus = "closed"
	EventStatusArchived EventStatus = "archived"
)

// Valid reports whether s is a known event status.
func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusDraft, EventStatusOpen, EventStatusClosed, EventStatusArchived:
		return true
	}
	return false
}

// Lot is a time-boxed pricing tier embedded in an Event. Dates are inclusive YYYY-MM-DD.
type Lot struct {
	Name      string  `json:"name"`
	StartDate string  `json:"startDate"`
	EndDate   string  `json:"endDate"`
	PriceBRL  float64 `json:"priceBRL"`
}

// Event is something registrants sign up for.
type Event struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Type        EventType   `json:"type"`
	Status      EventStatus `json:"status"`
	StartDate   string      `json:"startDate"`
	EndDate     string      `json:"endDate"`
	Location    string      `json:"location"`
	Description string      `json:"description"`
	Lots        []Lot       `json:"registrationLots"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Normalize trims text fields and fills defaults for empty enums.
func (e *Event) Normalize() {
	e.Title = strings.TrimSpace(e.Title)
	e.Location = strings.TrimSpace(e.Location)
	e.StartDate = strings.TrimSpace(e.StartDate)
	e.EndDate = strings.TrimSpace(e.EndDate)
	if e.Type == "" {
		e.Type = EventTypeOther
	}
	if e.Status == "" {
		e.Status = EventStatusDraft
	}
	if e.Lots == nil {
		e.Lots = []Lot{}
	}
	for i := range e.Lots {
		e.Lots[i].Name = strings.TrimSpace(e.Lots[i].Name)
		e.Lots[i].StartDate = strings.TrimSpace(e.Lots[i].StartDate)
		e.Lots[i].EndDate = strings.TrimSpace(e.Lots[i].EndDate)
	}
}

// Validate checks required fields, enums, dates and lot prices.
func (e *Event) Validate() error {
	if e.Title == "" {
		return Invalid("title", "is required")
	}
	if !e.Type.Valid() {
		return Invalid("type", "unknown event type %q", e.Type)
	}
	if !e.Status.Valid() {
		return Invalid("status", "unknown event status %q", e.Status)
	}
	if err := validOptionalDate("startDate", e.StartDate); err != nil {
		return err
	}
	if err := validOptionalDate("endDate", e.EndDate); err != nil {
		return err
	}
	if e.StartDate != "" && e.EndDate != "" && e.EndDate < e.StartDate {
		return Invalid("endDate", "must not be before startDate")
	}
	for i, lot := range e.Lots {
		if lot.PriceBRL < 0 {
			return Invalid("registrationLots", "lot %d: price must be >= 0", i)
		}
		if err := validOptionalDate("registrationLots", lot.StartDate); err != nil {
			return err
		}
		if err := validOptionalDate("registrationLots", lot.EndDate); err != nil {
			return err
		}
		if lot.StartDate != "" && lot.EndDate != "" && lot.EndDate < lot.StartDate {
			return Invalid("registrationLots", "lot %d: end date before start date", i)
		}
	}
	return nil
}

func validOptionalDate(field, s string) error {
	if s == "" {
		return nil
	}
	if _, err := time.Parse(DateLayout, s); err != nil {
		return Invalid(field, "malformed date %q", s)
	}
	return nil
}

// PricingState is the pricing view of an event on a given day. Configured is false when the
// event defines no lots at all; Next is only set when no lot is current.
type PricingState struct {
	Configured bool `json:"configured"`
	Current    *Lot `json:"current"`
	Next       *Lot `json:"next"`
}

// EventRepository defines storage operations for events.
type EventRepository interface {
	Create(ctx context.Context, event *Event) error
	GetByID(ctx context.Context, id string) (*Event, error)
	Update(ctx context.Context, event *Event) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*Event, error)
}

// EventService defines administrative event operations.
type EventService interface {
	CreateEvent(ctx context.Context, event *Event) error
	GetEvent(ctx context.Context, id string) (*Event, error)
	UpdateEvent(ctx context.Context, event *Event) error
	DeleteEvent(ctx context.Context, id string) error
	ListEvents(ctx context.Context) ([]*Event, error)
	// GetPricing resolves the event's lots against today.
	GetPricing(ctx context.Context, id string, today time.Time) (*PricingState, error)
}
