package docstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"youthexchange/internal/domain"
)

type eventRepository struct {
	base
}

func NewEventRepository(store domain.EntityStore) domain.EventRepository {
	return &eventRepository{base: newBase(store)}
}

func decodeEvent(doc *domain.Document) (*domain.Event, error) {
	e := &domain.Event{}
	if err := doc.Decode(e); err != nil {
		return nil, err
	}
	e.ID = doc.Ref.ID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = doc.CreatedAt
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = doc.UpdatedAt
	}
	if e.Lots == nil {
		e.Lots = []domain.Lot{}
	}
	return e, nil
}

func (r *eventRepository) load(ctx context.Context, db domain.DocumentAccessor, id string, into *domain.Event) error {
	doc, err := db.Get(ctx, domain.EventRef(id))
	if err != nil {
		return err
	}
	e, err := decodeEvent(doc)
	if err != nil {
		return err
	}
	*into = *e
	return nil
}

func (r *eventRepository) Create(ctx context.Context, e *domain.Event) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	data, err := encode(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return r.atomic(ctx, func(tx domain.DocumentAccessor) error {
		if err := tx.Create(ctx, domain.EventRef(e.ID), stamp(data, true)); err != nil {
			return err
		}
		return r.load(ctx, tx, e.ID, e)
	})
}

func (r *eventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	doc, err := r.db.Get(ctx, domain.EventRef(id))
	if err != nil {
		return nil, err
	}
	return decodeEvent(doc)
}

func (r *eventRepository) Update(ctx context.Context, e *domain.Event) error {
	data, err := encode(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	ref := domain.EventRef(e.ID)
	return r.atomic(ctx, func(tx domain.DocumentAccessor) error {
		if _, err := tx.Get(ctx, ref); err != nil {
			return err
		}
		if err := tx.Merge(ctx, ref, stamp(data, false)); err != nil {
			return err
		}
		return r.load(ctx, tx, e.ID, e)
	})
}

func (r *eventRepository) Delete(ctx context.Context, id string) error {
	ref := domain.EventRef(id)
	return r.atomic(ctx, func(tx domain.DocumentAccessor) error {
		if _, err := tx.Get(ctx, ref); err != nil {
			return err
		}
		return tx.Delete(ctx, ref)
	})
}

func (r *eventRepository) List(ctx context.Context) ([]*domain.Event, error) {
	docs, err := r.store.Query(ctx, domain.Query{Collection: domain.CollectionEvents, OrderBy: "startDate"})
	if err != nil {
		return nil, err
	}
	events := make([]*domain.Event, 0, len(docs))
	for _, doc := range docs {
		e, err := decodeEvent(doc)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}
