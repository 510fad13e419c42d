package docstore

import (
	"context"
	"fmt"
	"maps"

	"github.com/google/uuid"

	"youthexchange/internal/domain"
)

type registrationRepository struct {
	base
}

func NewRegistrationRepository(store domain.EntityStore) domain.RegistrationRepository {
	return &registrationRepository{base: newBase(store)}
}

func registrationRef(id string) domain.Ref {
	return domain.NewRef(domain.CollectionRegistrations, id)
}

func decodeRegistration(doc *domain.Document) (*domain.Registration, error) {
	reg := &domain.Registration{}
	if err := doc.Decode(reg); err != nil {
		return nil, err
	}
	reg.ID = doc.Ref.ID
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = doc.CreatedAt
	}
	if reg.UpdatedAt.IsZero() {
		reg.UpdatedAt = doc.UpdatedAt
	}
	return reg, nil
}

func decodeRegistrations(docs []*domain.Document) ([]*domain.Registration, error) {
	out := make([]*domain.Registration, 0, len(docs))
	for _, doc := range docs {
		reg, err := decodeRegistration(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, nil
}

func (r *registrationRepository) get(ctx context.Context, db domain.DocumentAccessor, id string) (*domain.Registration, error) {
	doc, err := db.Get(ctx, registrationRef(id))
	if err != nil {
		return nil, err
	}
	return decodeRegistration(doc)
}

func (r *registrationRepository) Create(ctx context.Context, reg *domain.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	data, err := encode(reg)
	if err != nil {
		return fmt.Errorf("encode registration: %w", err)
	}
	return r.atomic(ctx, func(tx domain.DocumentAccessor) error {
		if err := tx.Create(ctx, registrationRef(reg.ID), stamp(data, true)); err != nil {
			return err
		}
		created, err := r.get(ctx, tx, reg.ID)
		if err != nil {
			return err
		}
		*reg = *created
		return nil
	})
}

func (r *registrationRepository) GetByID(ctx context.Context, id string) (*domain.Registration, error) {
	return r.get(ctx, r.db, id)
}

// Upsert merges fields into the registration, creating it when absent.
func (r *registrationRepository) Upsert(ctx context.Context, id string, fields map[string]any) (*domain.Registration, error) {
	ref := registrationRef(id)
	var out *domain.Registration
	err := r.atomic(ctx, func(tx domain.DocumentAccessor) error {
		found, err := exists(ctx, tx, ref)
		if err != nil {
			return err
		}
		data := maps.Clone(fields)
		if data == nil {
			data = map[string]any{}
		}
		delete(data, "id")
		if err := tx.Merge(ctx, ref, stamp(data, !found)); err != nil {
			return err
		}
		out, err = r.get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *registrationRepository) UpdateStatus(ctx context.Context, id string, status domain.RegistrationStatus) (*domain.Registration, error) {
	ref := registrationRef(id)
	var out *domain.Registration
	err := r.atomic(ctx, func(tx domain.DocumentAccessor) error {
		if _, err := tx.Get(ctx, ref); err != nil {
			return err
		}
		if err := tx.Merge(ctx, ref, stamp(map[string]any{"status": status}, false)); err != nil {
			return err
		}
		var err error
		out, err = r.get(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *registrationRepository) Delete(ctx context.Context, id string) error {
	ref := registrationRef(id)
	return r.atomic(ctx, func(tx domain.DocumentAccessor) error {
		if _, err := tx.Get(ctx, ref); err != nil {
			return err
		}
		return tx.Delete(ctx, ref)
	})
}

func registrationQuery(filter domain.RegistrationFilter) domain.Query {
	q := domain.Query{Collection: domain.CollectionRegistrations, OrderBy: "createdAt", Desc: true}
	if !filter.EventRef.IsZero() {
		q.Where = append(q.Where, domain.Filter{Field: "eventRef", Value: filter.EventRef})
	}
	if filter.Status != "" {
		q.Where = append(q.Where, domain.Filter{Field: "status", Value: filter.Status})
	}
	return q
}

func (r *registrationRepository) List(ctx context.Context, filter domain.RegistrationFilter) ([]*domain.Registration, error) {
	docs, err := r.store.Query(ctx, registrationQuery(filter))
	if err != nil {
		return nil, err
	}
	return decodeRegistrations(docs)
}

func (r *registrationRepository) ListByOwner(ctx context.Context, principalID string) ([]*domain.Registration, error) {
	docs, err := r.store.Query(ctx, domain.Query{
		Collection: domain.CollectionRegistrations,
		Where:      []domain.Filter{{Field: "ownerPrincipalId", Value: principalID}},
		OrderBy:    "updatedAt",
		Desc:       true,
	})
	if err != nil {
		return nil, err
	}
	return decodeRegistrations(docs)
}

// Subscribe delivers the filtered registration list on every change. Snapshots that fail to
// decode are dropped.
func (r *registrationRepository) Subscribe(filter domain.RegistrationFilter, fn func([]*domain.Registration)) (domain.Subscription, error) {
	return r.store.Subscribe(registrationQuery(filter), func(docs []*domain.Document) {
		regs, err := decodeRegistrations(docs)
		if err != nil {
			return
		}
		fn(regs)
	})
}
