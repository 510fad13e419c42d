package docstore

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"youthexchange/internal/domain"
)

type registrantRepository struct {
	base
}

func NewRegistrantRepository(store domain.EntityStore) domain.RegistrantRepository {
	return &registrantRepository{base: newBase(store)}
}

func decodeRegistrant(doc *domain.Document) (*domain.Registrant, error) {
	r := &domain.Registrant{}
	if err := doc.Decode(r); err != nil {
		return nil, err
	}
	r.ID = doc.Ref.ID
	if r.CreatedAt.IsZero() {
		r.CreatedAt = doc.CreatedAt
	}
	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = doc.UpdatedAt
	}
	if r.Questionnaire == nil {
		r.Questionnaire = map[string]any{}
	}
	return r, nil
}

func (r *registrantRepository) Create(ctx context.Context, reg *domain.Registrant) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.Questionnaire == nil {
		reg.Questionnaire = map[string]any{}
	}
	data, err := encode(reg)
	if err != nil {
		return fmt.Errorf("encode registrant: %w", err)
	}
	ref := domain.RegistrantRef(reg.ID)
	return r.atomic(ctx, func(tx domain.DocumentAccessor) error {
		if err := tx.Create(ctx, ref, stamp(data, true)); err != nil {
			return err
		}
		doc, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		created, err := decodeRegistrant(doc)
		if err != nil {
			return err
		}
		*reg = *created
		return nil
	})
}

func (r *registrantRepository) GetByID(ctx context.Context, id string) (*domain.Registrant, error) {
	doc, err := r.db.Get(ctx, domain.RegistrantRef(id))
	if err != nil {
		return nil, err
	}
	return decodeRegistrant(doc)
}

// Upsert deep-merges patch into the registrant, creating it when absent. Fields not named in
// the patch keep their stored values.
func (r *registrantRepository) Upsert(ctx context.Context, id string, patch domain.RegistrantPatch) (*domain.Registrant, error) {
	ref := domain.RegistrantRef(id)
	var out *domain.Registrant
	err := r.atomic(ctx, func(tx domain.DocumentAccessor) error {
		found, err := exists(ctx, tx, ref)
		if err != nil {
			return err
		}
		data := map[string]any{}
		if patch.Basic != nil {
			data["basic"] = patch.Basic
		}
		if patch.Questionnaire != nil {
			data["questionnaire"] = patch.Questionnaire
		} else if !found {
			data["questionnaire"] = map[string]any{}
		}
		if err := tx.Merge(ctx, ref, stamp(data, !found)); err != nil {
			return err
		}
		doc, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		out, err = decodeRegistrant(doc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *registrantRepository) List(ctx context.Context) ([]*domain.Registrant, error) {
	docs, err := r.store.Query(ctx, domain.Query{Collection: domain.CollectionRegistrants, OrderBy: "createdAt", Desc: true})
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Registrant, 0, len(docs))
	for _, doc := range docs {
		reg, err := decodeRegistrant(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, nil
}
