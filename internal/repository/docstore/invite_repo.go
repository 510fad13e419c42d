package docstore

import (
	"context"
	"fmt"
	"maps"

	"youthexchange/internal/domain"
)

type inviteRepository struct {
	base
}

func NewInviteRepository(store domain.EntityStore) domain.InviteRepository {
	return &inviteRepository{base: newBase(store)}
}

func inviteRef(token string) domain.Ref {
	return domain.NewRef(domain.CollectionInvites, token)
}

func decodeInvite(doc *domain.Document) (*domain.Invite, error) {
	inv := &domain.Invite{}
	if err := doc.Decode(inv); err != nil {
		return nil, err
	}
	inv.Token = doc.Ref.ID
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = doc.CreatedAt
	}
	if inv.UpdatedAt.IsZero() {
		inv.UpdatedAt = doc.UpdatedAt
	}
	return inv, nil
}

func decodeInvites(docs []*domain.Document) ([]*domain.Invite, error) {
	out := make([]*domain.Invite, 0, len(docs))
	for _, doc := range docs {
		inv, err := decodeInvite(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, nil
}

func (r *inviteRepository) get(ctx context.Context, db domain.DocumentAccessor, token string) (*domain.Invite, error) {
	doc, err := db.Get(ctx, inviteRef(token))
	if err != nil {
		return nil, err
	}
	return decodeInvite(doc)
}

// Create stores a new invite under its token. A taken token yields domain.ErrAlreadyExists.
func (r *inviteRepository) Create(ctx context.Context, inv *domain.Invite) error {
	if inv.Token == "" {
		return domain.Invalid("token", "is required")
	}
	data, err := encode(inv)
	if err != nil {
		return fmt.Errorf("encode invite: %w", err)
	}
	delete(data, "token")
	return r.atomic(ctx, func(tx domain.DocumentAccessor) error {
		if err := tx.Create(ctx, inviteRef(inv.Token), stamp(data, true)); err != nil {
			return err
		}
		created, err := r.get(ctx, tx, inv.Token)
		if err != nil {
			return err
		}
		*inv = *created
		return nil
	})
}

func (r *inviteRepository) GetByToken(ctx context.Context, token string) (*domain.Invite, error) {
	return r.get(ctx, r.db, token)
}

func (r *inviteRepository) Update(ctx context.Context, token string, fields map[string]any) (*domain.Invite, error) {
	ref := inviteRef(token)
	var out *domain.Invite
	err := r.atomic(ctx, func(tx domain.DocumentAccessor) error {
		if _, err := tx.Get(ctx, ref); err != nil {
			return err
		}
		data := maps.Clone(fields)
		if data == nil {
			data = map[string]any{}
		}
		delete(data, "token")
		if err := tx.Merge(ctx, ref, stamp(data, false)); err != nil {
			return err
		}
		var err error
		out, err = r.get(ctx, tx, token)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func inviteQuery() domain.Query {
	return domain.Query{Collection: domain.CollectionInvites, OrderBy: "createdAt", Desc: true}
}

func (r *inviteRepository) List(ctx context.Context) ([]*domain.Invite, error) {
	docs, err := r.store.Query(ctx, inviteQuery())
	if err != nil {
		return nil, err
	}
	return decodeInvites(docs)
}

func (r *inviteRepository) Subscribe(fn func([]*domain.Invite)) (domain.Subscription, error) {
	return r.store.Subscribe(inviteQuery(), func(docs []*domain.Document) {
		invites, err := decodeInvites(docs)
		if err != nil {
			return
		}
		fn(invites)
	})
}
