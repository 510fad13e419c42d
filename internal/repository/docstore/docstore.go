// Package docstore maps domain entities onto documents in a domain.EntityStore.
package docstore

import (
	"context"
	"errors"

	"youthexchange/internal/domain"
)

// base carries the accessor a repository writes through. Inside a transaction db is the
// transaction handle; queries and subscriptions always go to the parent store.
type base struct {
	db    domain.DocumentAccessor
	store domain.EntityStore
	inTx  bool
}

func newBase(store domain.EntityStore) base {
	return base{db: store, store: store}
}

// atomic runs fn in the enclosing transaction, or in a new one when there is none.
func (b base) atomic(ctx context.Context, fn func(tx domain.DocumentAccessor) error) error {
	if b.inTx {
		return fn(b.db)
	}
	return b.store.RunTransaction(ctx, fn)
}

// encode converts an entity to document data. The id lives in the reference, not the data.
func encode(v any) (map[string]any, error) {
	data, err := domain.ToData(v)
	if err != nil {
		return nil, err
	}
	delete(data, "id")
	return data, nil
}

// stamp sets updatedAt, and createdAt when creating, to the store clock.
func stamp(data map[string]any, creating bool) map[string]any {
	if creating {
		data["createdAt"] = domain.ServerTimestamp
	} else {
		delete(data, "createdAt")
	}
	data["updatedAt"] = domain.ServerTimestamp
	return data
}

func exists(ctx context.Context, db domain.DocumentAccessor, ref domain.Ref) (bool, error) {
	_, err := db.Get(ctx, ref)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// NewRepositories returns repositories writing directly to store.
func NewRepositories(store domain.EntityStore) domain.Repositories {
	return buildRepositories(newBase(store))
}

func buildRepositories(b base) domain.Repositories {
	return domain.Repositories{
		Events:        &eventRepository{base: b},
		Registrants:   &registrantRepository{base: b},
		Registrations: &registrationRepository{base: b},
		Invites:       &inviteRepository{base: b},
		Principals:    &principalRepository{base: b},
	}
}

type transactor struct {
	store domain.EntityStore
}

// NewTransactor returns a domain.Transactor backed by store transactions.
func NewTransactor(store domain.EntityStore) domain.Transactor {
	return &transactor{store: store}
}

func (t *transactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context, repos domain.Repositories) error) error {
	return t.store.RunTransaction(ctx, func(tx domain.DocumentAccessor) error {
		return fn(ctx, buildRepositories(base{db: tx, store: t.store, inTx: true}))
	})
}
