package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"youthexchange/internal/domain"
)

type principalRepository struct {
	base
}

func NewPrincipalRepository(store domain.EntityStore) domain.PrincipalRepository {
	return &principalRepository{base: newBase(store)}
}

// principalDoc is the stored form of a principal. Unlike domain.Principal it keeps the
// credential fields.
type principalDoc struct {
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	Roles        []string  `json:"roles"`
	PasswordHash string    `json:"passwordHash"`
	Salt         string    `json:"salt"`
	CreatedAt    time.Time `json:"createdAt"`
}

func principalRef(id string) domain.Ref {
	return domain.NewRef(domain.CollectionPrincipals, id)
}

func emailRef(email string) domain.Ref {
	return domain.NewRef(domain.CollectionPrincipalEmails, strings.ToLower(strings.TrimSpace(email)))
}

func decodePrincipal(doc *domain.Document) (*domain.Principal, error) {
	var pd principalDoc
	if err := doc.Decode(&pd); err != nil {
		return nil, err
	}
	p := &domain.Principal{
		ID:           doc.Ref.ID,
		Email:        pd.Email,
		DisplayName:  pd.DisplayName,
		Roles:        pd.Roles,
		PasswordHash: pd.PasswordHash,
		Salt:         pd.Salt,
		CreatedAt:    pd.CreatedAt,
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = doc.CreatedAt
	}
	if p.Roles == nil {
		p.Roles = []string{}
	}
	return p, nil
}

// Create stores the principal together with its email index entry. A taken email yields
// domain.ErrDuplicateEmail.
func (r *principalRepository) Create(ctx context.Context, p *domain.Principal) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.Roles == nil {
		p.Roles = []string{}
	}
	data, err := domain.ToData(principalDoc{
		Email:        p.Email,
		DisplayName:  p.DisplayName,
		Roles:        p.Roles,
		PasswordHash: p.PasswordHash,
		Salt:         p.Salt,
	})
	if err != nil {
		return fmt.Errorf("encode principal: %w", err)
	}
	return r.atomic(ctx, func(tx domain.DocumentAccessor) error {
		err := tx.Create(ctx, emailRef(p.Email), map[string]any{"principalId": p.ID})
		if errors.Is(err, domain.ErrAlreadyExists) {
			return domain.ErrDuplicateEmail
		}
		if err != nil {
			return err
		}
		if err := tx.Create(ctx, principalRef(p.ID), stamp(data, true)); err != nil {
			return err
		}
		doc, err := tx.Get(ctx, principalRef(p.ID))
		if err != nil {
			return err
		}
		created, err := decodePrincipal(doc)
		if err != nil {
			return err
		}
		*p = *created
		return nil
	})
}

func (r *principalRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	doc, err := r.db.Get(ctx, principalRef(id))
	if err != nil {
		return nil, err
	}
	return decodePrincipal(doc)
}

func (r *principalRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	idx, err := r.db.Get(ctx, emailRef(email))
	if err != nil {
		return nil, err
	}
	id, _ := idx.Data["principalId"].(string)
	if id == "" {
		return nil, domain.ErrNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *principalRepository) AddRole(ctx context.Context, id, role string) error {
	ref := principalRef(id)
	return r.atomic(ctx, func(tx domain.DocumentAccessor) error {
		doc, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		p, err := decodePrincipal(doc)
		if err != nil {
			return err
		}
		if p.HasRole(role) {
			return nil
		}
		return tx.Merge(ctx, ref, stamp(map[string]any{"roles": append(p.Roles, role)}, false))
	})
}
