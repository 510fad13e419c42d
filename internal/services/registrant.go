package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"youthexchange/internal/domain"
)

type registrantService struct {
	registrantRepo domain.RegistrantRepository
	contextTimeout time.Duration
}

func NewRegistrantService(registrantRepo domain.RegistrantRepository, timeout time.Duration) domain.RegistrantService {
	return &registrantService{registrantRepo: registrantRepo, contextTimeout: timeout}
}

// normalizePatch validates patch and returns a copy with trimmed strings and a lowercased email.
func normalizePatch(patch domain.RegistrantPatch) (domain.RegistrantPatch, error) {
	if err := patch.Validate(); err != nil {
		return domain.RegistrantPatch{}, err
	}
	out := domain.RegistrantPatch{Questionnaire: patch.Questionnaire}
	if patch.Basic != nil {
		out.Basic = make(map[string]any, len(patch.Basic))
		for k, v := range patch.Basic {
			switch tv := v.(type) {
			case string:
				tv = strings.TrimSpace(tv)
				if k == "email" {
					tv = strings.ToLower(tv)
				}
				out.Basic[k] = tv
			case map[string]any:
				nested := make(map[string]any, len(tv))
				for nk, nv := range tv {
					s, _ := nv.(string)
					nested[nk] = strings.TrimSpace(s)
				}
				out.Basic[k] = nested
			}
		}
	}
	return out, nil
}

func (s *registrantService) CreateRegistrant(ctx context.Context, patch domain.RegistrantPatch) (*domain.Registrant, error) {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	patch, err := normalizePatch(patch)
	if err != nil {
		return nil, err
	}
	r := &domain.Registrant{Questionnaire: patch.Questionnaire}
	raw, err := json.Marshal(patch.Basic)
	if err != nil {
		return nil, fmt.Errorf("encode basic: %w", err)
	}
	if err := json.Unmarshal(raw, &r.Basic); err != nil {
		return nil, fmt.Errorf("decode basic: %w", err)
	}
	if err := s.registrantRepo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create registrant: %w", err)
	}
	return r, nil
}

func (s *registrantService) GetRegistrant(ctx context.Context, id string) (*domain.Registrant, error) {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if id == "" {
		return nil, domain.Invalid("id", "is required")
	}
	return s.registrantRepo.GetByID(ctx, id)
}

// UpdateRegistrant merges patch into an existing registrant.
func (s *registrantService) UpdateRegistrant(ctx context.Context, id string, patch domain.RegistrantPatch) (*domain.Registrant, error) {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	patch, err := normalizePatch(patch)
	if err != nil {
		return nil, err
	}
	if _, err := s.registrantRepo.GetByID(ctx, id); err != nil {
		return nil, err
	}
	r, err := s.registrantRepo.Upsert(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update registrant %s: %w", id, err)
	}
	return r, nil
}

// ListRegistrants returns every registrant ordered by last name, then first name.
func (s *registrantService) ListRegistrants(ctx context.Context) ([]*domain.Registrant, error) {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	list, err := s.registrantRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i].Basic, list[j].Basic
		if c := strings.Compare(strings.ToLower(a.LastName), strings.ToLower(b.LastName)); c != 0 {
			return c < 0
		}
		return strings.ToLower(a.FirstName) < strings.ToLower(b.FirstName)
	})
	return list, nil
}
