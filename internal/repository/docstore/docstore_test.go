package docstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"youthexchange/internal/domain"
	"youthexchange/internal/repository/memory"
)

func newStore(t *testing.T) (*memory.Store, *time.Time) {
	t.Helper()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	return memory.NewStore(nil, memory.WithClock(func() time.Time { return now })), &now
}

func TestEventRepository_CRUD(t *testing.T) {
	ctx := context.Background()
	store, now := newStore(t)
	repo := NewEventRepository(store)

	ev := &domain.Event{
		Title:  "Summer Camp",
		Type:   domain.EventTypeCamp,
		Status: domain.EventStatusOpen,
		Lots:   []domain.Lot{{Name: "Early", StartDate: "2026-01-01", EndDate: "2026-01-31", PriceBRL: 500}},
	}
	require.NoError(t, repo.Create(ctx, ev))
	require.NotEmpty(t, ev.ID)
	assert.Equal(t, *now, ev.CreatedAt)

	created := ev.CreatedAt
	*now = now.Add(time.Hour)
	ev.Title = "Winter Camp"
	ev.Lots = nil
	require.NoError(t, repo.Update(ctx, ev))
	assert.Equal(t, created, ev.CreatedAt)
	assert.Equal(t, *now, ev.UpdatedAt)

	got, err := repo.GetByID(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "Winter Camp", got.Title)
	assert.Empty(t, got.Lots)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, repo.Delete(ctx, ev.ID))
	_, err = repo.GetByID(ctx, ev.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, ev.ID), domain.ErrNotFound)
	assert.ErrorIs(t, repo.Update(ctx, &domain.Event{ID: "missing", Title: "x"}), domain.ErrNotFound)
}

func TestRegistrantRepository_UpsertMerges(t *testing.T) {
	ctx := context.Background()
	store, now := newStore(t)
	repo := NewRegistrantRepository(store)

	first, err := repo.Upsert(ctx, "tok-1", domain.RegistrantPatch{
		Basic: map[string]any{"firstName": "Ana", "email": "ana@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", first.ID)
	assert.Equal(t, *now, first.CreatedAt)
	assert.NotNil(t, first.Questionnaire)

	*now = now.Add(time.Minute)
	second, err := repo.Upsert(ctx, "tok-1", domain.RegistrantPatch{
		Basic:         map[string]any{"lastName": "Silva"},
		Questionnaire: map[string]any{"diet": "vegan"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana", second.Basic.FirstName)
	assert.Equal(t, "Silva", second.Basic.LastName)
	assert.Equal(t, "ana@example.com", second.Basic.Email)
	assert.Equal(t, "vegan", second.Questionnaire["diet"])
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.Equal(t, *now, second.UpdatedAt)
}

func TestRegistrationRepository_ListAndStatus(t *testing.T) {
	ctx := context.Background()
	store, now := newStore(t)
	repo := NewRegistrationRepository(store)

	seed := []*domain.Registration{
		{EventRef: domain.EventRef("e1"), RegistrantRef: domain.RegistrantRef("r1"), Role: domain.RoleParticipant, Status: domain.RegistrationApplied},
		{EventRef: domain.EventRef("e1"), RegistrantRef: domain.RegistrantRef("r2"), Role: domain.RoleLeader, Status: domain.RegistrationApproved},
		{EventRef: domain.EventRef("e2"), RegistrantRef: domain.RegistrantRef("r3"), Role: domain.RoleStaff, Status: domain.RegistrationApplied, OwnerPrincipalID: "p1"},
	}
	for _, reg := range seed {
		*now = now.Add(time.Minute)
		require.NoError(t, repo.Create(ctx, reg))
	}

	byEvent, err := repo.List(ctx, domain.RegistrationFilter{EventRef: domain.EventRef("e1")})
	require.NoError(t, err)
	require.Len(t, byEvent, 2)
	assert.Equal(t, seed[1].ID, byEvent[0].ID, "newest first")

	applied, err := repo.List(ctx, domain.RegistrationFilter{Status: domain.RegistrationApplied})
	require.NoError(t, err)
	assert.Len(t, applied, 2)

	owned, err := repo.ListByOwner(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, domain.RegistrantRef("r3"), owned[0].RegistrantRef)

	*now = now.Add(time.Minute)
	updated, err := repo.UpdateStatus(ctx, seed[0].ID, domain.RegistrationWaitlist)
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationWaitlist, updated.Status)
	assert.Equal(t, *now, updated.UpdatedAt)
	assert.Equal(t, seed[0].CreatedAt, updated.CreatedAt)

	_, err = repo.UpdateStatus(ctx, "missing", domain.RegistrationApproved)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, repo.Delete(ctx, seed[0].ID))
	assert.ErrorIs(t, repo.Delete(ctx, seed[0].ID), domain.ErrNotFound)
}

func TestRegistrationRepository_Upsert(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	repo := NewRegistrationRepository(store)

	reg, err := repo.Upsert(ctx, "tok", map[string]any{
		"registrantRef": domain.RegistrantRef("tok"),
		"eventRef":      domain.EventRef("e1"),
		"role":          domain.RoleParticipant,
		"status":        domain.RegistrationPending,
	})
	require.NoError(t, err)
	assert.Equal(t, "tok", reg.ID)
	assert.Equal(t, domain.EventRef("e1"), reg.EventRef)

	reg, err = repo.Upsert(ctx, "tok", map[string]any{"status": domain.RegistrationPending, "inviteToken": "tok"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleParticipant, reg.Role)
	assert.Equal(t, "tok", reg.InviteToken)
}

func TestInviteRepository(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	repo := NewInviteRepository(store)

	inv := &domain.Invite{Token: "tok", GuardianEmail: "g@example.com", Status: domain.InvitePending, RegDocID: "tok"}
	require.NoError(t, repo.Create(ctx, inv))
	assert.ErrorIs(t, repo.Create(ctx, &domain.Invite{Token: "tok"}), domain.ErrAlreadyExists)
	assert.ErrorIs(t, repo.Create(ctx, &domain.Invite{}), domain.ErrValidation)

	updated, err := repo.Update(ctx, "tok", map[string]any{"status": domain.InviteRegistered, "ownerPrincipalId": "p1"})
	require.NoError(t, err)
	assert.Equal(t, domain.InviteRegistered, updated.Status)
	assert.Equal(t, "p1", updated.OwnerPrincipalID)
	assert.Equal(t, "g@example.com", updated.GuardianEmail)

	_, err = repo.Update(ctx, "nope", map[string]any{"status": domain.InviteRevoked})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "tok", list[0].Token)
}

func TestPrincipalRepository(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	repo := NewPrincipalRepository(store)

	p := &domain.Principal{Email: " Guardian@Example.com ", DisplayName: "G", PasswordHash: "h", Salt: "s"}
	require.NoError(t, repo.Create(ctx, p))
	assert.Equal(t, "guardian@example.com", p.Email)

	err := repo.Create(ctx, &domain.Principal{Email: "guardian@example.com"})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)

	got, err := repo.GetByEmail(ctx, "GUARDIAN@example.com")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, "h", got.PasswordHash)
	assert.Equal(t, "s", got.Salt)

	require.NoError(t, repo.AddRole(ctx, p.ID, domain.RoleCodeGuardian))
	require.NoError(t, repo.AddRole(ctx, p.ID, domain.RoleCodeGuardian))
	got, err = repo.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{domain.RoleCodeGuardian}, got.Roles)

	_, err = repo.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTransactor_RollsBackAllRepositories(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	tr := NewTransactor(store)
	boom := errors.New("boom")

	err := tr.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if err := repos.Invites.Create(ctx, &domain.Invite{Token: "tok", Status: domain.InvitePending}); err != nil {
			return err
		}
		if _, err := repos.Registrants.Upsert(ctx, "tok", domain.RegistrantPatch{Basic: map[string]any{"firstName": "A"}}); err != nil {
			return err
		}
		inv, err := repos.Invites.GetByToken(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, domain.InvitePending, inv.Status)
		return boom
	})
	require.ErrorIs(t, err, boom)

	repos := NewRepositories(store)
	_, err = repos.Invites.GetByToken(ctx, "tok")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repos.Registrants.GetByID(ctx, "tok")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
