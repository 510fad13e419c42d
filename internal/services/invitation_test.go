package services

import (
	"context"
	"encoding/base64"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"youthexchange/internal/domain"
)

func TestInvitationService_Issue(t *testing.T) {
	env := newTestEnv(t, nil)
	ev := env.createEvent(t, "Camp 2026")

	inv := env.issue(t, domain.EventRef(ev.ID))
	assert.Equal(t, domain.InvitePending, inv.Status)
	assert.Empty(t, inv.OwnerPrincipalID)
	assert.Equal(t, inv.Token, inv.RegDocID)

	raw, err := base64.RawURLEncoding.DecodeString(inv.Token)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(raw), MinInviteTokenBytes)

	require.Len(t, env.email.sent, 1)
	mail := env.email.sent[0]
	assert.Equal(t, "maria@example.com", mail.Email)
	assert.Equal(t, "Camp 2026", mail.EventTitle)
	assert.Equal(t, "https://app.example.com/guest/register?token="+inv.Token, mail.Link)

	other := env.issue(t, domain.Ref{})
	assert.NotEqual(t, inv.Token, other.Token)
	assert.Equal(t, 2.0, testutil.ToFloat64(env.metrics.InvitesIssued))
}

func TestInvitationService_IssueRejects(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	_, err := env.invitations.Issue(ctx, domain.IssueInviteInput{GuardianEmail: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.invitations.Issue(ctx, domain.IssueInviteInput{EventRef: domain.RegistrantRef("r1")})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.invitations.Issue(ctx, domain.IssueInviteInput{EventRef: domain.EventRef("missing")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInvitationService_IssueSurvivesMailFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.email.err = errBoom

	inv := env.issue(t, domain.Ref{})
	assert.NotEmpty(t, inv.Token)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.InviteEmailFailures))
}

func TestInvitationService_ClaimScenario(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	inv := env.issue(t, domain.Ref{})

	claimed, err := env.invitations.Claim(ctx, inv.Token, "userA")
	require.NoError(t, err)
	assert.Equal(t, domain.InviteRegistered, claimed.Status)
	assert.Equal(t, "userA", claimed.OwnerPrincipalID)

	again, err := env.invitations.Claim(ctx, inv.Token, "userA")
	require.NoError(t, err)
	assert.Equal(t, claimed.Status, again.Status)
	assert.Equal(t, claimed.OwnerPrincipalID, again.OwnerPrincipalID)
	assert.Equal(t, claimed.UpdatedAt, again.UpdatedAt, "idempotent claim must not write")

	_, err = env.invitations.Claim(ctx, inv.Token, "userB")
	require.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	stored, err := env.invitations.GetInvite(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, "userA", stored.OwnerPrincipalID)
}

func TestInvitationService_OwnerReclaimAfterReset(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	inv := env.issue(t, domain.Ref{})

	_, err := env.invitations.Claim(ctx, inv.Token, "userA")
	require.NoError(t, err)
	_, err = env.invitations.SetStatus(ctx, inv.Token, domain.InvitePending)
	require.NoError(t, err)

	reclaimed, err := env.invitations.Claim(ctx, inv.Token, "userA")
	require.NoError(t, err)
	assert.Equal(t, domain.InviteRegistered, reclaimed.Status)
	assert.Equal(t, "userA", reclaimed.OwnerPrincipalID)

	_, err = env.invitations.Claim(ctx, inv.Token, "userB")
	require.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	res, err := env.invitations.Submit(ctx, inv.Token, "userA", domain.RegistrantPatch{
		Basic: map[string]any{"firstName": "Ana"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.InviteSubmitted, res.Invite.Status)
}

func TestInvitationService_ClaimErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	inv := env.issue(t, domain.Ref{})

	_, err := env.invitations.Claim(ctx, "no-such-token", "userA")
	assert.ErrorIs(t, err, domain.ErrInvalidToken)

	_, err = env.invitations.Claim(ctx, inv.Token, "")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = env.invitations.SetStatus(ctx, inv.Token, domain.InviteRevoked)
	require.NoError(t, err)
	_, err = env.invitations.Claim(ctx, inv.Token, "anyone")
	assert.ErrorIs(t, err, domain.ErrRevoked)

	_, err = env.invitations.Lookup(ctx, inv.Token)
	assert.ErrorIs(t, err, domain.ErrRevoked)
}

func TestInvitationService_ConcurrentClaimsHaveOneWinner(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	inv := env.issue(t, domain.Ref{})

	const claimants = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		losers  int
	)
	for i := range claimants {
		wg.Add(1)
		go func(principal string) {
			defer wg.Done()
			_, err := env.invitations.Claim(ctx, inv.Token, principal)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, principal)
				return
			}
			assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)
			losers++
		}(string(rune('a' + i)))
	}
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, claimants-1, losers)
	stored, err := env.invitations.GetInvite(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, winners[0], stored.OwnerPrincipalID)
}

func TestInvitationService_SubmitScenario(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	ev := env.createEvent(t, "Camp")
	inv := env.issue(t, domain.EventRef(ev.ID))
	_, err := env.invitations.Claim(ctx, inv.Token, "userA")
	require.NoError(t, err)

	res, err := env.invitations.Submit(ctx, inv.Token, "userA", domain.RegistrantPatch{
		Basic: map[string]any{"firstName": "Ana"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.InviteSubmitted, res.Invite.Status)
	assert.Equal(t, inv.Token, res.Registration.ID)
	assert.Equal(t, domain.RegistrationPending, res.Registration.Status)
	assert.Equal(t, domain.RoleParticipant, res.Registration.Role)
	assert.Equal(t, domain.EventRef(ev.ID), res.Registration.EventRef)
	assert.Equal(t, domain.RegistrantRef(inv.Token), res.Registration.RegistrantRef)
	assert.Equal(t, "userA", res.Registration.OwnerPrincipalID)
	assert.Equal(t, inv.Token, res.Registration.InviteToken)

	reg, err := env.registrations.GetRegistration(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RegistrationPending, reg.Status)
	registrant, err := env.registrants.GetRegistrant(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, "Ana", registrant.Basic.FirstName)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.RegistrationsCreated.WithLabelValues("invite")))
}

func TestInvitationService_ResubmitMerges(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	inv := env.issue(t, domain.Ref{})
	_, err := env.invitations.Claim(ctx, inv.Token, "userA")
	require.NoError(t, err)

	first, err := env.invitations.Submit(ctx, inv.Token, "userA", domain.RegistrantPatch{
		Basic:         map[string]any{"firstName": "Ana", "phone": "+55 81 9999"},
		Questionnaire: map[string]any{"diet": "vegetarian"},
	})
	require.NoError(t, err)

	_, err = env.registrations.UpdateStatus(ctx, inv.Token, domain.RegistrationApproved)
	require.NoError(t, err)

	second, err := env.invitations.Submit(ctx, inv.Token, "userA", domain.RegistrantPatch{
		Basic: map[string]any{"lastName": "Lima"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana", second.Registrant.Basic.FirstName)
	assert.Equal(t, "Lima", second.Registrant.Basic.LastName)
	assert.Equal(t, "+55 81 9999", second.Registrant.Basic.Phone)
	assert.Equal(t, "vegetarian", second.Registrant.Questionnaire["diet"])
	assert.Equal(t, first.Registrant.CreatedAt, second.Registrant.CreatedAt)
	assert.Equal(t, first.Registration.CreatedAt, second.Registration.CreatedAt)
	assert.Equal(t, domain.RegistrationPending, second.Registration.Status)
	assert.Equal(t, domain.InviteSubmitted, second.Invite.Status)
	assert.True(t, second.Registration.EventRef.IsZero())
}

func TestInvitationService_SubmitRejects(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	pending := env.issue(t, domain.Ref{})
	claimed := env.issue(t, domain.Ref{})
	_, err := env.invitations.Claim(ctx, claimed.Token, "userA")
	require.NoError(t, err)
	revoked := env.issue(t, domain.Ref{})
	_, err = env.invitations.Claim(ctx, revoked.Token, "userA")
	require.NoError(t, err)
	_, err = env.invitations.SetStatus(ctx, revoked.Token, domain.InviteRevoked)
	require.NoError(t, err)

	form := domain.RegistrantPatch{Basic: map[string]any{"firstName": "Ana"}}
	tests := []struct {
		name      string
		token     string
		principal string
		form      domain.RegistrantPatch
		wantErr   error
	}{
		{"unknown token", "nope", "userA", form, domain.ErrInvalidToken},
		{"not yet claimed", pending.Token, "userA", form, domain.ErrNotOwner},
		{"different principal", claimed.Token, "userB", form, domain.ErrNotOwner},
		{"revoked", revoked.Token, "userA", form, domain.ErrRevoked},
		{"malformed payload", claimed.Token, "userA", domain.RegistrantPatch{Basic: map[string]any{"birthDate": "soon"}}, domain.ErrValidation},
		{"anonymous", claimed.Token, "", form, domain.ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.invitations.Submit(ctx, tt.token, tt.principal, tt.form)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err = env.registrations.GetRegistration(ctx, claimed.Token)
	assert.ErrorIs(t, err, domain.ErrNotFound, "failed submits must not write")
	_, err = env.registrants.GetRegistrant(ctx, claimed.Token)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInvitationService_SetStatusOverrides(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	inv := env.issue(t, domain.Ref{})

	for _, st := range []domain.InviteStatus{domain.InviteSubmitted, domain.InvitePending, domain.InviteRevoked, domain.InviteRegistered} {
		got, err := env.invitations.SetStatus(ctx, inv.Token, st)
		require.NoError(t, err)
		assert.Equal(t, st, got.Status)
	}
	_, err := env.invitations.SetStatus(ctx, inv.Token, "archived")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = env.invitations.SetStatus(ctx, "nope", domain.InviteRevoked)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestInvitationService_GuardianAccountFlows(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	ev := env.createEvent(t, "Camp")
	inv := env.issue(t, domain.EventRef(ev.ID))

	view, err := env.invitations.Lookup(ctx, inv.Token)
	require.NoError(t, err)
	assert.Equal(t, "Camp", view.EventTitle)
	assert.Equal(t, "maria@example.com", view.GuardianEmail)

	accepted, err := env.invitations.RegisterGuardian(ctx, inv.Token, domain.GuardianCredentials{Password: "s3cret-pass"})
	require.NoError(t, err)
	require.NotNil(t, accepted.Session)
	assert.Equal(t, "maria@example.com", accepted.Session.Principal.Email)
	assert.Equal(t, accepted.Session.Principal.ID, accepted.Invite.OwnerPrincipalID)
	assert.Equal(t, domain.InviteRegistered, accepted.Invite.Status)

	_, err = env.invitations.RegisterGuardian(ctx, inv.Token, domain.GuardianCredentials{Email: "other@example.com", Password: "s3cret-pass"})
	assert.ErrorIs(t, err, domain.ErrAlreadyClaimed)

	again, err := env.invitations.SignInGuardian(ctx, inv.Token, domain.GuardianCredentials{Email: "maria@example.com", Password: "s3cret-pass"})
	require.NoError(t, err)
	assert.Equal(t, accepted.Invite.OwnerPrincipalID, again.Invite.OwnerPrincipalID)

	_, err = env.invitations.SignInGuardian(ctx, inv.Token, domain.GuardianCredentials{Email: "maria@example.com", Password: "wrong-pass"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)

	second := env.issue(t, domain.Ref{})
	_, err = env.invitations.RegisterGuardian(ctx, second.Token, domain.GuardianCredentials{Password: "another-pass"})
	assert.ErrorIs(t, err, domain.ErrDuplicateEmail)
	assert.ErrorIs(t, err, domain.ErrSignUpRejected)

	blank, err := env.invitations.Issue(ctx, domain.IssueInviteInput{GuardianName: "Joao"})
	require.NoError(t, err)
	_, err = env.invitations.RegisterGuardian(ctx, blank.Token, domain.GuardianCredentials{Password: "another-pass"})
	assert.ErrorIs(t, err, domain.ErrSignUpRejected)

	principalID := accepted.Session.Principal.ID
	_, err = env.invitations.Submit(ctx, inv.Token, principalID, domain.RegistrantPatch{Basic: map[string]any{"firstName": "Leo"}})
	require.NoError(t, err)
	owned, err := env.registrations.ListOwnedRegistrations(ctx, principalID)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.Equal(t, inv.Token, owned[0].ID)
}
