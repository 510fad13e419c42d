package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"youthexchange/internal/domain"
	"youthexchange/internal/metrics"
)

const (
	// MinInviteTokenBytes is the entropy floor for invite tokens (128 bits).
	MinInviteTokenBytes     = 16
	DefaultInviteTokenBytes = 24

	tokenAttempts = 3
)

// InvitationConfig configures token generation and invite links.
type InvitationConfig struct {
	TokenBytes    int
	PublicBaseURL string
}

type invitationService struct {
	tx             domain.Transactor
	invites        domain.InviteRepository
	events         domain.EventRepository
	identity       domain.IdentityProvider
	emailService   domain.EmailService
	metrics        *metrics.Metrics
	logger         *slog.Logger
	tokenBytes     int
	publicBaseURL  string
	contextTimeout time.Duration
}

// NewInvitationService returns the invitation lifecycle. emailService may be nil, in which case
// no invite mail is sent.
func NewInvitationService(
	repos domain.Repositories,
	tx domain.Transactor,
	identity domain.IdentityProvider,
	emailService domain.EmailService,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg InvitationConfig,
	timeout time.Duration,
) domain.InvitationService {
	n := cfg.TokenBytes
	if n == 0 {
		n = DefaultInviteTokenBytes
	}
	if n < MinInviteTokenBytes {
		n = MinInviteTokenBytes
	}
	return &invitationService{
		tx:             tx,
		invites:        repos.Invites,
		events:         repos.Events,
		identity:       identity,
		emailService:   emailService,
		metrics:        m,
		logger:         logger,
		tokenBytes:     n,
		publicBaseURL:  strings.TrimRight(cfg.PublicBaseURL, "/"),
		contextTimeout: timeout,
	}
}

// generateToken returns n random bytes encoded as unpadded base64url.
func generateToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Issue creates a pending invite keyed by a fresh token and mails the guardian a link to it.
// A mail failure does not fail the issue.
func (s *invitationService) Issue(ctx context.Context, in domain.IssueInviteInput) (*domain.Invite, error) {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var eventTitle string
	if !in.EventRef.IsZero() {
		ev, err := s.events.GetByID(ctx, in.EventRef.ID)
		if err != nil {
			return nil, fmt.Errorf("event %s: %w", in.EventRef, err)
		}
		eventTitle = ev.Title
	}

	var inv *domain.Invite
	for attempt := 1; ; attempt++ {
		token, err := generateToken(s.tokenBytes)
		if err != nil {
			return nil, err
		}
		inv = &domain.Invite{
			Token:         token,
			GuardianName:  in.GuardianName,
			GuardianEmail: in.GuardianEmail,
			EventRef:      in.EventRef,
			Note:          in.Note,
			Status:        domain.InvitePending,
			RegDocID:      token,
		}
		err = s.invites.Create(ctx, inv)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrAlreadyExists) || attempt == tokenAttempts {
			return nil, fmt.Errorf("issue invite: %w", err)
		}
	}
	s.metrics.InviteIssued()
	s.logger.Info("invite issued", "event", inv.EventRef.String())

	if s.emailService != nil && inv.GuardianEmail != "" {
		err := s.emailService.SendInvite(ctx, &domain.InviteEmailData{
			Email:        inv.GuardianEmail,
			GuardianName: inv.GuardianName,
			EventTitle:   eventTitle,
			Link:         s.InviteLink(inv.Token),
			Note:         inv.Note,
		})
		if err != nil {
			s.metrics.InviteEmailFailed()
			s.logger.Warn("invite email failed", "error", err)
		}
	}
	return inv, nil
}

// InviteLink is the guardian-facing URL for token.
func (s *invitationService) InviteLink(token string) string {
	return s.publicBaseURL + "/guest/register?token=" + url.QueryEscape(token)
}

func (s *invitationService) GetInvite(ctx context.Context, token string) (*domain.Invite, error) {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if token == "" {
		return nil, domain.Invalid("token", "is required")
	}
	return s.invites.GetByToken(ctx, token)
}

func (s *invitationService) ListInvites(ctx context.Context) ([]*domain.Invite, error) {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()
	return s.invites.List(ctx)
}

func (s *invitationService) WatchInvites(fn func([]*domain.Invite)) (domain.Subscription, error) {
	return s.invites.Subscribe(fn)
}

// loadForGuest fetches the invite a guardian presented, mapping absence to ErrInvalidToken.
func loadForGuest(ctx context.Context, invites domain.InviteRepository, token string) (*domain.Invite, error) {
	if token == "" {
		return nil, domain.ErrInvalidToken
	}
	inv, err := invites.GetByToken(ctx, token)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// Lookup returns what a guardian may see about an invite before signing in.
func (s *invitationService) Lookup(ctx context.Context, token string) (*domain.InvitePublicView, error) {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	inv, err := loadForGuest(ctx, s.invites, token)
	if err != nil {
		return nil, err
	}
	if inv.Status == domain.InviteRevoked {
		return nil, domain.ErrRevoked
	}
	view := &domain.InvitePublicView{
		GuardianName:  inv.GuardianName,
		GuardianEmail: inv.GuardianEmail,
		Status:        inv.Status,
	}
	if inv.EventRef.In(domain.CollectionEvents) {
		ev, err := s.events.GetByID(ctx, inv.EventRef.ID)
		switch {
		case err == nil:
			view.EventTitle = ev.Title
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
	}
	return view, nil
}

func claimResult(err error) string {
	switch {
	case err == nil:
		return "claimed"
	case errors.Is(err, domain.ErrInvalidToken):
		return "invalid_token"
	case errors.Is(err, domain.ErrRevoked):
		return "revoked"
	case errors.Is(err, domain.ErrAlreadyClaimed):
		return "already_claimed"
	}
	return "error"
}

// Claim binds the invite to principalID. The ownership check and the write run in one
// transaction, so of two concurrent claimants exactly one wins. Re-claiming by the owner writes
// nothing unless the invite was reset to pending, which moves it back to registered.
func (s *invitationService) Claim(ctx context.Context, token, principalID string) (*domain.Invite, error) {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if principalID == "" {
		return nil, domain.ErrUnauthorized
	}
	var (
		out        *domain.Invite
		idempotent bool
	)
	err := s.tx.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		inv, err := loadForGuest(ctx, repos.Invites, token)
		if err != nil {
			return err
		}
		if err := inv.CheckClaim(principalID); err != nil {
			return err
		}
		if inv.OwnerPrincipalID == principalID && inv.Status != domain.InvitePending {
			out, idempotent = inv, true
			return nil
		}
		fields := map[string]any{"ownerPrincipalId": principalID}
		if inv.Status == domain.InvitePending {
			fields["status"] = domain.InviteRegistered
		}
		out, err = repos.Invites.Update(ctx, token, fields)
		return err
	})
	if idempotent {
		s.metrics.InviteClaim("idempotent")
	} else {
		s.metrics.InviteClaim(claimResult(err))
	}
	if err != nil {
		return nil, err
	}
	if !idempotent {
		s.logger.Info("invite claimed", "principal_id", principalID)
	}
	return out, nil
}

// precheckGuest rejects tokens that cannot be claimed by a new or returning guardian before any
// account work is done.
func (s *invitationService) precheckGuest(ctx context.Context, token string) (*domain.Invite, error) {
	inv, err := loadForGuest(ctx, s.invites, token)
	if err != nil {
		return nil, err
	}
	if inv.Status == domain.InviteRevoked {
		return nil, domain.ErrRevoked
	}
	return inv, nil
}

// RegisterGuardian creates a guardian account and claims the invite with it. Name and email
// default to the ones on the invite.
func (s *invitationService) RegisterGuardian(ctx context.Context, token string, creds domain.GuardianCredentials) (*domain.AcceptedInvite, error) {
	inv, err := s.precheckGuest(ctx, token)
	if err != nil {
		return nil, err
	}
	if inv.Claimed() {
		return nil, domain.ErrAlreadyClaimed
	}
	email := creds.Email
	if strings.TrimSpace(email) == "" {
		email = inv.GuardianEmail
	}
	name := creds.Name
	if strings.TrimSpace(name) == "" {
		name = inv.GuardianName
	}
	session, err := s.identity.SignUp(ctx, email, creds.Password, name)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateEmail) || errors.Is(err, domain.ErrValidation) {
			return nil, fmt.Errorf("%w: %w", domain.ErrSignUpRejected, err)
		}
		return nil, err
	}
	claimed, err := s.Claim(ctx, token, session.Principal.ID)
	if err != nil {
		return nil, err
	}
	return &domain.AcceptedInvite{Session: session, Invite: claimed}, nil
}

// SignInGuardian signs an existing guardian in and claims the invite, or confirms their claim.
func (s *invitationService) SignInGuardian(ctx context.Context, token string, creds domain.GuardianCredentials) (*domain.AcceptedInvite, error) {
	if _, err := s.precheckGuest(ctx, token); err != nil {
		return nil, err
	}
	session, err := s.identity.SignIn(ctx, creds.Email, creds.Password)
	if err != nil {
		return nil, err
	}
	claimed, err := s.Claim(ctx, token, session.Principal.ID)
	if err != nil {
		return nil, err
	}
	return &domain.AcceptedInvite{Session: session, Invite: claimed}, nil
}

// Submit saves the guardian's form. In one transaction it merges the registrant, upserts the
// registration keyed by the invite's regDocId with status pending, and marks the invite
// submitted. Re-submitting merges again and resets the registration to pending.
func (s *invitationService) Submit(ctx context.Context, token, principalID string, form domain.RegistrantPatch) (*domain.SubmitResult, error) {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if principalID == "" {
		return nil, domain.ErrUnauthorized
	}
	form, err := normalizePatch(form)
	if err != nil {
		return nil, err
	}

	var (
		result  = &domain.SubmitResult{}
		created bool
	)
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		inv, err := loadForGuest(ctx, repos.Invites, token)
		if err != nil {
			return err
		}
		if err := inv.CheckSubmit(principalID); err != nil {
			return err
		}
		regID := inv.RegDocID
		if regID == "" {
			regID = inv.Token
		}

		result.Registrant, err = repos.Registrants.Upsert(ctx, regID, form)
		if err != nil {
			return fmt.Errorf("save registrant: %w", err)
		}

		_, err = repos.Registrations.GetByID(ctx, regID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			created = true
		case err != nil:
			return err
		}
		fields := map[string]any{
			"registrantRef":    domain.RegistrantRef(regID),
			"status":           domain.RegistrationPending,
			"ownerPrincipalId": principalID,
			"inviteToken":      inv.Token,
		}
		if !inv.EventRef.IsZero() {
			fields["eventRef"] = inv.EventRef
		} else if created {
			fields["eventRef"] = domain.Ref{}
		}
		if created {
			fields["role"] = domain.RoleParticipant
		}
		result.Registration, err = repos.Registrations.Upsert(ctx, regID, fields)
		if err != nil {
			return fmt.Errorf("save registration: %w", err)
		}

		result.Invite, err = repos.Invites.Update(ctx, inv.Token, map[string]any{
			"status":   domain.InviteSubmitted,
			"regDocId": regID,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.InviteSubmitted()
	if created {
		s.metrics.RegistrationCreated("invite")
	}
	s.logger.Info("invite form submitted", "registration_id", result.Registration.ID, "first_submission", created)
	return result, nil
}

// SetStatus is the administrative override: any valid status may be set, from any state.
func (s *invitationService) SetStatus(ctx context.Context, token string, status domain.InviteStatus) (*domain.Invite, error) {
	ctx, cancel := withTimeout(ctx, s.contextTimeout)
	defer cancel()

	if !status.Valid() {
		return nil, domain.Invalid("status", "unknown invite status %q", status)
	}
	inv, err := s.invites.Update(ctx, token, map[string]any{"status": status})
	if err != nil {
		return nil, fmt.Errorf("set invite status: %w", err)
	}
	s.logger.Info("invite status set", "status", status)
	return inv, nil
}
