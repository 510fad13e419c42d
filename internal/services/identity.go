package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"youthexchange/internal/domain"
)

const minPasswordLen = 8

type identityService struct {
	principals  domain.PrincipalRepository
	hasher      domain.PasswordHasher
	issuer      domain.TokenIssuer
	verifier    domain.TokenVerifier
	revocations domain.RevocationList
	tokenExpiry time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu        sync.Mutex
	observers map[int]func(domain.AuthEvent)
	nextObs   int
}

// NewIdentityService returns the password based identity provider used for administrators and
// guardians.
func NewIdentityService(
	principals domain.PrincipalRepository,
	hasher domain.PasswordHasher,
	issuer domain.TokenIssuer,
	verifier domain.TokenVerifier,
	revocations domain.RevocationList,
	tokenExpiry time.Duration,
	logger *slog.Logger,
) domain.IdentityProvider {
	return &identityService{
		principals:  principals,
		hasher:      hasher,
		issuer:      issuer,
		verifier:    verifier,
		revocations: revocations,
		tokenExpiry: tokenExpiry,
		logger:      logger,
		now:         time.Now,
		observers:   make(map[int]func(domain.AuthEvent)),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(email, password string) error {
	if !domain.ValidEmail(email) {
		return domain.Invalid("email", "invalid email format")
	}
	if len(password) < minPasswordLen {
		return domain.Invalid("password", "must be at least %d characters", minPasswordLen)
	}
	return nil
}

// SignUp creates a guardian principal and opens a session for it.
func (s *identityService) SignUp(ctx context.Context, email, password, displayName string) (*domain.Session, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}
	p, err := s.newPrincipal(email, password, displayName, domain.RoleCodeGuardian)
	if err != nil {
		return nil, err
	}
	if err := s.principals.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("sign up: %w", err)
	}
	s.logger.Info("principal signed up", "principal_id", p.ID)
	return s.openSession(p)
}

func (s *identityService) newPrincipal(email, password, displayName string, roles ...string) (*domain.Principal, error) {
	salt, err := s.hasher.GenerateSalt()
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(salt, password)
	if err != nil {
		return nil, err
	}
	return &domain.Principal{
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		Roles:        roles,
		PasswordHash: hash,
		Salt:         salt,
	}, nil
}

// SignIn checks the password and opens a session. Unknown emails and wrong passwords both yield
// domain.ErrInvalidCredentials.
func (s *identityService) SignIn(ctx context.Context, email, password string) (*domain.Session, error) {
	p, err := s.principals.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("sign in: %w", err)
	}
	if err := s.hasher.Compare(p.PasswordHash, p.Salt, password); err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("sign in: %w", err)
	}
	return s.openSession(p)
}

func (s *identityService) openSession(p *domain.Principal) (*domain.Session, error) {
	token, claims, err := s.issuer.Issue(p.ID, p.Email, p.Roles, s.tokenExpiry)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	s.emit(domain.AuthEvent{Kind: domain.AuthSignedIn, PrincipalID: p.ID, At: s.now()})
	return &domain.Session{Token: token, ExpiresAt: claims.ExpiresAt, Principal: p}, nil
}

// SignOut revokes the session token for the rest of its lifetime.
func (s *identityService) SignOut(ctx context.Context, token string) error {
	claims, err := s.verifier.Verify(token)
	if err != nil {
		return err
	}
	ttl := claims.ExpiresAt.Sub(s.now())
	if err := s.revocations.Revoke(ctx, claims.TokenID, ttl); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	s.emit(domain.AuthEvent{Kind: domain.AuthSignedOut, PrincipalID: claims.PrincipalID, At: s.now()})
	return nil
}

// Authenticate verifies token and rejects revoked sessions.
func (s *identityService) Authenticate(ctx context.Context, token string) (*domain.Claims, error) {
	claims, err := s.verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.TokenID)
	if err != nil {
		return nil, fmt.Errorf("%w: revocation check: %w", domain.ErrStoreUnavailable, err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: session signed out", domain.ErrUnauthorized)
	}
	return claims, nil
}

// OnAuthStateChange registers fn for sign-in and sign-out events. fn runs synchronously on the
// signing goroutine.
func (s *identityService) OnAuthStateChange(fn func(domain.AuthEvent)) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

func (s *identityService) emit(ev domain.AuthEvent) {
	s.mu.Lock()
	fns := make([]func(domain.AuthEvent), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// EnsureAdmin creates the administrator account, or grants the admin role to an existing
// principal with that email. The password of an existing principal is left unchanged.
func (s *identityService) EnsureAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	existing, err := s.principals.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.HasRole(domain.RoleCodeAdmin) {
			return nil
		}
		if err := s.principals.AddRole(ctx, existing.ID, domain.RoleCodeAdmin); err != nil {
			return fmt.Errorf("grant admin: %w", err)
		}
		s.logger.Info("admin role granted", "principal_id", existing.ID)
		return nil
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("ensure admin: %w", err)
	}

	if err := validateCredentials(email, password); err != nil {
		return err
	}
	p, err := s.newPrincipal(email, password, "Administrator", domain.RoleCodeAdmin)
	if err != nil {
		return err
	}
	if err := s.principals.Create(ctx, p); err != nil {
		return fmt.Errorf("create admin: %w", err)
	}
	s.logger.Info("admin account created", "principal_id", p.ID)
	return nil
}
