package domain

import (
	"context"
	"time"
)

// Principal roles.
const (
	RoleCodeAdmin    = "admin"
	RoleCodeGuardian = "guardian"
)

// Principal is an authenticated identity: an administrator or a guardian.
type Principal struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"displayName"`
	Roles        []string  `json:"roles"`
	PasswordHash string    `json:"-"`
	Salt         string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HasRole reports whether the principal carries role.
func (p *Principal) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Session is a signed-in principal and its bearer token.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Principal *Principal `json:"principal"`
}

// Claims are the verified contents of a session token.
type Claims struct {
	PrincipalID string
	Email       string
	Roles       []string
	TokenID     string
	ExpiresAt   time.Time
}

// AuthEventKind distinguishes sign-in from sign-out.
type AuthEventKind string

const (
	AuthSignedIn  AuthEventKind = "signed_in"
	AuthSignedOut AuthEventKind = "signed_out"
)

// AuthEvent is published whenever a principal signs in or out.
type AuthEvent struct {
	Kind        AuthEventKind
	PrincipalID string
	At          time.Time
}

// PasswordHasher handles salt generation, hashing, and verification.
// Implementations may use bcrypt, argon2, etc.
type PasswordHasher interface {
	GenerateSalt() (string, error)
	Hash(salt, password string) (hash string, err error)
	Compare(hash, salt, password string) error
}

// TokenIssuer issues session tokens for a principal.
type TokenIssuer interface {
	Issue(principalID, email string, roles []string, expiry time.Duration) (token string, claims *Claims, err error)
}

// TokenVerifier parses and verifies a session token.
type TokenVerifier interface {
	Verify(token string) (*Claims, error)
}

// RevocationList records session tokens revoked before they expire.
type RevocationList interface {
	Revoke(ctx context.Context, tokenID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// PrincipalRepository defines storage operations for principals.
type PrincipalRepository interface {
	// Create stores the principal and reserves its e-mail; it returns ErrDuplicateEmail when the
	// e-mail is taken.
	Create(ctx context.Context, p *Principal) error
	GetByID(ctx context.Context, id string) (*Principal, error)
	GetByEmail(ctx context.Context, email string) (*Principal, error)
	AddRole(ctx context.Context, id, role string) error
}

// IdentityProvider is the identity collaborator consumed by the core.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password, displayName string) (*Session, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, token string) error
	// Authenticate resolves a bearer token into its claims; this is the current principal of a request.
	Authenticate(ctx context.Context, token string) (*Claims, error)
	// OnAuthStateChange registers fn for sign-in and sign-out events and returns an unsubscribe func.
	OnAuthStateChange(fn func(AuthEvent)) (unsubscribe func())
	// EnsureAdmin creates the administrator account if missing and grants it the admin role.
	EnsureAdmin(ctx context.Context, email, password string) error
}
