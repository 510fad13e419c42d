package domain

import (
	"context"
	"strings"
	"time"
)

// InviteStatus is the state of a guardian invite.
type InviteStatus string

const (
	InvitePending    InviteStatus = "pending"
	InviteRegistered InviteStatus = "registered"
	InviteSubmitted  InviteStatus = "submitted"
	InviteRevoked    InviteStatus = "revoked"
)

// Valid reports whether s is a known invite status.
func (s InviteStatus) Valid() bool {
	switch s {
	case InvitePending, InviteRegistered, InviteSubmitted, InviteRevoked:
		return true
	}
	return false
}

// Invite lets a guardian holding Token self-register and submit a registrant's form.
// Token is both the document id and the secret carried in the invite link.
type Invite struct {
	Token            string       `json:"token"`
	GuardianName     string       `json:"guardianName"`
	GuardianEmail    string       `json:"guardianEmail"`
	EventRef         Ref          `json:"eventRef"`
	Note             string       `json:"note"`
	Status           InviteStatus `json:"status"`
	OwnerPrincipalID string       `json:"ownerPrincipalId"`
	RegDocID         string       `json:"regDocId"`
	CreatedAt        time.Time    `json:"createdAt"`
	UpdatedAt        time.Time    `json:"updatedAt"`
}

// Claimed reports whether a principal is bound to the invite.
func (i *Invite) Claimed() bool {
	return i.OwnerPrincipalID != ""
}

// CheckClaim decides whether principalID may claim the invite. It returns nil when the claim
// is allowed (including re-claims by the current owner).
func (i *Invite) CheckClaim(principalID string) error {
	if i.Status == InviteRevoked {
		return ErrRevoked
	}
	if i.Claimed() && i.OwnerPrincipalID != principalID {
		return ErrAlreadyClaimed
	}
	return nil
}

// CheckSubmit decides whether principalID may submit the form for this invite.
func (i *Invite) CheckSubmit(principalID string) error {
	if i.Status == InviteRevoked {
		return ErrRevoked
	}
	if i.Status != InviteRegistered && i.Status != InviteSubmitted {
		return ErrNotOwner
	}
	if !i.Claimed() || i.OwnerPrincipalID != principalID {
		return ErrNotOwner
	}
	return nil
}

// IssueInviteInput is what an administrator supplies when issuing an invite.
type IssueInviteInput struct {
	GuardianName  string `json:"guardianName"`
	GuardianEmail string `json:"guardianEmail"`
	EventRef      Ref    `json:"eventRef"`
	Note          string `json:"note"`
}

// Normalize trims fields and lower-cases the e-mail.
func (in *IssueInviteInput) Normalize() {
	in.GuardianName = strings.TrimSpace(in.GuardianName)
	in.GuardianEmail = strings.ToLower(strings.TrimSpace(in.GuardianEmail))
	in.Note = strings.TrimSpace(in.Note)
}

// Validate checks the e-mail format and the event reference collection.
func (in *IssueInviteInput) Validate() error {
	if in.GuardianEmail != "" && !ValidEmail(in.GuardianEmail) {
		return Invalid("guardianEmail", "invalid email format")
	}
	if !in.EventRef.IsZero() && !in.EventRef.In(CollectionEvents) {
		return Invalid("eventRef", "must reference an event")
	}
	return nil
}

// InvitePublicView is what a guardian may see about an invite before signing in.
type InvitePublicView struct {
	GuardianName  string       `json:"guardianName"`
	GuardianEmail string       `json:"guardianEmail"`
	EventTitle    string       `json:"eventTitle,omitempty"`
	Status        InviteStatus `json:"status"`
}

// GuardianCredentials are supplied by a guardian accepting an invite.
type GuardianCredentials struct {
	Name     string
	Email    string
	Password string
}

// AcceptedInvite is the outcome of a guardian signing up or in with an invite.
type AcceptedInvite struct {
	Session *Session `json:"session"`
	Invite  *Invite  `json:"invite"`
}

// SubmitResult holds the records written by a guardian submission.
type SubmitResult struct {
	Invite       *Invite       `json:"invite"`
	Registration *Registration `json:"registration"`
	Registrant   *Registrant   `json:"registrant"`
}

// InviteRepository defines storage operations for invites.
type InviteRepository interface {
	// Create stores a new invite and returns ErrAlreadyExists on token collision.
	Create(ctx context.Context, inv *Invite) error
	GetByToken(ctx context.Context, token string) (*Invite, error)
	// Update merges the given fields and refreshes updatedAt.
	Update(ctx context.Context, token string, fields map[string]any) (*Invite, error)
	List(ctx context.Context) ([]*Invite, error)
	Subscribe(fn func([]*Invite)) (Subscription, error)
}

// InvitationService owns the invite state machine and the guardian hand-off.
type InvitationService interface {
	Issue(ctx context.Context, in IssueInviteInput) (*Invite, error)
	// InviteLink is the guardian-facing URL carrying token.
	InviteLink(token string) string
	GetInvite(ctx context.Context, token string) (*Invite, error)
	ListInvites(ctx context.Context) ([]*Invite, error)
	WatchInvites(fn func([]*Invite)) (Subscription, error)
	// Lookup is the guardian-facing read; it rejects unknown and revoked tokens.
	Lookup(ctx context.Context, token string) (*InvitePublicView, error)
	Claim(ctx context.Context, token, principalID string) (*Invite, error)
	RegisterGuardian(ctx context.Context, token string, creds GuardianCredentials) (*AcceptedInvite, error)
	SignInGuardian(ctx context.Context, token string, creds GuardianCredentials) (*AcceptedInvite, error)
	Submit(ctx context.Context, token, principalID string, form RegistrantPatch) (*SubmitResult, error)
	SetStatus(ctx context.Context, token string, status InviteStatus) (*Invite, error)
}
