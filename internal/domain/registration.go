package domain

import (
	"context"
	"time"
)

// Role of a registrant within an event.
type Role string

const (
	RoleParticipant Role = "participant"
	RoleLeader      Role = "leader"
	RoleJC          Role = "JC"
	RoleChaperone   Role = "chaperone"
	RoleStaff       Role = "staff"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleParticipant, RoleLeader, RoleJC, RoleChaperone, RoleStaff:
		return true
	}
	return false
}

// RegistrationStatus is the state of a registration.
type RegistrationStatus string

const (
	RegistrationPending   RegistrationStatus = "pending"
	RegistrationApplied   RegistrationStatus = "applied"
	RegistrationApproved  RegistrationStatus = "approved"
	RegistrationWaitlist  RegistrationStatus = "waitlist"
	RegistrationRejected  RegistrationStatus = "rejected"
	RegistrationCanceled  RegistrationStatus = "canceled"
	RegistrationCompleted RegistrationStatus = "completed"
)

// RegistrationStatuses lists every status in display order.
var RegistrationStatuses = []RegistrationStatus{
	RegistrationPending, RegistrationApplied, RegistrationApproved, RegistrationWaitlist,
	RegistrationRejected, RegistrationCanceled, RegistrationCompleted,
}

// Valid reports whether s is a known status.
func (s RegistrationStatus) Valid() bool {
	for _, v := range RegistrationStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether s is terminal in practice. Nothing enforces it unless the strict
// transition policy is active.
func (s RegistrationStatus) Terminal() bool {
	return s == RegistrationCanceled || s == RegistrationRejected || s == RegistrationCompleted
}

// TransitionPolicy decides whether a registration may move from one status to another.
type TransitionPolicy func(from, to RegistrationStatus) bool

// PermissiveTransitions accepts any move between known statuses.
func PermissiveTransitions(from, to RegistrationStatus) bool {
	return to.Valid()
}

var strictTransitionTable = map[RegistrationStatus][]RegistrationStatus{
	RegistrationPending:  {RegistrationApplied, RegistrationApproved, RegistrationWaitlist, RegistrationRejected, RegistrationCanceled},
	RegistrationApplied:  {RegistrationApproved, RegistrationWaitlist, RegistrationRejected, RegistrationCanceled},
	RegistrationWaitlist: {RegistrationApproved, RegistrationRejected, RegistrationCanceled},
	RegistrationApproved: {RegistrationCompleted, RegistrationCanceled},
}

// StrictTransitions only accepts the moves in the transition table. Terminal states have no exits.
// Re-asserting the current status is always allowed.
func StrictTransitions(from, to RegistrationStatus) bool {
	if !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	for _, next := range strictTransitionTable[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Registration links a registrant to an event.
type Registration struct {
	ID               string             `json:"id"`
	EventRef         Ref                `json:"eventRef"`
	RegistrantRef    Ref                `json:"registrantRef"`
	Role             Role               `json:"role"`
	Status           RegistrationStatus `json:"status"`
	OwnerPrincipalID string             `json:"ownerPrincipalId,omitempty"`
	InviteToken      string             `json:"inviteToken,omitempty"`
	CreatedAt        time.Time          `json:"createdAt"`
	UpdatedAt        time.Time          `json:"updatedAt"`
}

// CreateRegistrationInput is what an administrator supplies to link a registrant to an event.
type CreateRegistrationInput struct {
	EventRef      Ref
	RegistrantRef Ref
	Role          Role
	Status        RegistrationStatus
}

// RegistrationFilter narrows registration listings. Zero fields do not filter.
type RegistrationFilter struct {
	EventRef Ref
	Status   RegistrationStatus
}

// RegistrationView is a registration with its references resolved for display. When a reference
// dangles, the label falls back to the raw reference.
type RegistrationView struct {
	Registration      *Registration `json:"registration"`
	EventTitle        string        `json:"eventTitle"`
	RegistrantName    string        `json:"registrantName"`
	EventMissing      bool          `json:"eventMissing"`
	RegistrantMissing bool          `json:"registrantMissing"`
}

// RegistrationRepository defines storage operations for registrations.
type RegistrationRepository interface {
	Create(ctx context.Context, reg *Registration) error
	GetByID(ctx context.Context, id string) (*Registration, error)
	// Upsert merges the registration fields in fields into document id, creating it when absent.
	Upsert(ctx context.Context, id string, fields map[string]any) (*Registration, error)
	UpdateStatus(ctx context.Context, id string, status RegistrationStatus) (*Registration, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter RegistrationFilter) ([]*Registration, error)
	ListByOwner(ctx context.Context, principalID string) ([]*Registration, error)
	Subscribe(filter RegistrationFilter, fn func([]*Registration)) (Subscription, error)
}

// RegistrationService owns the registration state machine.
type RegistrationService interface {
	CreateRegistration(ctx context.Context, in CreateRegistrationInput) (*Registration, error)
	GetRegistration(ctx context.Context, id string) (*Registration, error)
	UpdateStatus(ctx context.Context, id string, status RegistrationStatus) (*Registration, error)
	DeleteRegistration(ctx context.Context, id string) error
	ListRegistrations(ctx context.Context, filter RegistrationFilter) ([]*Registration, error)
	ListRegistrationViews(ctx context.Context, filter RegistrationFilter) ([]*RegistrationView, error)
	ListOwnedRegistrations(ctx context.Context, principalID string) ([]*Registration, error)
	CanTransition(from, to RegistrationStatus) bool
	WatchRegistrations(filter RegistrationFilter, fn func([]*Registration)) (Subscription, error)
}
