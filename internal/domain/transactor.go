package domain

import "context"

// Repositories groups the repositories bound to one unit of work.
type Repositories struct {
	Events        EventRepository
	Registrants   RegistrantRepository
	Registrations RegistrationRepository
	Invites       InviteRepository
	Principals    PrincipalRepository
}

// Transactor runs fn with repositories whose reads and writes form one atomic unit.
// Listing and subscribing inside fn see committed data only.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
