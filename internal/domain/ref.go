package domain

import (
	"strings"
)

// Collection names used in the entity store.
const (
	CollectionEvents          = "events"
	CollectionRegistrants     = "registrants"
	CollectionRegistrations   = "registrations"
	CollectionInvites         = "invites"
	CollectionPrincipals      = "principals"
	CollectionPrincipalEmails = "principal_emails"
)

// Ref points at a document in a collection. It is encoded as "<collection>/<id>".
type Ref struct {
	Collection string
	ID         string
}

// NewRef returns a Ref for id in collection.
func NewRef(collection, id string) Ref {
	return Ref{Collection: collection, ID: id}
}

// EventRef returns the reference of the event with the given id.
func EventRef(id string) Ref { return NewRef(CollectionEvents, id) }

// RegistrantRef returns the reference of the registrant with the given id.
func RegistrantRef(id string) Ref { return NewRef(CollectionRegistrants, id) }

// ParseRef parses "<collection>/<id>", splitting on the first slash.
// Both parts must be non-empty.
func ParseRef(s string) (Ref, error) {
	s = strings.TrimSpace(s)
	i := strings.IndexByte(s, '/')
	if i <= 0 || i == len(s)-1 {
		return Ref{}, Invalid("ref", "malformed reference %q", s)
	}
	return Ref{Collection: s[:i], ID: s[i+1:]}, nil
}

// IsZero reports whether the reference is unset.
func (r Ref) IsZero() bool {
	return r.Collection == "" && r.ID == ""
}

// In reports whether the reference points into collection.
func (r Ref) In(collection string) bool {
	return r.Collection == collection && r.ID != ""
}

func (r Ref) String() string {
	if r.Collection == "" {
		return r.ID
	}
	return r.Collection + "/" + r.ID
}

// MarshalText encodes the reference as "<collection>/<id>"; the zero Ref encodes as "".
func (r Ref) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText accepts "<collection>/<id>". A bare id (legacy data) is kept with an
// empty collection so it can still be displayed.
func (r *Ref) UnmarshalText(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" {
		*r = Ref{}
		return nil
	}
	if !strings.Contains(s, "/") {
		*r = Ref{ID: s}
		return nil
	}
	parsed, err := ParseRef(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
