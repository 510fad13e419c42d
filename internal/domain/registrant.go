package domain

import (
	"context"
	"regexp"
	"strings"
	"time"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidEmail reports whether s looks like an e-mail address.
func ValidEmail(s string) bool {
	return emailPattern.MatchString(s)
}

// Address of a registrant.
type Address struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	Country string `json:"country"`
}

// GuardianContact is the registrant's responsible adult.
type GuardianContact struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// RegistrantBasic holds biographical data.
type RegistrantBasic struct {
	FirstName string          `json:"firstName"`
	LastName  string          `json:"lastName"`
	BirthDate string          `json:"birthDate"`
	Phone     string          `json:"phone"`
	Email     string          `json:"email"`
	Address   Address         `json:"address"`
	Guardian  GuardianContact `json:"guardian"`
	Notes     string          `json:"notes"`
	PhotoURL  string          `json:"photoUrl"`
}

// Registrant is the person being registered.
type Registrant struct {
	ID            string          `json:"id"`
	Basic         RegistrantBasic `json:"basic"`
	Questionnaire map[string]any  `json:"questionnaire"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// DisplayName is "First Last", trimmed.
func (r *Registrant) DisplayName() string {
	return strings.TrimSpace(r.Basic.FirstName + " " + r.Basic.LastName)
}

// RegistrantPatch is a partial update. Only the keys present are written; everything else in the
// stored registrant is preserved.
type RegistrantPatch struct {
	Basic         map[string]any `json:"basic"`
	Questionnaire map[string]any `json:"questionnaire"`
}

var (
	basicStringFields = map[string]bool{
		"firstName": true, "lastName": true, "birthDate": true, "phone": true,
		"email": true, "notes": true, "photoUrl": true,
	}
	basicNestedFields = map[string]map[string]bool{
		"address":  {"street": true, "city": true, "state": true, "country": true},
		"guardian": {"name": true, "phone": true},
	}
)

// Validate checks that Basic only carries known fields with string values and that dates and
// e-mail addresses are well formed.
func (p RegistrantPatch) Validate() error {
	for k, v := range p.Basic {
		if basicStringFields[k] {
			s, ok := v.(string)
			if !ok {
				return Invalid("basic."+k, "must be a string")
			}
			if err := validBasicString(k, strings.TrimSpace(s)); err != nil {
				return err
			}
			continue
		}
		nested, known := basicNestedFields[k]
		if !known {
			return Invalid("basic."+k, "unknown field")
		}
		m, ok := v.(map[string]any)
		if !ok {
			return Invalid("basic."+k, "must be an object")
		}
		for nk, nv := range m {
			if !nested[nk] {
				return Invalid("basic."+k+"."+nk, "unknown field")
			}
			if _, ok := nv.(string); !ok {
				return Invalid("basic."+k+"."+nk, "must be a string")
			}
		}
	}
	return nil
}

func validBasicString(field, s string) error {
	switch field {
	case "birthDate":
		if s == "" {
			return nil
		}
		if _, err := time.Parse(DateLayout, s); err != nil {
			return Invalid("basic.birthDate", "malformed date %q", s)
		}
	case "email":
		if s != "" && !ValidEmail(s) {
			return Invalid("basic.email", "invalid email format")
		}
	}
	return nil
}

// IsEmpty reports whether the patch carries no fields.
func (p RegistrantPatch) IsEmpty() bool {
	return len(p.Basic) == 0 && len(p.Questionnaire) == 0
}

// RegistrantRepository defines storage operations for registrants.
type RegistrantRepository interface {
	Create(ctx context.Context, r *Registrant) error
	GetByID(ctx context.Context, id string) (*Registrant, error)
	// Upsert merges patch into the registrant, creating it when absent.
	Upsert(ctx context.Context, id string, patch RegistrantPatch) (*Registrant, error)
	List(ctx context.Context) ([]*Registrant, error)
}

// RegistrantService defines administrative registrant operations.
type RegistrantService interface {
	CreateRegistrant(ctx context.Context, patch RegistrantPatch) (*Registrant, error)
	GetRegistrant(ctx context.Context, id string) (*Registrant, error)
	UpdateRegistrant(ctx context.Context, id string, patch RegistrantPatch) (*Registrant, error)
	ListRegistrants(ctx context.Context) ([]*Registrant, error)
}
