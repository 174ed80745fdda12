// Package models contains domain types for contact-reconciler.
package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/contact-reconciler/pkg/normalize"
)

// Survivorship-tracked field names. These are the flat string keys used by
// incoming payloads, survivorship resolution, and audit entries.
const (
	FieldFirstName   = "first_name"
	FieldLastName    = "last_name"
	FieldEmail       = "email"
	FieldPhone       = "phone"
	FieldDateOfBirth = "date_of_birth"
	FieldStreet      = "street"
	FieldCity        = "city"
	FieldState       = "state"
	FieldPostalCode  = "postal_code"
	FieldEmployer    = "employer"
	FieldSchool      = "school"
	FieldNotes       = "notes"
)

// DateOfBirthLayout is the wire format for date_of_birth payload values.
const DateOfBirthLayout = "2006-01-02"

// TrackedFields lists every field survivorship resolution can govern,
// in a stable order.
var TrackedFields = []string{
	FieldFirstName, FieldLastName, FieldEmail, FieldPhone, FieldDateOfBirth,
	FieldStreet, FieldCity, FieldState, FieldPostalCode,
	FieldEmployer, FieldSchool, FieldNotes,
}

// ContactEntity is a core contact record.
type ContactEntity struct {
	ID uuid.UUID `json:"id"`

	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Email       string  `json:"email"`
	Phone       string  `json:"phone"`
	DateOfBirth *string `json:"date_of_birth,omitempty"` // YYYY-MM-DD

	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`

	Employer string `json:"employer"`
	School   string `json:"school"`
	Notes    string `json:"notes"`

	AlternateEmails []string `json:"alternate_emails,omitempty"`
	AlternatePhones []string `json:"alternate_phones,omitempty"`

	// Verification timestamps back the verified_core survivorship tier.
	EmailVerifiedAt *time.Time `json:"email_verified_at,omitempty"`
	PhoneVerifiedAt *time.Time `json:"phone_verified_at,omitempty"`

	IsDeleted bool       `json:"is_deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FieldMap flattens the entity's survivorship-tracked fields into the
// string form used by resolution and auditing.
func (e *ContactEntity) FieldMap() map[string]string {
	m := map[string]string{
		FieldFirstName:  e.FirstName,
		FieldLastName:   e.LastName,
		FieldEmail:      e.Email,
		FieldPhone:      e.Phone,
		FieldStreet:     e.Street,
		FieldCity:       e.City,
		FieldState:      e.State,
		FieldPostalCode: e.PostalCode,
		FieldEmployer:   e.Employer,
		FieldSchool:     e.School,
		FieldNotes:      e.Notes,
	}
	if e.DateOfBirth != nil {
		m[FieldDateOfBirth] = *e.DateOfBirth
	} else {
		m[FieldDateOfBirth] = ""
	}
	return m
}

// ApplyField writes a resolved string value back onto the typed entity.
// Unknown fields are ignored so profile-configured extra fields do not
// break entity persistence.
func (e *ContactEntity) ApplyField(field, value string) {
	switch field {
	case FieldFirstName:
		e.FirstName = value
	case FieldLastName:
		e.LastName = value
	case FieldEmail:
		e.Email = value
	case FieldPhone:
		e.Phone = value
	case FieldDateOfBirth:
		if value == "" {
			e.DateOfBirth = nil
		} else {
			v := value
			e.DateOfBirth = &v
		}
	case FieldStreet:
		e.Street = value
	case FieldCity:
		e.City = value
	case FieldState:
		e.State = value
	case FieldPostalCode:
		e.PostalCode = value
	case FieldEmployer:
		e.Employer = value
	case FieldSchool:
		e.School = value
	case FieldNotes:
		e.Notes = value
	}
}

// VerifiedSnapshot returns the per-field values backed by a verification
// timestamp. Fields without a recorded verification are absent.
func (e *ContactEntity) VerifiedSnapshot() map[string]string {
	v := make(map[string]string)
	if e.EmailVerifiedAt != nil && e.Email != "" {
		v[FieldEmail] = e.Email
	}
	if e.PhoneVerifiedAt != nil && e.Phone != "" {
		v[FieldPhone] = e.Phone
	}
	return v
}

// AllEmails returns the normalized primary and alternate emails.
func (e *ContactEntity) AllEmails() []string {
	var out []string
	if n := normalize.Email(e.Email); n != "" {
		out = append(out, n)
	}
	for _, alt := range e.AlternateEmails {
		if n := normalize.Email(alt); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// AllPhones returns the normalized primary and alternate phones.
func (e *ContactEntity) AllPhones() []string {
	var out []string
	if n := normalize.Phone(e.Phone); n != "" {
		out = append(out, n)
	}
	for _, alt := range e.AlternatePhones {
		if n := normalize.Phone(alt); n != "" {
			out = append(out, n)
		}
	}
	return out
}

// BirthDate parses the entity's date_of_birth. The zero time is returned
// when the field is absent or unparseable.
func (e *ContactEntity) BirthDate() time.Time {
	if e.DateOfBirth == nil {
		return time.Time{}
	}
	t, err := time.Parse(DateOfBirthLayout, *e.DateOfBirth)
	if err != nil {
		return time.Time{}
	}
	return t
}
