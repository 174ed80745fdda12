package models

import (
	"testing"
	"time"
)

func TestContactEntity_FieldMapRoundTrip(t *testing.T) {
	dob := "1990-06-15"
	e := &ContactEntity{
		FirstName:   "Jane",
		LastName:    "Doe",
		Email:       "jane@example.com",
		DateOfBirth: &dob,
		City:        "Springfield",
	}

	m := e.FieldMap()
	if m[FieldFirstName] != "Jane" || m[FieldDateOfBirth] != dob {
		t.Fatalf("FieldMap() = %v", m)
	}

	var rebuilt ContactEntity
	for field, value := range m {
		rebuilt.ApplyField(field, value)
	}
	if rebuilt.FirstName != e.FirstName || rebuilt.City != e.City {
		t.Error("ApplyField should round-trip FieldMap values")
	}
	if rebuilt.DateOfBirth == nil || *rebuilt.DateOfBirth != dob {
		t.Error("ApplyField should round-trip date_of_birth")
	}

	rebuilt.ApplyField(FieldDateOfBirth, "")
	if rebuilt.DateOfBirth != nil {
		t.Error("blank date_of_birth should clear the field")
	}

	// Unknown fields are ignored, not an error.
	rebuilt.ApplyField("favorite_color", "blue")
}

func TestContactEntity_VerifiedSnapshot(t *testing.T) {
	now := time.Now()
	e := &ContactEntity{
		Email:           "jane@example.com",
		Phone:           "+14155550101",
		EmailVerifiedAt: &now,
	}

	v := e.VerifiedSnapshot()
	if v[FieldEmail] != "jane@example.com" {
		t.Error("verified email should appear in snapshot")
	}
	if _, ok := v[FieldPhone]; ok {
		t.Error("unverified phone must not appear in snapshot")
	}
}

func TestContactEntity_AllContactPoints(t *testing.T) {
	e := &ContactEntity{
		Email:           "Jane+x@Example.com",
		Phone:           "(415) 555-0101",
		AlternateEmails: []string{"j.doe@work.com", "not-an-email"},
		AlternatePhones: []string{"415 555 0199"},
	}

	emails := e.AllEmails()
	if len(emails) != 2 || emails[0] != "jane@example.com" || emails[1] != "j.doe@work.com" {
		t.Errorf("AllEmails() = %v", emails)
	}

	phones := e.AllPhones()
	if len(phones) != 2 || phones[0] != "+14155550101" || phones[1] != "+14155550199" {
		t.Errorf("AllPhones() = %v", phones)
	}
}

func TestContactEntity_BirthDate(t *testing.T) {
	dob := "1990-06-15"
	e := &ContactEntity{DateOfBirth: &dob}
	if got := e.BirthDate(); got.Year() != 1990 || got.Month() != time.June {
		t.Errorf("BirthDate() = %v", got)
	}

	bad := "June 15, 1990"
	e.DateOfBirth = &bad
	if !e.BirthDate().IsZero() {
		t.Error("unparseable date_of_birth should yield zero time")
	}

	e.DateOfBirth = nil
	if !e.BirthDate().IsZero() {
		t.Error("missing date_of_birth should yield zero time")
	}
}
