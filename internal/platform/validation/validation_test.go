package validation

import (
	"testing"
	"time"
)

type sample struct {
	Email     string    `json:"email" validate:"required,email,max=256"`
	Name      string    `json:"name" validate:"required,max=5"`
	BirthDate time.Time `json:"birth_date" validate:"required"`
}

func TestStruct_CollectsEveryViolation(t *testing.T) {
	fields := Struct(sample{Email: "nope", Name: "too long name"})
	if len(fields) != 3 {
		t.Fatalf("expected 3 violations, got %d: %#v", len(fields), fields)
	}

	got := map[string]string{}
	for _, f := range fields {
		got[f.Field] = f.Tag
	}
	if got["email"] != "email" || got["name"] != "max" || got["birth_date"] != "required" {
		t.Fatalf("unexpected violations: %#v", got)
	}
}

func TestStruct_OK(t *testing.T) {
	fields := Struct(sample{Email: "a@b.com", Name: "Milo", BirthDate: time.Now()})
	if len(fields) != 0 {
		t.Fatalf("expected no violations, got %#v", fields)
	}
}
