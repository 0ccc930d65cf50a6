package jwtauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"vet-appointments/internal/ports/auth"
)

func TestVerifier_RoundTrip(t *testing.T) {
	v := NewVerifier("s3cret", "vet-appointments")

	token, err := v.Sign(auth.Claims{UserID: "google-1", Email: "ana@mail.test", Name: "Ana"}, time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, err := v.Verify(context.Background(), "  "+token+" ")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.UserID != "google-1" || got.Email != "ana@mail.test" || got.Name != "Ana" {
		t.Fatalf("unexpected claims %+v", got)
	}
}

func TestVerifier_Rejects(t *testing.T) {
	v := NewVerifier("s3cret", "vet-appointments")
	ctx := context.Background()

	other, _ := NewVerifier("other", "vet-appointments").Sign(auth.Claims{UserID: "u"}, time.Hour)
	expired, _ := v.Sign(auth.Claims{UserID: "u"}, -time.Minute)
	wrongIssuer, _ := NewVerifier("s3cret", "someone-else").Sign(auth.Claims{UserID: "u"}, time.Hour)
	noSubject, _ := v.Sign(auth.Claims{}, time.Hour)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]string{
		"empty":        "",
		"garbage":      "not-a-token",
		"other secret": other,
		"expired":      expired,
		"wrong issuer": wrongIssuer,
		"no subject":   noSubject,
		"alg none":     none,
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := v.Verify(ctx, token); err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}

	if _, err := v.Verify(ctx, ""); !errors.Is(err, ErrTokenEmpty) {
		t.Fatalf("expected ErrTokenEmpty, got %v", err)
	}
	if _, err := NewVerifier("", "").Verify(ctx, "x"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
