package identity

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/giantswarm/oauth-tokens/claims"
)

func TestTicketRoundTrip(t *testing.T) {
	c := &claims.Set{}
	c.Add("role", "admin")
	c.Add("email", "u1@example.com")
	c.Add("role", "user")
	c.Add("level", 3)

	p := NewPrincipal("u1", "pwd", c)

	data, err := MarshalTicket(p)
	if err != nil {
		t.Fatalf("MarshalTicket() error = %v", err)
	}

	got, err := UnmarshalTicket(data)
	if err != nil {
		t.Fatalf("UnmarshalTicket() error = %v", err)
	}

	if got.Subject != "u1" {
		t.Errorf("Subject = %q, want u1", got.Subject)
	}
	if got.AuthenticationType != "pwd" {
		t.Errorf("AuthenticationType = %q, want pwd", got.AuthenticationType)
	}

	want := []claims.Claim{
		{Key: "role", Value: "admin"},
		{Key: "email", Value: "u1@example.com"},
		{Key: "role", Value: "user"},
		{Key: "level", Value: json.Number("3")},
	}
	gotClaims := got.Claims.Claims()
	if len(gotClaims) != len(want) {
		t.Fatalf("claims = %v, want %v", gotClaims, want)
	}
	for i := range want {
		if gotClaims[i] != want[i] {
			t.Errorf("claim[%d] = %v, want %v", i, gotClaims[i], want[i])
		}
	}
}

func TestUnmarshalTicket_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", "not-json"},
		{"missing subject", `{"claims":[]}`},
		{"wrong shape", `{"sub":"u1","claims":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := UnmarshalTicket([]byte(tt.data)); err == nil {
				t.Error("UnmarshalTicket() expected error")
			}
		})
	}
}

func TestMarshalTicket_Nil(t *testing.T) {
	if _, err := MarshalTicket(nil); err == nil {
		t.Error("MarshalTicket(nil) expected error")
	}
}

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	d := NewDirectory(NewPrincipal("u1", "", nil))

	p, err := d.FindPrincipalBySubject(ctx, "u1")
	if err != nil {
		t.Fatalf("FindPrincipalBySubject() error = %v", err)
	}
	if p.Subject != "u1" {
		t.Errorf("Subject = %q, want u1", p.Subject)
	}

	// Mutating the returned copy must not leak into the directory.
	p.Claims.Add("x", 1)
	again, _ := d.FindPrincipalBySubject(ctx, "u1")
	if again.Claims.Len() != 0 {
		t.Errorf("stored principal was mutated: %d claims", again.Claims.Len())
	}

	d.Remove("u1")
	if _, err := d.FindPrincipalBySubject(ctx, "u1"); !errors.Is(err, ErrPrincipalNotFound) {
		t.Errorf("error = %v, want ErrPrincipalNotFound", err)
	}
}

func TestTicketRoundTrip_TypedClaims(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"int", 3},
		{"int64", int64(1 << 53)},
		{"float", 1.5},
		{"bool", true},
		{"string slice", []string{"a", "b"}},
		{"string", "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &claims.Set{}
			c.Add("v", tt.value)
			p := NewPrincipal("u1", "pwd", c)

			data, err := MarshalTicket(p)
			if err != nil {
				t.Fatalf("MarshalTicket() error = %v", err)
			}
			got, err := UnmarshalTicket(data)
			if err != nil {
				t.Fatalf("UnmarshalTicket() error = %v", err)
			}
			if !p.Equal(got) {
				t.Errorf("round trip changed principal: %v -> %v", p.Claims.Claims(), got.Claims.Claims())
			}
		})
	}
}

func TestPrincipal_Equal(t *testing.T) {
	a := NewPrincipal("u1", "pwd", nil)
	if !a.Equal(NewPrincipal("u1", "pwd", &claims.Set{})) {
		t.Error("nil and empty claim sets should be equal")
	}
	if a.Equal(NewPrincipal("u2", "pwd", nil)) {
		t.Error("different subjects should not be equal")
	}
	if a.Equal(NewPrincipal("u1", "otp", nil)) {
		t.Error("different authentication types should not be equal")
	}
	if a.Equal(nil) {
		t.Error("principal should not equal nil")
	}
}
