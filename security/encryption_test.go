package security

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/giantswarm/oauth-tokens/claims"
	"github.com/giantswarm/oauth-tokens/identity"
)

func testPrincipal() *identity.Principal {
	c := &claims.Set{}
	c.Add("role", "admin")
	c.Add("role", "user")
	c.Add("email", "u1@example.com")
	return identity.NewPrincipal("u1", "pwd", c)
}

func testCodecs(t *testing.T) map[string]TicketCodec {
	t.Helper()

	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	codecs := make(map[string]TicketCodec)
	for _, alg := range []string{"aes-gcm", "xchacha20-poly1305"} {
		c, err := NewTicketCodec(alg, key)
		if err != nil {
			t.Fatalf("NewTicketCodec(%q) error = %v", alg, err)
		}
		codecs[alg] = c
	}
	return codecs
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}

	if len(key) != KeySize {
		t.Errorf("GenerateKey() returned key of length %d, want %d", len(key), KeySize)
	}

	key2, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	if string(key) == string(key2) {
		t.Error("GenerateKey() returned identical keys")
	}
}

func TestNewTicketCodec_KeyLength(t *testing.T) {
	tests := []struct {
		name    string
		alg     string
		key     []byte
		wantErr bool
	}{
		{"aes valid", "aes-gcm", make([]byte, 32), false},
		{"aes default alg", "", make([]byte, 32), false},
		{"aes short key", "aes-gcm", make([]byte, 16), true},
		{"aes nil key", "aes-gcm", nil, true},
		{"xchacha valid", "xchacha20-poly1305", make([]byte, 32), false},
		{"xchacha long key", "xchacha20-poly1305", make([]byte, 64), true},
		{"unknown alg", "rot13", make([]byte, 32), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTicketCodec(tt.alg, tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewTicketCodec() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTicketCodec_RoundTrip(t *testing.T) {
	for name, codec := range testCodecs(t) {
		t.Run(name, func(t *testing.T) {
			p := testPrincipal()

			ticket, err := codec.Seal(p)
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}
			if strings.Contains(ticket, "u1@example.com") {
				t.Error("ticket contains plaintext claim")
			}

			got, err := codec.Open(ticket)
			if err != nil {
				t.Fatalf("Open() error = %v", err)
			}
			if got.Subject != p.Subject {
				t.Errorf("Subject = %q, want %q", got.Subject, p.Subject)
			}
			roles, err := got.Claims.Strings("role")
			if err != nil || len(roles) != 2 || roles[0] != "admin" || roles[1] != "user" {
				t.Errorf("roles = %v, %v; want [admin user]", roles, err)
			}
		})
	}
}

func TestTicketCodec_NonDeterministic(t *testing.T) {
	for name, codec := range testCodecs(t) {
		t.Run(name, func(t *testing.T) {
			a, _ := codec.Seal(testPrincipal())
			b, _ := codec.Seal(testPrincipal())
			if a == b {
				t.Error("two seals of the same principal produced the same ticket")
			}
		})
	}
}

func TestTicketCodec_Tampered(t *testing.T) {
	for name, codec := range testCodecs(t) {
		t.Run(name, func(t *testing.T) {
			ticket, err := codec.Seal(testPrincipal())
			if err != nil {
				t.Fatalf("Seal() error = %v", err)
			}

			raw, _ := base64.RawURLEncoding.DecodeString(ticket)
			raw[len(raw)-1] ^= 0xff
			tampered := base64.RawURLEncoding.EncodeToString(raw)

			cases := map[string]string{
				"flipped byte": tampered,
				"not base64":   "!!!not-base64!!!",
				"too short":    base64.RawURLEncoding.EncodeToString([]byte{0x01, 0x02}),
				"empty":        "",
			}
			for label, in := range cases {
				if _, err := codec.Open(in); !errors.Is(err, ErrInvalidTicket) {
					t.Errorf("%s: Open() error = %v, want ErrInvalidTicket", label, err)
				}
			}
		})
	}
}

func TestTicketCodec_WrongKeyOrScheme(t *testing.T) {
	key1, _ := GenerateKey()
	key2, _ := GenerateKey()

	aes1, _ := NewAESGCMCodec(key1)
	aes2, _ := NewAESGCMCodec(key2)
	xchacha1, _ := NewXChaChaCodec(key1)

	ticket, err := aes1.Seal(testPrincipal())
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	if _, err := aes2.Open(ticket); !errors.Is(err, ErrInvalidTicket) {
		t.Errorf("Open() with wrong key error = %v, want ErrInvalidTicket", err)
	}
	if _, err := xchacha1.Open(ticket); !errors.Is(err, ErrInvalidTicket) {
		t.Errorf("Open() with other scheme error = %v, want ErrInvalidTicket", err)
	}
}

func TestSeal_NilPrincipal(t *testing.T) {
	for name, codec := range testCodecs(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := codec.Seal(nil); err == nil {
				t.Error("Seal(nil) expected error")
			}
		})
	}
}

func TestKeyBase64RoundTrip(t *testing.T) {
	key, _ := GenerateKey()
	got, err := KeyFromBase64(KeyToBase64(key))
	if err != nil {
		t.Fatalf("KeyFromBase64() error = %v", err)
	}
	if string(got) != string(key) {
		t.Error("key changed after base64 round trip")
	}

	if _, err := KeyFromBase64(base64.StdEncoding.EncodeToString([]byte("short"))); err == nil {
		t.Error("KeyFromBase64() with short key expected error")
	}
	if _, err := KeyFromBase64("%%%"); err == nil {
		t.Error("KeyFromBase64() with invalid base64 expected error")
	}
}
