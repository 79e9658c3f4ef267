package util

import "testing"

func TestSafeTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"shorter than limit", "c1", 8, "c1"},
		{"exactly the limit", "01234567", 8, "01234567"},
		{"uuid prefix", "3f2b8c1e-5d4a-4b6e-9f00-1a2b3c4d5e6f", 8, "3f2b8c1e"},
		{"empty", "", 8, ""},
		{"zero limit", "abc", 0, ""},
		{"negative limit", "abc", -1, ""},
		{"empty with negative limit", "", -1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeTruncate(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("SafeTruncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestEqualConstantTime(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"https://a/cb", "https://a/cb", true},
		{"https://a/cb", "https://a/cb/", false},
		{"https://a/cb", "https://b/cb", false},
		{"", "", true},
		{"c1", "", false},
	}

	for _, tt := range tests {
		if got := EqualConstantTime(tt.a, tt.b); got != tt.want {
			t.Errorf("EqualConstantTime(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}
