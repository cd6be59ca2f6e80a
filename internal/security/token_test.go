package security

import (
	"net/url"
	"testing"
)

func TestGenerateTokenShape(t *testing.T) {
	g := NewResetTokenGenerator()

	token, err := g.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// 32 hex chars for the uuid half plus 43 base64url chars for 32
	// random bytes.
	if len(token) != 32+43 {
		t.Fatalf("expected token length 75, got %d (%q)", len(token), token)
	}
	if escaped := url.QueryEscape(token); escaped != token {
		t.Fatalf("token must be URL-safe, got %q", token)
	}
}

func TestGenerateTokenUniqueness(t *testing.T) {
	g := NewResetTokenGenerator()

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		token, err := g.Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if seen[token] {
			t.Fatalf("duplicate token generated: %q", token)
		}
		seen[token] = true
	}
}
