package security

import (
	"strings"
	"testing"
)

func TestValidateSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr bool
	}{
		{"strong random secret", "kJ8mN2pQ5tR7vX1zB4cE6gH9jL3nP8qS2uW5yA7bD0fG3hK6", false},
		{"base64-like secret", "dGhpcyBpcyBhIHZlcnkgbG9uZyBzZWNyZXQgd2l0aCBnb29k", false},
		{"too short", "kJ8mN2pQ5tR7vX1z", true},
		{"empty string", "", true},
		{"placeholder", "secret", true},
		{"contains replace", "replace-me-with-a-real-value-before-deploying-this-1", true},
		{"contains password", "my-Password-is-long-enough-for-the-length-check-9", true},
		{"low entropy", strings.Repeat("ab", 20), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSecret(tt.secret)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSecret(%q) error = %v, wantErr %v", tt.secret, err, tt.wantErr)
			}
		})
	}
}

func TestGenerateSecret(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10; i++ {
		secret, err := GenerateSecret()
		if err != nil {
			t.Fatalf("GenerateSecret() error = %v", err)
		}
		if len(secret) != 48 {
			t.Errorf("GenerateSecret() length = %d, want 48", len(secret))
		}
		if err := ValidateSecret(secret); err != nil {
			t.Errorf("generated secret failed validation: %v", err)
		}
		if seen[secret] {
			t.Error("GenerateSecret() produced a duplicate")
		}
		seen[secret] = true
	}
}

func TestSecretsEqual(t *testing.T) {
	tests := []struct {
		name     string
		expected string
		provided string
		want     bool
	}{
		{"match", "abc", "abc", true},
		{"mismatch", "abc", "abd", false},
		{"length mismatch", "abc", "abcd", false},
		{"empty expected never matches", "", "", false},
		{"empty provided", "abc", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SecretsEqual(tt.expected, tt.provided); got != tt.want {
				t.Errorf("SecretsEqual(%q, %q) = %v, want %v", tt.expected, tt.provided, got, tt.want)
			}
		})
	}
}

func TestCalculateEntropy(t *testing.T) {
	if got := calculateEntropy(""); got != 0 {
		t.Errorf("entropy of empty string = %v, want 0", got)
	}
	if got := calculateEntropy("aaaa"); got != 0 {
		t.Errorf("entropy of single repeated char = %v, want 0", got)
	}
	if got := calculateEntropy("ab"); got != 1 {
		t.Errorf("entropy of two distinct chars = %v, want 1", got)
	}
}
