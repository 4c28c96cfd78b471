package security

import (
	"strings"
	"testing"
)

func TestCommandPolicy_Validate(t *testing.T) {
	policy := NewCommandPolicy()

	tests := []struct {
		name    string
		cmd     []string
		wantErr string
	}{
		{"git fetch", []string{"git", "fetch", "--force", "origin", "main"}, ""},
		{"docker build", []string{"docker", "build", "-t", "kryonix/web:latest", "."}, ""},
		{"npm ci", []string{"npm", "ci", "--omit=dev"}, ""},
		{"empty", nil, "empty command"},
		{"not allowed", []string{"rm", "-rf", "/"}, "command not allowed"},
		{"semicolon", []string{"git", "pull;", "reboot"}, "shell metacharacters"},
		{"substitution", []string{"docker", "build", "$(whoami)"}, "shell metacharacters"},
		{"pipe", []string{"npm", "ci", "|", "tee"}, "shell metacharacters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Validate(tt.cmd)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate(%v) unexpected error: %v", tt.cmd, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate(%v) error = %v, want containing %q", tt.cmd, err, tt.wantErr)
			}
		})
	}
}

func TestCommandPolicy_Extra(t *testing.T) {
	policy := NewCommandPolicy("/opt/kryonix/deploy.sh")

	if err := policy.Validate([]string{"/opt/kryonix/deploy.sh"}); err != nil {
		t.Errorf("extra command should be allowed: %v", err)
	}

	// Extras must not leak into the shared default map.
	if DefaultAllowedCommands["/opt/kryonix/deploy.sh"] {
		t.Error("NewCommandPolicy mutated DefaultAllowedCommands")
	}
}

func TestCommandPolicy_AllowShellMetachars(t *testing.T) {
	policy := NewCommandPolicy()
	policy.AllowShellMetachars = true

	if err := policy.Validate([]string{"docker", "build", "--label", "a=b&c"}); err != nil {
		t.Errorf("metachars should be allowed when enabled: %v", err)
	}
}

func TestContainsShellMetachars(t *testing.T) {
	for _, s := range []string{";", "|", "&", "$HOME", "`id`", "a\nb", ">", "<", "(", "*", "?", "[", "\\", "'", "\""} {
		if !containsShellMetachars(s) {
			t.Errorf("containsShellMetachars(%q) = false, want true", s)
		}
	}
	for _, s := range []string{"main", "--omit=dev", "kryonix/web:latest", "origin/main", "-fd"} {
		if containsShellMetachars(s) {
			t.Errorf("containsShellMetachars(%q) = true, want false", s)
		}
	}
}
