package security

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultAllowedCommands is the default set of executables a deploy step may invoke.
var DefaultAllowedCommands = map[string]bool{
	"git":            true,
	"npm":            true,
	"npx":            true,
	"yarn":           true,
	"pnpm":           true,
	"node":           true,
	"docker":         true,
	"docker-compose": true,
	"podman":         true,
	"pm2":            true,
	"systemctl":      true,
	"make":           true,
	"curl":           true,
	"sleep":          true,
}

// CommandPolicy validates configured deploy commands before they are ever run.
type CommandPolicy struct {
	// AllowedCommands is the map of executables that are permitted to run.
	AllowedCommands map[string]bool

	// AllowShellMetachars allows shell metacharacters in arguments.
	AllowShellMetachars bool
}

// NewCommandPolicy returns a policy using DefaultAllowedCommands plus extra.
func NewCommandPolicy(extra ...string) *CommandPolicy {
	allowed := make(map[string]bool, len(DefaultAllowedCommands)+len(extra))
	for cmd := range DefaultAllowedCommands {
		allowed[cmd] = true
	}
	for _, cmd := range extra {
		allowed[cmd] = true
	}
	return &CommandPolicy{AllowedCommands: allowed}
}

// Validate checks that the executable is allowed and that no argument
// carries shell syntax. Commands are run without a shell, so such
// arguments would be passed literally and are almost certainly a mistake.
func (p *CommandPolicy) Validate(cmdParts []string) error {
	if len(cmdParts) == 0 {
		return fmt.Errorf("empty command")
	}

	if !p.AllowedCommands[cmdParts[0]] {
		return fmt.Errorf("command not allowed: %s (must be one of: %s)",
			cmdParts[0], strings.Join(p.allowedList(), ", "))
	}

	if !p.AllowShellMetachars {
		for i, arg := range cmdParts[1:] {
			if containsShellMetachars(arg) {
				return fmt.Errorf("argument %d contains shell metacharacters: %s", i+1, arg)
			}
		}
	}

	return nil
}

func (p *CommandPolicy) allowedList() []string {
	commands := make([]string, 0, len(p.AllowedCommands))
	for cmd := range p.AllowedCommands {
		commands = append(commands, cmd)
	}
	sort.Strings(commands)
	return commands
}

// containsShellMetachars checks if a string contains shell metacharacters.
func containsShellMetachars(s string) bool {
	return strings.ContainsAny(s, ";|&$`\n<>(){}*?[]\\'\"")
}
