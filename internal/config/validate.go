package config

import (
	"errors"
	"fmt"
	"strings"

	"kryodeploy/internal/deployment"
	"kryodeploy/internal/notify"
	"kryodeploy/internal/security"
	"kryodeploy/pkg/fileutil"

	"github.com/go-playground/validator/v10"
)

// ValidationError collects every problem found in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration:\n  - " + strings.Join(e.Problems, "\n  - ")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints and the semantic rules that need the
// filesystem or the command policy.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("failed to validate configuration: %w", err)
		}
		for _, fe := range fieldErrs {
			problems = append(problems, messageFor(fe))
		}
	}

	if c.Service != "" {
		if err := security.ValidateTargetName(c.Service); err != nil {
			problems = append(problems, "service: "+err.Error())
		}
	}
	problems = append(problems, c.validateWorkdir()...)
	problems = append(problems, c.validateSecrets()...)
	problems = append(problems, c.validateBranches()...)
	problems = append(problems, c.validateCommands()...)

	if c.GitHub.Repository != "" {
		if _, _, err := notify.ParseRepository(c.GitHub.Repository); err != nil {
			problems = append(problems, "github.repository: "+err.Error())
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func (c *Config) validateWorkdir() []string {
	if c.Workdir == "" {
		return nil // reported by the struct tag
	}
	clean, err := security.SanitizePath(c.Workdir)
	if err != nil {
		return []string{"workdir: " + err.Error()}
	}
	if !c.TestMode && !fileutil.DirExists(clean) {
		return []string{fmt.Sprintf("workdir: directory does not exist: %s", clean)}
	}
	return nil
}

func (c *Config) validateSecrets() []string {
	var problems []string

	if c.WebhookSecret == "" {
		if !c.AllowUnsigned {
			problems = append(problems, "webhook_secret: required unless allow_unsigned is set")
		}
	} else if err := security.ValidateSecret(c.WebhookSecret); err != nil {
		problems = append(problems, "webhook_secret: "+err.Error())
	}

	if c.CronSecret != "" && c.CronSecret != c.WebhookSecret {
		if err := security.ValidateSecret(c.CronSecret); err != nil {
			problems = append(problems, "cron_secret: "+err.Error())
		}
	}

	return problems
}

func (c *Config) validateBranches() []string {
	var problems []string

	if c.Branch != "" {
		if err := security.ValidateBranchName(c.Branch); err != nil {
			problems = append(problems, "branch: "+err.Error())
		}
	}

	found := false
	for i, b := range c.Branches {
		if err := security.ValidateBranchName(b); err != nil {
			problems = append(problems, fmt.Sprintf("branches[%d]: %v", i, err))
		}
		if b == c.Branch {
			found = true
		}
	}
	if c.Branch != "" && len(c.Branches) > 0 && !found {
		problems = append(problems, fmt.Sprintf("branch: %q must be one of branches %v", c.Branch, c.Branches))
	}

	return problems
}

func (c *Config) validateCommands() []string {
	if c.Deploy.Method == deployment.MethodScript && c.Deploy.Script == "" {
		return nil // reported by the struct tag
	}

	plan, err := c.DeployPlan()
	if err != nil {
		return []string{err.Error()}
	}

	// The configured script is trusted by name; everything else must be
	// on the allow-list.
	var extra []string
	extra = append(extra, c.Deploy.AllowedCommands...)
	if len(plan.Script) > 0 {
		extra = append(extra, plan.Script[0])
	}
	policy := security.NewCommandPolicy(extra...)

	steps, err := plan.Steps()
	if err != nil {
		return []string{"deploy: " + err.Error()}
	}

	var problems []string
	for _, step := range steps {
		if err := policy.Validate(step.Command); err != nil {
			problems = append(problems, fmt.Sprintf("deploy.%s: %v", step.Name, err))
		}
	}
	return problems
}

func messageFor(fe validator.FieldError) string {
	field := fieldPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s: is required", field)
	case "required_if":
		return fmt.Sprintf("%s: is required when %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s: must be one of [%s], got %q", field, fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("%s: must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s: must be at most %s", field, fe.Param())
	case "url":
		return fmt.Sprintf("%s: must be a valid URL", field)
	}
	return fmt.Sprintf("%s: is invalid", field)
}

// fieldPath turns "Config.Deploy.Method" into "deploy.method".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = toSnake(p)
	}
	return strings.Join(parts, ".")
}

func toSnake(s string) string {
	switch s {
	case "GitHub":
		return "github"
	case "DBPath":
		return "db_path"
	case "URL":
		return "url"
	case "PublicURL":
		return "public_url"
	}

	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
