// Package config loads kryodeploy.yaml, applies environment overrides and
// validates the result before anything is started.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"kryodeploy/internal/deployment"
	"kryodeploy/internal/healthcheck"
	"kryodeploy/pkg/cmdutil"
	"kryodeploy/pkg/fileutil"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultFilename = "kryodeploy.yaml"

	DefaultService     = "kryonix-webhook"
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8082
	DefaultBranch      = "main"
	DefaultDBPath      = "/var/lib/kryodeploy/deploys.db"
	DefaultLogFile     = "/var/log/kryodeploy/kryodeploy.log"
	DefaultHealthDelay = 10 * time.Second
)

// Config is the whole service configuration, built once at startup and
// passed to every component.
type Config struct {
	Service string `yaml:"service" validate:"required"`
	Host    string `yaml:"host" validate:"required"`
	Port    int    `yaml:"port" validate:"min=1,max=65535"`

	// PublicURL is the externally reachable base URL of this service.
	PublicURL string `yaml:"public_url" validate:"omitempty,url"`

	Workdir string `yaml:"workdir" validate:"required"`

	// Branch is synced by manual deploys; Branches are accepted from webhooks.
	Branch   string   `yaml:"branch" validate:"required"`
	Branches []string `yaml:"branches" validate:"min=1,dive,required"`

	WebhookSecret string `yaml:"webhook_secret"`
	CronSecret    string `yaml:"cron_secret"`
	AllowUnsigned bool   `yaml:"allow_unsigned"`
	RequireEvent  bool   `yaml:"require_event"`

	Deploy  DeployConfig  `yaml:"deploy"`
	Health  HealthConfig  `yaml:"health"`
	Storage StorageConfig `yaml:"storage"`
	GitHub  GitHubConfig  `yaml:"github"`

	LogFile  string `yaml:"log_file"`
	TestMode bool   `yaml:"test_mode"`
}

type DeployConfig struct {
	Method string `yaml:"method" validate:"oneof=script inline"`
	Script string `yaml:"script" validate:"required_if=Method script"`

	// Each entry is a command string or an argv list.
	Install []interface{} `yaml:"install"`
	Build   []interface{} `yaml:"build"`
	Update  []interface{} `yaml:"update"`

	Timeout         time.Duration `yaml:"timeout" validate:"min=0"`
	AllowedCommands []string      `yaml:"allowed_commands"`
}

type HealthConfig struct {
	URL      string        `yaml:"url" validate:"omitempty,url"`
	Delay    time.Duration `yaml:"delay" validate:"min=0"`
	Attempts int           `yaml:"attempts" validate:"min=0,max=100"`
	Interval time.Duration `yaml:"interval" validate:"min=0"`
}

type StorageConfig struct {
	DBPath   string `yaml:"db_path"`
	LockFile string `yaml:"lock_file"`
}

type GitHubConfig struct {
	Token      string `yaml:"token"`
	Repository string `yaml:"repository"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Service:  DefaultService,
		Host:     DefaultHost,
		Port:     DefaultPort,
		Branch:   DefaultBranch,
		Branches: []string{"main", "master"},
		Deploy: DeployConfig{
			Method:  deployment.MethodInline,
			Timeout: deployment.DefaultTimeout,
		},
		Health: HealthConfig{
			Delay:    DefaultHealthDelay,
			Attempts: healthcheck.DefaultAttempts,
			Interval: healthcheck.DefaultInterval,
		},
		Storage: StorageConfig{
			DBPath: DefaultDBPath,
		},
		LogFile: DefaultLogFile,
	}
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	return LoadWithOverrides(path)
}

// LoadWithOverrides is Load with extra overrides (command-line flags)
// applied after the environment and before validation.
func LoadWithOverrides(path string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	for _, override := range overrides {
		override(cfg)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotenv loads the given .env files into the process environment.
// Missing files are skipped; variables already set are not overwritten.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if !fileutil.FileExists(p) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// FindConfigFile returns the first kryodeploy.yaml in the default search
// locations, or "" when there is none.
func FindConfigFile() string {
	return fileutil.SearchPathsOptional(fileutil.DefaultConfigPaths(DefaultFilename))
}

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("WEBHOOK_SECRET", &c.WebhookSecret)
	str("CRON_SECRET", &c.CronSecret)
	str("HOST", &c.Host)
	str("KRYODEPLOY_WORKDIR", &c.Workdir)
	str("KRYODEPLOY_DB_PATH", &c.Storage.DBPath)
	str("KRYODEPLOY_LOG_FILE", &c.LogFile)
	str("GITHUB_TOKEN", &c.GitHub.Token)

	if v, ok := lookup("PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Port = port
	}

	if v, ok := lookup("KRYODEPLOY_ALLOW_UNSIGNED"); ok && v != "" {
		allow, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid KRYODEPLOY_ALLOW_UNSIGNED %q: %w", v, err)
		}
		c.AllowUnsigned = allow
	}

	return nil
}

func (c *Config) applyDefaults() {
	// One shared secret serves both routes unless a separate one is set.
	if c.CronSecret == "" {
		c.CronSecret = c.WebhookSecret
	}
	if c.Storage.LockFile == "" && c.Storage.DBPath != "" {
		c.Storage.LockFile = c.Storage.DBPath + ".lock"
	}
	if c.Deploy.Timeout == 0 {
		c.Deploy.Timeout = deployment.DefaultTimeout
	}
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Secrets lists every configured secret, for redaction.
func (c *Config) Secrets() []string {
	var secrets []string
	for _, s := range []string{c.WebhookSecret, c.CronSecret, c.GitHub.Token} {
		if s != "" {
			secrets = append(secrets, s)
		}
	}
	return secrets
}

// Features names the optional capabilities that are switched on.
func (c *Config) Features() []string {
	features := []string{"webhook", "manual-deploy", "deploy-history", "metrics"}
	if c.WebhookSecret != "" {
		features = append(features, "signature-verification")
	}
	if c.Health.URL != "" {
		features = append(features, "health-probe")
	}
	if c.GitHub.Token != "" && c.GitHub.Repository != "" {
		features = append(features, "commit-status")
	}
	return features
}

// DeployPlan converts the deploy section into a deployment.Plan.
func (c *Config) DeployPlan() (deployment.Plan, error) {
	plan := deployment.Plan{
		Method:         c.Deploy.Method,
		HealthURL:      c.Health.URL,
		HealthDelay:    c.Health.Delay,
		HealthAttempts: c.Health.Attempts,
		HealthInterval: c.Health.Interval,
		Timeout:        c.Deploy.Timeout,
	}

	if c.Deploy.Method == deployment.MethodScript {
		script, err := cmdutil.ParseCommandString(c.Deploy.Script)
		if err != nil {
			return plan, fmt.Errorf("deploy.script: %w", err)
		}
		plan.Script = script
		return plan, nil
	}

	var err error
	if plan.Install, err = parseCommands("deploy.install", c.Deploy.Install); err != nil {
		return plan, err
	}
	if plan.Build, err = parseCommands("deploy.build", c.Deploy.Build); err != nil {
		return plan, err
	}
	if plan.Update, err = parseCommands("deploy.update", c.Deploy.Update); err != nil {
		return plan, err
	}
	return plan, nil
}

func parseCommands(field string, raw []interface{}) ([][]string, error) {
	commands := make([][]string, 0, len(raw))
	for i, entry := range raw {
		cmd, err := cmdutil.ParseCommand(entry)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", field, i, err)
		}
		commands = append(commands, cmd)
	}
	return commands, nil
}

// Redacted returns a copy safe to print.
func (c *Config) Redacted() Config {
	out := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return strings.Repeat("*", 8)
	}
	out.WebhookSecret = mask(c.WebhookSecret)
	out.CronSecret = mask(c.CronSecret)
	out.GitHub.Token = mask(c.GitHub.Token)
	return out
}
