package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"kryodeploy/internal/config"
	"kryodeploy/internal/security"
	"kryodeploy/pkg/fileutil"

	"github.com/spf13/cobra"
)

var version = "dev" // Will be set during build

var configFile string

var rootCmd = &cobra.Command{
	Use:   "kryodeploy",
	Short: "GitHub push-to-deploy webhook service",
	Long: `Kryodeploy receives GitHub push webhooks for a single service, verifies them
and runs the configured deploy in the background, one at a time.

Pushes to main or master sync the working tree to the pushed branch and run
either a deploy script or the inline install, build and update commands.`,
	Version: version,
}

// Custom usage template that encourages 'help' subcommand pattern
const usageTemplate = `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{.CommandPath}} [command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}

Available Commands:{{range $cmds}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{else}}{{range $group := .Groups}}

{{.Title}}{{range $cmds}}{{if (and (eq .GroupID $group.ID) (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if not .AllChildCommandsHaveGroup}}

Additional Commands:{{range $cmds}}{{if (and (eq .GroupID "") (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} help [command]" for more information about a command.{{end}}
`

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Set custom usage template to encourage 'help' subcommand pattern
	rootCmd.SetUsageTemplate(usageTemplate)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", getEnvOrDefault("KRYODEPLOY_CONFIG_FILE", ""), "Path to kryodeploy.yaml")

	// Register subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(secretCmd)
	rootCmd.AddCommand(registerHookCmd)
	rootCmd.AddCommand(unitCmd)
	rootCmd.AddCommand(healthcheckCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads .env, locates the config file and applies overrides.
func loadConfig(overrides ...func(*config.Config)) (*config.Config, error) {
	if err := config.LoadDotenv(); err != nil {
		return nil, err
	}

	path := configPath()
	cfg, err := config.LoadWithOverrides(path, overrides...)
	if err != nil {
		if path == "" {
			return nil, fmt.Errorf("%w (no %s found in %s)", err, config.DefaultFilename,
				strings.Join(fileutil.DefaultConfigPaths(config.DefaultFilename), ", "))
		}
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if path != "" {
		warnInsecureConfig(os.Stderr, path)
	}
	return cfg, nil
}

// configPath returns the --config value or the first config file found.
func configPath() string {
	if configFile != "" {
		return configFile
	}
	return config.FindConfigFile()
}

// warnInsecureConfig reports a config file that others can read or write.
// It returns false when a warning was written.
func warnInsecureConfig(w io.Writer, path string) bool {
	if err := security.ValidateSecurePermissions(path); err != nil {
		fmt.Fprintf(w, "Warning: %v (chmod %04o %s)\n", err, security.PermConfigFile, path)
		return false
	}
	return true
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
