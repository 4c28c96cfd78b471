package main

import (
	"fmt"
	"strings"

	"kryodeploy/internal/notify"

	"github.com/spf13/cobra"
)

var hookURL string

var registerHookCmd = &cobra.Command{
	Use:   "register-hook",
	Short: "Create the GitHub push webhook for the configured repository",
	Long: `Create a push webhook on github.repository that points at this service and
is signed with webhook_secret. Nothing is changed when a hook with the same
URL already exists.

Requires github.token (or GITHUB_TOKEN) with admin:repo_hook scope.`,
	Args: cobra.NoArgs,
	RunE: runRegisterHook,
}

func init() {
	registerHookCmd.Flags().StringVar(&hookURL, "url", "", "Webhook URL (defaults to public_url + /webhook)")
}

func runRegisterHook(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.GitHub.Token == "" || cfg.GitHub.Repository == "" {
		return fmt.Errorf("github.token and github.repository are required")
	}
	if cfg.WebhookSecret == "" {
		return fmt.Errorf("webhook_secret is required")
	}

	url := hookURL
	if url == "" {
		if cfg.PublicURL == "" {
			return fmt.Errorf("set public_url or pass --url")
		}
		url = strings.TrimRight(cfg.PublicURL, "/") + "/webhook"
	}

	reporter, err := notify.NewGitHubReporter(notify.NewGitHubClient(cfg.GitHub.Token), cfg.GitHub.Repository)
	if err != nil {
		return err
	}

	created, err := reporter.EnsureWebhook(cmd.Context(), url, cfg.WebhookSecret)
	if err != nil {
		return err
	}

	if created {
		fmt.Fprintf(cmd.OutOrStdout(), "Created webhook on %s -> %s\n", cfg.GitHub.Repository, url)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Webhook already exists on %s -> %s\n", cfg.GitHub.Repository, url)
	}
	return nil
}
