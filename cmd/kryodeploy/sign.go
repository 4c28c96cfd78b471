package main

import (
	"fmt"
	"io"
	"os"

	"kryodeploy/internal/webhook"

	"github.com/spf13/cobra"
)

var signSecret string

var signCmd = &cobra.Command{
	Use:   "sign [PAYLOAD_FILE]",
	Short: "Print the X-Hub-Signature-256 value for a payload",
	Long: `Print the X-Hub-Signature-256 header value GitHub would send for a payload,
for testing a deployment with curl. Reads stdin when no file is given.

Example:
  kryodeploy sign push.json
  curl -H "X-GitHub-Event: push" -H "Content-Type: application/json" \
       -H "X-Hub-Signature-256: $(kryodeploy sign push.json)" \
       --data-binary @push.json http://127.0.0.1:8082/webhook`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSign,
}

func init() {
	signCmd.Flags().StringVar(&signSecret, "secret", "", "Secret to sign with (defaults to the configured webhook secret)")
}

func runSign(cmd *cobra.Command, args []string) error {
	secret := signSecret
	if secret == "" {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		secret = cfg.WebhookSecret
	}
	if secret == "" {
		return fmt.Errorf("no webhook secret configured")
	}

	var payload []byte
	var err error
	if len(args) == 1 {
		payload, err = os.ReadFile(args[0])
	} else {
		payload, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), webhook.Sign(payload, secret))
	return nil
}
