package main

import (
	"fmt"
	"time"

	"kryodeploy/internal/healthcheck"

	"github.com/spf13/cobra"
)

var healthcheckURL string

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Exit 0 when the local server answers /health",
	Long: `Probe the running server's /health endpoint once and exit non-zero when it
does not answer with 200. Intended for container and systemd health checks.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		url := healthcheckURL
		if url == "" {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			url = fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Port)
		}

		cmd.SilenceUsage = true
		if err := healthcheck.Probe(cmd.Context(), url, 1, time.Second); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "healthy")
		return nil
	},
}

func init() {
	healthcheckCmd.Flags().StringVar(&healthcheckURL, "url", "", "Health URL (defaults to the configured port on 127.0.0.1)")
}
