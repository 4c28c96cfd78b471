package main

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"kryodeploy/internal/config"
	"kryodeploy/pkg/fileutil"
	"kryodeploy/pkg/templates"

	"github.com/spf13/cobra"
)

var (
	unitUser    string
	unitGroup   string
	unitDomain  string
	unitEnvFile string
)

var unitCmd = &cobra.Command{
	Use:   "unit",
	Short: "Print a systemd unit (or nginx site with --domain) for this configuration",
	Long: `Print a systemd unit that runs "kryodeploy serve" with the current
configuration. With --domain, print an nginx site proxying to the service
instead.

Templates in ./templates or /etc/kryodeploy/templates override the built-in ones.

Example:
  kryodeploy unit --user deploy > /etc/systemd/system/kryodeploy.service
  kryodeploy unit --domain deploy.example.com > /etc/nginx/sites-available/kryodeploy`,
	Args: cobra.NoArgs,
	RunE: runUnit,
}

func init() {
	unitCmd.Flags().StringVar(&unitUser, "user", "", "User to run as (defaults to the current user)")
	unitCmd.Flags().StringVar(&unitGroup, "group", "", "Group to run as (defaults to --user)")
	unitCmd.Flags().StringVar(&unitDomain, "domain", "", "Render an nginx site for this domain instead")
	unitCmd.Flags().StringVar(&unitEnvFile, "env-file", filepath.Join(fileutil.SystemConfigDir, "kryodeploy.env"), "Environment file holding secrets")
}

func runUnit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	var rendered string
	if unitDomain != "" {
		rendered, err = templates.RenderNginxSite(unitDomain, cfg.Port)
	} else {
		rendered, err = renderService(cfg)
	}
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), rendered)
	return nil
}

func renderService(cfg *config.Config) (string, error) {
	binary, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate kryodeploy binary: %w", err)
	}

	cfgPath := configPath()
	if cfgPath == "" {
		cfgPath = filepath.Join(fileutil.SystemConfigDir, config.DefaultFilename)
	}
	if abs, err := filepath.Abs(cfgPath); err == nil {
		cfgPath = abs
	}

	runAs := unitUser
	if runAs == "" {
		current, err := user.Current()
		if err != nil {
			return "", fmt.Errorf("failed to determine current user: %w", err)
		}
		runAs = current.Username
	}
	group := unitGroup
	if group == "" {
		group = runAs
	}

	return templates.RenderSystemdService(templates.ServiceOptions{
		Service:    cfg.Service,
		User:       runAs,
		Group:      group,
		Binary:     binary,
		ConfigFile: cfgPath,
		EnvFile:    unitEnvFile,
		Workdir:    cfg.Workdir,
		DBPath:     cfg.Storage.DBPath,
		LogFile:    cfg.LogFile,
	})
}
