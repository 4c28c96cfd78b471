package main

import (
	"fmt"

	"kryodeploy/pkg/cmdutil"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and print it with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		plan, err := cfg.DeployPlan()
		if err != nil {
			return err
		}
		steps, err := plan.Steps()
		if err != nil {
			return err
		}

		out, err := yaml.Marshal(cfg.Redacted())
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}

		w := cmd.OutOrStdout()
		if path := configPath(); path != "" && warnInsecureConfig(w, path) {
			fmt.Fprintf(w, "# %s\n", path)
		}
		fmt.Fprint(w, string(out))
		fmt.Fprintf(w, "\nDeploy steps (%s):\n", plan.Method)
		for _, step := range steps {
			fmt.Fprintf(w, "  %-12s %s\n", step.Name, cmdutil.FormatCommand(step.Command))
		}
		fmt.Fprintln(w, "\nConfiguration OK")
		return nil
	},
}
