package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"kryodeploy/internal/history"

	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history [DEPLOY_ID]",
	Short: "Show recent deploys, or one deploy with its log tail",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", history.DefaultListLimit, "Number of deploys to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := history.NewSQLite(cfg.Storage.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()

	if len(args) == 1 {
		task, err := store.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("deploy %s: %w", args[0], err)
		}
		fmt.Fprintf(out, "ID:        %s\n", task.ID)
		fmt.Fprintf(out, "Status:    %s\n", task.Status)
		fmt.Fprintf(out, "Trigger:   %s\n", task.Trigger)
		fmt.Fprintf(out, "Ref:       %s\n", task.Ref)
		fmt.Fprintf(out, "SHA:       %s (checked out %s)\n", task.SHA, task.HeadSHA)
		fmt.Fprintf(out, "Method:    %s\n", task.Method)
		fmt.Fprintf(out, "Started:   %s\n", task.StartedAt.Local().Format(time.DateTime))
		fmt.Fprintf(out, "Duration:  %s\n", task.Duration().Round(time.Second))
		if task.ExitCode != nil {
			fmt.Fprintf(out, "Exit code: %d\n", *task.ExitCode)
		}
		if task.Error != "" {
			fmt.Fprintf(out, "Error:     %s\n", task.Error)
		}
		if task.LogTail != "" {
			fmt.Fprintf(out, "\n%s\n", task.LogTail)
		}
		return nil
	}

	tasks, err := store.List(cmd.Context(), cfg.Service, historyLimit)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Fprintln(out, "No deploys recorded")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tTRIGGER\tREF\tSHA\tSTARTED\tDURATION")
	for _, task := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			task.ID,
			task.Status,
			task.Trigger,
			task.Ref,
			shortSHA(task.SHA),
			task.StartedAt.Local().Format(time.DateTime),
			task.Duration().Round(time.Second))
	}
	return tw.Flush()
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
