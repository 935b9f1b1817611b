package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/formsync/internal/models"
)

var startCmd = &cobra.Command{
	Use:   "start <project-id>",
	Short: "Sync a project in the foreground",
	Long: `Start marks the project as syncing and runs its sync loop until
interrupted. On Ctrl+C the task is stopped and the project paused.
Use "formsync serve" to run many projects in one process.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runForeground(cmd.Context(), args[0])
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <project-id>",
	Short: "Pause syncing a project",
	Long: `Stop pauses the project. A serve process syncing the project idles
its task at the next status check.`,
	Args: cobra.ExactArgs(1),
	RunE: runStop,
}

var statusCmd = &cobra.Command{
	Use:   "status [project-id]",
	Short: "Show sync status",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

var logsCmd = &cobra.Command{
	Use:   "logs <project-id>",
	Short: "Show recent sync history",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogs,
}

var syncOnceCmd = &cobra.Command{
	Use:   "sync-once <project-id>",
	Short: "Run a single sync cycle now",
	Args:  cobra.ExactArgs(1),
	RunE:  runSyncOnce,
}

var deleteCmd = &cobra.Command{
	Use:   "delete <project-id>",
	Short: "Remove a project with its status and history",
	Args:  cobra.ExactArgs(1),
	RunE:  runDelete,
}

var (
	logsLimit int
	deleteYes bool
)

func init() {
	rootCmd.AddCommand(startCmd, stopCmd, statusCmd, logsCmd, syncOnceCmd, deleteCmd)

	logsCmd.Flags().IntVarP(&logsLimit, "limit", "n", 0,
		"Number of entries (default: sync.log_limit)")
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false,
		"Do not ask for confirmation")
}

func runForeground(ctx context.Context, projectID string) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := apiClient.Sync.Start(ctx, projectID)
	if err != nil {
		return fail("Start failed", err)
	}

	if jsonOutput {
		printJSON(snap)
	} else {
		printSuccess("Syncing project %s every %s. Press Ctrl+C to stop.", projectID, cfg.Sync.Interval)
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap, err = apiClient.Sync.Stop(stopCtx, projectID)
	if err != nil {
		return fail("Stop failed", err)
	}

	if jsonOutput {
		printJSON(snap)
	} else {
		printWarning("Project %s %s", projectID, snap.Status)
	}
	return nil
}

func runStop(cmd *cobra.Command, args []string) error {
	snap, err := apiClient.Sync.Pause(cmd.Context(), args[0])
	if err != nil {
		return fail("Stop failed", err)
	}

	if jsonOutput {
		printJSON(snap)
	} else {
		printSuccess("Project %s %s", args[0], snap.Status)
	}
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var snaps []models.StatusSnapshot
	if len(args) == 1 {
		snap, err := apiClient.Sync.GetStatus(ctx, args[0])
		if err != nil {
			return fail("Status failed", err)
		}
		snaps = append(snaps, *snap)
	} else {
		all, err := apiClient.Sync.ListAllStatuses(ctx)
		if err != nil {
			return fail("Status failed", err)
		}
		snaps = all
	}

	if jsonOutput {
		printJSON(snaps)
		return nil
	}

	if len(snaps) == 0 {
		printInfo("No projects connected")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROJECT\tSTATUS\tACTIVE\tLAST SYNC\tNEXT SYNC")
	for _, s := range snaps {
		fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n",
			s.ProjectID, s.Status, s.IsActive, formatTime(s.LastSyncTime), formatTime(s.NextSyncTime))
	}
	return w.Flush()
}

func runLogs(cmd *cobra.Command, args []string) error {
	logs, err := apiClient.Sync.ListLogs(cmd.Context(), args[0], logsLimit)
	if err != nil {
		return fail("Logs failed", err)
	}

	if jsonOutput {
		printJSON(logs)
		return nil
	}

	if len(logs) == 0 {
		printInfo("No sync history for project %s", args[0])
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tRESULT\tFORMS\tSUBMISSIONS\tMESSAGE")
	for _, l := range logs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\n",
			l.SyncTime.Local().Format(time.DateTime), l.Status, l.FormsSynced, l.SubmissionsSynced, l.Message)
	}
	return w.Flush()
}

func runSyncOnce(cmd *cobra.Command, args []string) error {
	result, err := apiClient.Sync.SyncOnce(cmd.Context(), args[0])
	if err != nil {
		return fail("Sync failed", err)
	}

	if jsonOutput {
		formErrors := make(map[string]string, len(result.FormErrors))
		for _, fe := range result.FormErrors {
			formErrors[fe.FormID] = fe.Err.Error()
		}
		printJSON(map[string]interface{}{
			"success":            true,
			"forms_synced":       result.FormsSynced,
			"submissions_synced": result.SubmissionsSynced,
			"form_errors":        formErrors,
		})
		return nil
	}

	printSuccess("%s", result.Message())
	for _, fe := range result.FormErrors {
		printWarning("Form %s: %v", fe.FormID, fe.Err)
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	projectID := args[0]

	if !deleteYes && !jsonOutput {
		fmt.Fprintf(os.Stderr, "Delete project %s with its status and history? [y/N]: ", projectID)
		var answer string
		_, _ = fmt.Scanln(&answer)
		if answer != "y" && answer != "Y" {
			printInfo("Cancelled")
			return nil
		}
	}

	if err := apiClient.Sync.DeleteProject(cmd.Context(), projectID); err != nil {
		return fail("Delete failed", err)
	}

	if jsonOutput {
		printJSON(map[string]interface{}{"success": true, "project_id": projectID})
	} else {
		printSuccess("Deleted project %s", projectID)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
