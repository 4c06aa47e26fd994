package cmd

import (
	"context"
	"os"
	"os/signal"
	"strconv"

	"github.com/emrgen/linksync"
	"github.com/emrgen/linksync/internal/migration"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

var legacyCmd = &cobra.Command{
	Use:   "legacy",
	Short: "legacy library migration commands",
}

func init() {
	rootCmd.AddCommand(legacyCmd)
	legacyCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	legacyCmd.AddCommand(listLegacyCmd())
	legacyCmd.AddCommand(migrateLegacyCmd())
	legacyCmd.AddCommand(resumeLegacyCmd())
	legacyCmd.AddCommand(legacyStatusCmd())
}

func listLegacyCmd() *cobra.Command {
	var course string

	var required = []string{"course"}

	command := &cobra.Command{
		Use:   "list",
		Short: "list the legacy library references of a course",
		RunE: func(cmd *cobra.Command, args []string) error {
			if checkMissingFlags(cmd, required) {
				return nil
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			blocks, err := client.LegacyBlocks(cmd.Context(), course)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(blocks))
			for _, block := range blocks {
				rows = append(rows, []string{block.UsageKey})
			}
			printTable([]string{"Usage Key"}, rows)

			return nil
		},
	}

	command.Flags().StringVarP(&course, "course", "c", "", "course key (required)")

	return command
}

func migrateLegacyCmd() *cobra.Command {
	var course string
	var wait bool

	var required = []string{"course"}

	command := &cobra.Command{
		Use:     "migrate",
		Short:   "migrate the legacy library references of a course into links",
		Example: "linksync legacy migrate -c <course> --wait",
		RunE: func(cmd *cobra.Command, args []string) error {
			if checkMissingFlags(cmd, required) {
				return nil
			}

			notifications := migration.NewChannelNotifier(16)
			client, err := newClient(linksync.WithNotifier(notifications))
			if err != nil {
				return err
			}
			defer client.Close()

			task, err := client.Migrate(cmd.Context(), course)
			if err != nil {
				return err
			}
			printField("Task", task.UUID)

			if !wait {
				color.Green("migration submitted, follow it with: linksync legacy resume -c %s", course)
				return nil
			}

			return waitMigration(cmd.Context(), client, course, notifications)
		},
	}

	command.Flags().StringVarP(&course, "course", "c", "", "course key (required)")
	command.Flags().BoolVarP(&wait, "wait", "w", false, "wait for the migration to finish")

	return command
}

func resumeLegacyCmd() *cobra.Command {
	var course string

	var required = []string{"course"}

	command := &cobra.Command{
		Use:   "resume",
		Short: "wait for the remembered migration of a course",
		RunE: func(cmd *cobra.Command, args []string) error {
			if checkMissingFlags(cmd, required) {
				return nil
			}

			notifications := migration.NewChannelNotifier(16)
			client, err := newClient(linksync.WithNotifier(notifications))
			if err != nil {
				return err
			}
			defer client.Close()

			resumed, err := client.ResumeMigration(cmd.Context(), course)
			if err != nil {
				return err
			}
			if !resumed {
				color.Yellow("no migration to resume for %s", course)
				return nil
			}

			return waitMigration(cmd.Context(), client, course, notifications)
		},
	}

	command.Flags().StringVarP(&course, "course", "c", "", "course key (required)")

	return command
}

func legacyStatusCmd() *cobra.Command {
	var course string
	var taskID string

	var required = []string{"course", "task"}

	command := &cobra.Command{
		Use:   "status",
		Short: "show the state of a migration task",
		RunE: func(cmd *cobra.Command, args []string) error {
			if checkMissingFlags(cmd, required) {
				return nil
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			task, err := client.TaskStatus(cmd.Context(), course, taskID)
			if err != nil {
				return err
			}

			printTable([]string{"Task", "State", "Completed", "Total", "Error"}, [][]string{{
				task.UUID,
				task.StateText,
				strconv.Itoa(task.CompletedSteps),
				strconv.Itoa(task.TotalSteps),
				task.Error,
			}})

			return nil
		},
	}

	command.Flags().StringVarP(&course, "course", "c", "", "course key (required)")
	command.Flags().StringVarP(&taskID, "task", "t", "", "task uuid (required)")

	return command
}

// waitMigration prints notifications until the run ends or the user interrupts.
func waitMigration(ctx context.Context, client *linksync.Client, course string, notifications *migration.ChannelNotifier) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, unix.SIGTERM)
	defer stop()

	done := client.MigrationDone(course)
	for {
		select {
		case n := <-notifications.C():
			printNotification(n)
		case <-done:
			for len(notifications.C()) > 0 {
				printNotification(<-notifications.C())
			}
			return nil
		case <-ctx.Done():
			client.StopPolling(course)
			color.Yellow("stopped waiting, the migration keeps running")
			return nil
		}
	}
}

func printNotification(n linksync.Notification) {
	switch n.Kind {
	case migration.NotificationInProgress:
		color.Cyan("migration %s in progress", n.TaskUUID)
	case migration.NotificationSucceeded:
		color.Green("migration %s succeeded", n.TaskUUID)
	case migration.NotificationFailed, migration.NotificationSubmitFailed:
		color.Red("migration %s failed: %s", n.TaskUUID, n.Error)
	}
}
