package cmd

import (
	"errors"
	"strconv"
	"time"

	"github.com/emrgen/linksync"
	"github.com/emrgen/linksync/internal/model"
	"github.com/emrgen/linksync/internal/service"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var linksCmd = &cobra.Command{
	Use:   "links",
	Short: "course link commands",
}

func init() {
	rootCmd.AddCommand(linksCmd)
	linksCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	linksCmd.AddCommand(listLinksCmd())
	linksCmd.AddCommand(linkSummaryCmd())
	linksCmd.AddCommand(acceptLinkCmd())
	linksCmd.AddCommand(declineLinkCmd())
	linksCmd.AddCommand(unlinkCmd())
}

func listLinksCmd() *cobra.Command {
	var course string
	var ready bool
	var upstreamKey string
	var itemType string

	var required = []string{"course"}

	command := &cobra.Command{
		Use:     "list",
		Short:   "list the links of a course",
		Example: "linksync links list -c <course> --ready",
		RunE: func(cmd *cobra.Command, args []string) error {
			if checkMissingFlags(cmd, required) {
				return nil
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			filter := linksync.Filter{
				UpstreamKey: upstreamKey,
				ItemType:    model.UpstreamType(itemType),
			}
			if cmd.Flag("ready").Changed {
				filter.ReadyToSync = &ready
			}

			links, err := client.Links(cmd.Context(), course, filter)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(links))
			for _, link := range links {
				rows = append(rows, []string{
					link.DownstreamUsageKey,
					link.UpstreamContextTitle,
					version(link.UpstreamVersion),
					version(link.VersionSynced),
					version(link.VersionDeclined),
					link.Status.String(),
				})
			}
			printTable([]string{"Usage Key", "Library", "Upstream", "Synced", "Declined", "Status"}, rows)

			return nil
		},
	}

	command.Flags().StringVarP(&course, "course", "c", "", "course key (required)")
	command.Flags().BoolVarP(&ready, "ready", "r", false, "only links with a newer upstream version")
	command.Flags().StringVar(&upstreamKey, "upstream", "", "upstream entity key")
	command.Flags().StringVar(&itemType, "type", "", "upstream type: component or container")

	command.Flags().SortFlags = false

	return command
}

func linkSummaryCmd() *cobra.Command {
	var course string

	var required = []string{"course"}

	command := &cobra.Command{
		Use:     "summary",
		Short:   "summarize the links of a course per library",
		Example: "linksync links summary -c <course>",
		RunE: func(cmd *cobra.Command, args []string) error {
			if checkMissingFlags(cmd, required) {
				return nil
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			summaries, err := client.Summaries(cmd.Context(), course)
			if err != nil {
				return err
			}

			rows := make([][]string, 0, len(summaries))
			for _, s := range summaries {
				published := "-"
				if s.LastPublishedAt != nil {
					published = s.LastPublishedAt.Format(time.RFC3339)
				}
				rows = append(rows, []string{
					s.UpstreamContextKey,
					s.UpstreamContextTitle,
					strconv.Itoa(s.ReadyToSyncCount),
					strconv.Itoa(s.TotalCount),
					published,
				})
			}
			printTable([]string{"Library", "Title", "Ready", "Total", "Last Published"}, rows)

			return nil
		},
	}

	command.Flags().StringVarP(&course, "course", "c", "", "course key (required)")

	return command
}

func acceptLinkCmd() *cobra.Command {
	var course string
	var usageKey string
	var force bool

	var required = []string{"course", "usage-key"}

	command := &cobra.Command{
		Use:     "accept",
		Short:   "bring a downstream copy up to date with its upstream",
		Example: "linksync links accept -c <course> -u <usage-key> --force",
		RunE: func(cmd *cobra.Command, args []string) error {
			if checkMissingFlags(cmd, required) {
				return nil
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			err = client.Accept(cmd.Context(), course, usageKey, linksync.AcceptOptions{OverwriteLocalChanges: force})
			if errors.Is(err, service.ErrLocalChangesConflict) {
				color.Yellow("%s has local changes that will be overwritten, rerun with --force to accept", usageKey)
				return nil
			}
			if errors.Is(err, model.ErrBrokenLink) {
				color.Red("the upstream of %s no longer exists, unlink it instead", usageKey)
				return nil
			}
			if err != nil {
				return err
			}

			color.Green("%s synced", usageKey)
			return nil
		},
	}

	command.Flags().StringVarP(&course, "course", "c", "", "course key (required)")
	command.Flags().StringVarP(&usageKey, "usage-key", "u", "", "downstream usage key (required)")
	command.Flags().BoolVarP(&force, "force", "f", false, "overwrite local changes")

	command.Flags().SortFlags = false

	return command
}

func declineLinkCmd() *cobra.Command {
	return linkMutationCmd("decline", "skip the current upstream version", "declined",
		func(client *linksync.Client, cmd *cobra.Command, course, usageKey string) error {
			return client.Decline(cmd.Context(), course, usageKey)
		})
}

func unlinkCmd() *cobra.Command {
	return linkMutationCmd("unlink", "detach a downstream copy from its upstream", "unlinked",
		func(client *linksync.Client, cmd *cobra.Command, course, usageKey string) error {
			return client.Unlink(cmd.Context(), course, usageKey)
		})
}

func linkMutationCmd(use, short, done string, mutate func(client *linksync.Client, cmd *cobra.Command, course, usageKey string) error) *cobra.Command {
	var course string
	var usageKey string

	var required = []string{"course", "usage-key"}

	command := &cobra.Command{
		Use:     use,
		Short:   short,
		Example: "linksync links " + use + " -c <course> -u <usage-key>",
		RunE: func(cmd *cobra.Command, args []string) error {
			if checkMissingFlags(cmd, required) {
				return nil
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			if err := mutate(client, cmd, course, usageKey); err != nil {
				return err
			}

			color.Green("%s %s", usageKey, done)
			return nil
		},
	}

	command.Flags().StringVarP(&course, "course", "c", "", "course key (required)")
	command.Flags().StringVarP(&usageKey, "usage-key", "u", "", "downstream usage key (required)")

	return command
}
