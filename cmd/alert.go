package cmd

import (
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "out of sync notice commands",
}

func init() {
	rootCmd.AddCommand(alertCmd)
	alertCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})
	alertCmd.AddCommand(showAlertCmd())
	alertCmd.AddCommand(dismissAlertCmd())
}

func showAlertCmd() *cobra.Command {
	var course string

	var required = []string{"course"}

	command := &cobra.Command{
		Use:   "show",
		Short: "show the out of sync notice of a course",
		RunE: func(cmd *cobra.Command, args []string) error {
			if checkMissingFlags(cmd, required) {
				return nil
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			state, err := client.AlertState(cmd.Context(), course)
			if err != nil {
				return err
			}

			if !state.Visible {
				printField("Ready to sync", strconv.Itoa(state.Count))
				return nil
			}

			color.Yellow("%d linked blocks have upstream updates", state.Count)
			return nil
		},
	}

	command.Flags().StringVarP(&course, "course", "c", "", "course key (required)")

	return command
}

func dismissAlertCmd() *cobra.Command {
	var course string

	var required = []string{"course"}

	command := &cobra.Command{
		Use:   "dismiss",
		Short: "hide the notice until the ready count changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			if checkMissingFlags(cmd, required) {
				return nil
			}

			client, err := newClient()
			if err != nil {
				return err
			}
			defer client.Close()

			state, err := client.DismissAlert(cmd.Context(), course)
			if err != nil {
				return err
			}

			color.Green("notice dismissed at %d", state.Count)
			return nil
		},
	}

	command.Flags().StringVarP(&course, "course", "c", "", "course key (required)")

	return command
}
