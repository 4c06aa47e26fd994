package cmd

import (
	"github.com/emrgen/linksync/internal/server"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var port int

	command := &cobra.Command{
		Use:   "serve",
		Short: "serve the link endpoints from the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flag("port").Changed {
				cfg.Server.HTTPPort = port
			}
			return server.Start(cfg)
		},
	}

	command.Flags().IntVarP(&port, "port", "p", 4001, "http port")

	return command
}
