package cmd

import (
	"os"

	"github.com/emrgen/linksync"
	"github.com/emrgen/linksync/internal/config"
	"github.com/spf13/cobra"
)

var (
	v   = config.New()
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "linksync",
	Short: "keep course content in sync with upstream libraries",
	Example: `linksync links list -c <course>
linksync links summary -c <course>
linksync links accept -c <course> -u <usage-key> --force
linksync links decline -c <course> -u <usage-key>
linksync links unlink -c <course> -u <usage-key>
linksync alert show -c <course>
linksync legacy migrate -c <course> --wait
linksync serve`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(v); err != nil {
			return err
		}
		return config.SetupLogger(cfg.Log)
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(contextCommand)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(serveCmd())
	rootCmd.SetHelpCommand(&cobra.Command{Use: "no-help", Hidden: true})

	rootCmd.PersistentFlags().String("api", "", "base url of the link endpoints")
	rootCmd.PersistentFlags().String("log-level", "", "log level")
	_ = v.BindPFlag("api.base_url", rootCmd.PersistentFlags().Lookup("api"))
	_ = v.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	cobra.EnableCommandSorting = false
}

func newClient(opts ...linksync.Option) (*linksync.Client, error) {
	return linksync.NewClient(cfg, opts...)
}
