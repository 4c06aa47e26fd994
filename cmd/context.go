package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/emrgen/linksync/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var contextCommand = &cobra.Command{
	Use:   "context",
	Short: "context commands",
}

func init() {
	contextCommand.AddCommand(setContextCommand())
	contextCommand.AddCommand(currentContextCommand())
	contextCommand.AddCommand(resetContextCommand())
}

// Context is the api endpoint and token saved in the user config file.
type Context struct {
	BaseURL string `mapstructure:"base_url"`
	Token   string `mapstructure:"token"`
}

// saves the context info to the config file in ~/.config/linksync
func setContextCommand() *cobra.Command {
	var ctx Context
	var required = []string{"url", "token"}

	command := &cobra.Command{
		Use:     "set",
		Short:   "set context",
		Example: "linksync context set --url <base-url> --token <token>",
		RunE: func(cmd *cobra.Command, args []string) error {
			if checkMissingFlags(cmd, required) {
				return nil
			}

			if err := writeContext(ctx); err != nil {
				return err
			}

			color.Green("context saved")
			return nil
		},
	}

	command.Flags().StringVar(&ctx.BaseURL, "url", "", "base url of the link endpoints (required)")
	command.Flags().StringVarP(&ctx.Token, "token", "t", "", "api token (required)")

	return command
}

func currentContextCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "current",
		Short: "current context",
		Run: func(cmd *cobra.Command, args []string) {
			printField("Url", cfg.API.BaseURL)
			if cfg.API.Token == "" {
				printField("Token", "")
			} else {
				printField("Token", "********")
			}
		},
	}

	return command
}

func resetContextCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "reset",
		Short: "reset context",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := contextFile()
			if err != nil {
				return err
			}

			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return err
			}

			color.Green("context reset")
			return nil
		},
	}

	return command
}

func contextFile() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "linksync", config.ConfigFileName+".yaml"), nil
}

func writeContext(ctx Context) error {
	path, err := contextFile()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	// keep the other settings of an existing file
	file := viper.New()
	file.SetConfigFile(path)
	if err := file.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error reading config file: %w", err)
	}

	file.Set("api.base_url", ctx.BaseURL)
	file.Set("api.token", ctx.Token)

	if err := file.WriteConfigAs(path); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}
