package cmd

import (
	"github.com/emrgen/linksync/internal/model"
	"github.com/emrgen/linksync/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "db commands",
}

func init() {
	dbCmd.AddCommand(Migrate())
}

func Migrate() *cobra.Command {
	command := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := store.Open(cfg.DB.Driver, cfg.DB.DSN)
			if err != nil {
				return err
			}

			if err := model.Migrate(db); err != nil {
				return err
			}

			logrus.Infof("migrated %s database", cfg.DB.Driver)
			return nil
		},
	}

	return command
}
