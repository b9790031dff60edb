// The migrate binary applies or rolls back the Postgres schema. The server
// never migrates on startup; deployments run this explicitly.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rescrv/brief-measure/internal/server/config"
	"github.com/rescrv/brief-measure/internal/server/repository/postgres"
)

func main() {
	root := &cobra.Command{
		Use:   "migrate",
		Short: "brief-measure schema migrations",
	}
	root.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := open()
			if err != nil {
				return err
			}
			defer repo.Close()
			if err := repo.MigrateUp(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back one migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := open()
			if err != nil {
				return err
			}
			defer repo.Close()
			if err := repo.MigrateDown(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "rolled back one migration")
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func open() (*postgres.Repository, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return postgres.New(cfg)
}
