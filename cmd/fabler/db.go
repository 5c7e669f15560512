package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/fabler/fabler/internal/config"
	"github.com/fabler/fabler/internal/db"
	"github.com/fabler/fabler/internal/models"
)

func newDBCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Room database management commands",
	}

	cmd.AddCommand(newDBMigrateCmd())
	cmd.AddCommand(newDBStatusCmd())
	return cmd
}

func newDBMigrateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or migrate the room database",
		Long:  "Creates the sqlite file for the configured room, migrates all tables, and seeds the narrator user and the first game epoch.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBMigrate(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "fabler.yaml", "path to Fabler config file")
	return cmd
}

func runDBMigrate(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	dbPath := db.RoomPath(cfg.DataDir, roomIDFor(cfg))

	gdb, err := db.Open(dbPath)
	if err != nil {
		return err
	}
	if err := db.Setup(gdb); err != nil {
		return err
	}

	version, err := db.Version(gdb)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Migrated %d tables in %s (schema version %d)\n",
		len(db.AllModels()), dbPath, version)
	return nil
}

func newDBStatusCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show room database status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDBStatus(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "fabler.yaml", "path to Fabler config file")
	return cmd
}

func runDBStatus(cmd *cobra.Command, configPath string) error {
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	dbPath := db.RoomPath(cfg.DataDir, roomIDFor(cfg))

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Fprintf(out, "Room database %s does not exist. Run `fabler db migrate` first.\n", dbPath)
		return nil
	}

	gdb, err := db.Open(dbPath)
	if err != nil {
		return err
	}

	version, err := db.Version(gdb)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Room database: %s\n", dbPath)
	fmt.Fprintf(out, "Schema version: %d\n", version)
	fmt.Fprintf(out, "Games:    %d\n", rowCount(gdb, &models.Game{}))
	fmt.Fprintf(out, "Users:    %d\n", rowCount(gdb, &models.User{}))
	fmt.Fprintf(out, "Messages: %d\n", rowCount(gdb, &models.Message{}))
	return nil
}

func rowCount(gdb *gorm.DB, model interface{}) int64 {
	var count int64
	gdb.Model(model).Count(&count)
	return count
}
