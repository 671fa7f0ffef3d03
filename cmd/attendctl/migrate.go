package main

import (
	"fmt"

	"face-attendance/internal/app"
	"face-attendance/internal/repository"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Создать таблицы в базе данных",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		db, err := app.OpenDatabase(cmd.Context(), cfg.Database)
		if err != nil {
			return fmt.Errorf("подключение к БД: %w", err)
		}
		defer db.Close()

		if err := repository.NewRepository(db).Migrate(cmd.Context()); err != nil {
			return err
		}
		fmt.Printf("✅ Схема готова (%s, драйвер %s)\n", cfg.Database.DBName, cfg.Database.Driver)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
