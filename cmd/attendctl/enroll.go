package main

import (
	"fmt"

	"face-attendance/internal/models"

	"github.com/spf13/cobra"
)

var enrollReplace bool

var enrollCmd = &cobra.Command{
	Use:   "enroll <name> <rollNo>",
	Short: "Добавить студента: сервер снимает лицо с камеры",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()
		if err := client.HealthCheck(cmd.Context()); err != nil {
			return err
		}

		fmt.Printf("📸 Смотрите в камеру: %s (%s)\n", args[0], args[1])
		resp, err := client.Enroll(cmd.Context(), models.EnrollRequest{
			Name:    args[0],
			RollNo:  args[1],
			Replace: enrollReplace,
		})
		if err != nil {
			return err
		}

		fmt.Printf("✅ Студент добавлен: #%d %s (%s)\n", resp.StudentID, resp.Student.Name, resp.Student.RollNo)
		return nil
	},
}

func init() {
	enrollCmd.Flags().BoolVar(&enrollReplace, "replace", false, "заменить биометрию существующего студента")
	rootCmd.AddCommand(enrollCmd)
}
