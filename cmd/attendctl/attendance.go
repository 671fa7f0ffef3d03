package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"face-attendance/internal/models"

	"github.com/spf13/cobra"
)

var (
	listDate    string
	listStudent string
)

var takeCmd = &cobra.Command{
	Use:   "take",
	Short: "Отметить посещаемость: распознать лицо перед камерой",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("🔍 Распознавание...")
		record, err := newClient().TakeAttendance(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("✅ Отмечен: %s (%s) в %s\n", record.Name, record.EnrollmentNo, record.Timestamp)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Показать отметки посещаемости",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		records, err := newClient().Attendance(cmd.Context(), listDate, listStudent)
		if err != nil {
			return err
		}
		printRecords(os.Stdout, records)
		return nil
	},
}

func printRecords(out io.Writer, records []models.AttendanceRecord) {
	if len(records) == 0 {
		fmt.Fprintln(out, "Отметок не найдено.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tROLL NO\tTIMESTAMP\tDATE")
	fmt.Fprintln(w, "--\t----\t-------\t---------\t----")
	for _, r := range records {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", r.ID, r.Name, r.EnrollmentNo, r.Timestamp, r.Date.Local().Format("2006-01-02 15:04"))
	}
	w.Flush()
}

func init() {
	listCmd.Flags().StringVar(&listDate, "date", "", "дата в формате YYYY-MM-DD")
	listCmd.Flags().StringVar(&listStudent, "student", "", "подстрока имени студента")

	attendanceCmd := &cobra.Command{
		Use:   "attendance",
		Short: "Посещаемость",
	}
	attendanceCmd.AddCommand(takeCmd, listCmd)
	rootCmd.AddCommand(attendanceCmd)
}
