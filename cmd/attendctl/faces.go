package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"face-attendance/internal/app"
	"face-attendance/internal/models"
	"face-attendance/internal/repository"
	"face-attendance/internal/service/pipeline"
	"face-attendance/internal/service/storage"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var (
	facesOut     string
	facesWorkers int
)

var facesCmd = &cobra.Command{
	Use:   "faces",
	Short: "Восстановить набор лиц из хранилища и проверить образцы",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if facesWorkers > 0 {
			cfg.Rehydrate.Workers = facesWorkers
		}

		db, err := app.OpenDatabase(cmd.Context(), cfg.Database)
		if err != nil {
			return fmt.Errorf("подключение к БД: %w", err)
		}
		defer db.Close()

		blobs, err := storage.New(cfg.Storage)
		if err != nil {
			return err
		}

		var bar *progressbar.ProgressBar
		rehydrator := pipeline.NewRehydrator(repository.NewRepository(db), blobs, pipeline.RehydratorOptions{
			Workers: cfg.Rehydrate.Workers,
			Progress: func(done, total int) {
				if bar == nil {
					bar = progressbar.NewOptions(total,
						progressbar.OptionSetDescription("🧩 Восстановление образцов"),
						progressbar.OptionSetWriter(os.Stderr),
						progressbar.OptionShowCount(),
					)
				}
				bar.Set(done)
			},
		})

		set, err := rehydrator.Load(cmd.Context())
		if bar != nil {
			bar.Finish()
			fmt.Fprintln(os.Stderr)
		}
		if err != nil {
			return err
		}

		printFaceSet(os.Stdout, set)

		if facesOut != "" {
			return writeFaceSet(facesOut, set)
		}
		return nil
	},
}

func printFaceSet(out io.Writer, set *models.FaceSet) {
	fmt.Fprintf(out, "✅ Образцов: %d, пропущено: %d\n", set.Len(), len(set.Skipped))
	if len(set.Skipped) == 0 {
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ROLL NO\tREASON")
	fmt.Fprintln(w, "-------\t------")
	for _, s := range set.Skipped {
		fmt.Fprintf(w, "%s\t%s\n", s.RollNo, s.Reason)
	}
	w.Flush()
}

// writeFaceSet сохраняет набор в формате ответа /api/attendance/faces
func writeFaceSet(path string, set *models.FaceSet) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(models.FaceSetResponse{Success: true, FaceSet: *set}); err != nil {
		return fmt.Errorf("запись %s: %w", path, err)
	}
	fmt.Printf("💾 Набор сохранен в %s\n", path)
	return nil
}

func init() {
	facesCmd.Flags().StringVarP(&facesOut, "out", "o", "", "сохранить набор в JSON файл")
	facesCmd.Flags().IntVar(&facesWorkers, "workers", 0, "число параллельных загрузок (по умолчанию REHYDRATE_WORKERS)")
	rootCmd.AddCommand(facesCmd)
}
