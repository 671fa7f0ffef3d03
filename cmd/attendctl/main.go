// attendctl - консольный клиент системы посещаемости.
// Добавление и отметка идут через сервер (камерой владеет он),
// восстановление набора лиц и миграции работают напрямую с БД.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"face-attendance/internal/config"
	"face-attendance/pkg/apiclient"

	"github.com/spf13/cobra"
)

// Version - версия CLI
const Version = "1.0.0"

var (
	serverURL string
	timeout   time.Duration
	debug     bool
)

var rootCmd = &cobra.Command{
	Use:           "attendctl",
	Short:         "Учет посещаемости по лицу: студенты, отметки, набор лиц",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("ATTENDANCE_SERVER", "http://localhost:5000"), "адрес сервера посещаемости")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 3*time.Minute, "таймаут запроса (должен покрывать работу воркера)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "подробный вывод")
}

// newClient создает HTTP клиент сервера
func newClient() *apiclient.Client {
	return apiclient.NewClient(serverURL, timeout)
}

// loadConfig загружает конфигурацию из окружения с учетом флагов CLI
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	if debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
