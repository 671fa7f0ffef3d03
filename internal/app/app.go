// Package app собирает сервисы из конфигурации: БД, хранилище, кэш,
// мост к воркерам и конвейеры. Используется сервером и CLI.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"face-attendance/internal/api/websocket"
	"face-attendance/internal/config"
	"face-attendance/internal/repository"
	"face-attendance/internal/service/cache"
	"face-attendance/internal/service/pipeline"
	"face-attendance/internal/service/storage"
	"face-attendance/pkg/workerbridge"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// maxForwardedLine - строки длиннее (например, финальный JSON с образцами) в websocket не уходят
const maxForwardedLine = 512

// App - собранные сервисы
type App struct {
	Config      *config.Config
	DB          *sqlx.DB
	Repo        *repository.Repository
	Blobs       storage.BlobStore
	Cache       *cache.Service // nil - работаем без кэша
	Bridge      *workerbridge.Bridge
	WS          *websocket.Manager
	Enrollment  *pipeline.Enrollment
	Recognition *pipeline.Recognition
	Rehydrator  *pipeline.Rehydrator
}

// New подключается ко всем зависимостям и собирает конвейеры
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	db, err := OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("подключение к БД: %w", err)
	}
	log.Println("✅ База данных подключена")

	repo := repository.NewRepository(db)
	if err := repo.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("миграция БД: %w", err)
	}

	blobs, err := storage.New(cfg.Storage)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("инициализация хранилища: %w", err)
	}
	log.Printf("✅ Хранилище образцов: %s", cfg.Storage.Backend)

	a := &App{
		Config: cfg,
		DB:     db,
		Repo:   repo,
		Blobs:  blobs,
		Cache:  OpenCache(ctx, cfg),
		WS:     websocket.NewManager(),
	}

	a.Bridge = NewBridge(cfg, a.forwardLine)
	for _, c := range []workerbridge.Command{EnrollCommand(cfg.Worker), RecognizeCommand(cfg.Worker)} {
		if err := a.Bridge.CheckExecutable(c); err != nil {
			log.Printf("⚠️  Предупреждение: %v", err)
		}
	}

	enrollOpts := pipeline.EnrollmentOptions{
		Command: EnrollCommand(cfg.Worker),
		Observer: func(ev pipeline.StageEvent) {
			a.WS.BroadcastEnrollmentStage(ev.RollNo, ev)
		},
	}
	recognizeOpts := pipeline.RecognitionOptions{
		Command:     RecognizeCommand(cfg.Worker),
		CascadePath: cfg.Worker.CascadePath,
	}
	rehydrateOpts := pipeline.RehydratorOptions{Workers: cfg.Rehydrate.Workers}
	if a.Cache != nil {
		enrollOpts.Cache = a.Cache
		recognizeOpts.Cache = a.Cache
		rehydrateOpts.Cache = a.Cache
	}

	a.Enrollment = pipeline.NewEnrollment(a.Bridge, blobs, repo, enrollOpts)
	a.Recognition = pipeline.NewRecognition(a.Bridge, repo, recognizeOpts)
	a.Rehydrator = pipeline.NewRehydrator(repo, blobs, rehydrateOpts)

	return a, nil
}

// Close закрывает соединения
func (a *App) Close() {
	if a.Cache != nil {
		a.Cache.Close()
	}
	a.DB.Close()
}

func (a *App) forwardLine(mode workerbridge.Mode, line string) {
	if !shouldForward(line) {
		return
	}
	a.WS.BroadcastWorkerOutput(mode.String(), line)
}

func shouldForward(line string) bool {
	return line != "" && len(line) <= maxForwardedLine
}

// OpenDatabase подключается к Postgres выбранным драйвером
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, cfg.Driver, cfg.GetDSN())
	if err != nil {
		return nil, err
	}

	// Настраиваем connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// OpenCache подключает Redis. Недоступный Redis не фатален: возвращается nil.
func OpenCache(ctx context.Context, cfg *config.Config) *cache.Service {
	if !cfg.Redis.Enabled {
		log.Println("ℹ️  Redis отключен (REDIS_ENABLED=false)")
		return nil
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	svc, err := cache.NewService(pingCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Rehydrate.CacheTTL)
	if err != nil {
		log.Printf("⚠️  Redis недоступен (работаем без кэша): %v", err)
		return nil
	}
	log.Println("✅ Redis кэш подключен")
	return svc
}

// NewBridge создает мост к воркерам с политикой камеры из конфигурации
func NewBridge(cfg *config.Config, onLine workerbridge.LineFunc) *workerbridge.Bridge {
	return workerbridge.New(workerbridge.Options{
		Camera:  workerbridge.NewCamera(cfg.Worker.CameraPolicy != config.CameraPolicyReject),
		Timeout: cfg.Worker.Timeout,
		OnLine:  onLine,
		Debug:   cfg.Debug,
	})
}

// EnrollCommand - команда воркера добавления
func EnrollCommand(cfg config.WorkerConfig) workerbridge.Command {
	return workerbridge.Command{Interpreter: cfg.Interpreter, Script: cfg.EnrollScript}
}

// RecognizeCommand - команда воркера распознавания
func RecognizeCommand(cfg config.WorkerConfig) workerbridge.Command {
	return workerbridge.Command{Interpreter: cfg.Interpreter, Script: cfg.RecognizeScript}
}
