package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"face-attendance/internal/api/handlers"
	"face-attendance/internal/api/middleware"
	"face-attendance/internal/api/websocket"
	"face-attendance/internal/app"
	"face-attendance/internal/config"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

func main() {
	// ASCII баннер
	printBanner()

	// Загружаем конфигурацию
	cfg := config.Load()
	log.Println("✅ Конфигурация загружена")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// БД, хранилище, кэш, мост к воркерам и конвейеры
	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Ошибка инициализации: %v\n", err)
	}
	defer a.Close()

	// Запускаем WebSocket manager в отдельной горутине
	go a.WS.Run(ctx)
	log.Println("✅ WebSocket manager запущен")

	// Кэш передаем только если он подключен
	handler := handlers.NewHandler(a.Repo, a.Blobs, a.Enrollment, a.Recognition, a.Rehydrator, a.Cache, a.WS)

	// Создаем роутер
	router := setupRouter(handler, a.WS, cfg)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	log.Println("🎉 Сервер успешно запущен!")
	log.Printf("📡 API: http://localhost:%s/api\n", cfg.Server.Port)
	log.Printf("🔌 WebSocket: ws://localhost:%s/ws\n", cfg.Server.Port)
	log.Printf("📷 Политика камеры: %s, таймаут воркера: %s\n", cfg.Worker.CameraPolicy, cfg.Worker.Timeout)
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("❌ Ошибка запуска сервера: %v\n", err)
		}
	}()

	<-ctx.Done()
	log.Println("🛑 Остановка сервера...")

	// Воркер может еще снимать кадры, даем ему закончить
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.Timeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️  Ошибка остановки сервера: %v\n", err)
	}
	log.Println("👋 Сервер остановлен")
}

// setupRouter настраивает роутер с middleware и endpoints
func setupRouter(handler *handlers.Handler, wsManager *websocket.Manager, cfg *config.Config) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())
	// Сжатый образец отдаем как есть, websocket не трогаем
	router.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPathsRegexs([]string{
		`^/api/students/[^/]+/face$`,
		`^/api/attendance/get-face/`,
		`^/ws`,
	})))

	// WebSocket endpoint
	wsHandler := websocket.NewHandler(wsManager)
	router.GET("/ws", wsHandler.HandleWebSocket)

	// API группа
	api := router.Group("/api")
	{
		// Студенты
		api.POST("/students", handler.HandleEnroll)
		api.GET("/students", handler.HandleGetStudents)
		api.GET("/students/:rollNo", handler.HandleGetStudent)
		api.GET("/students/:rollNo/face", handler.HandleGetStudentFace)
		api.DELETE("/students/:rollNo", handler.HandleDeleteStudent)

		// Посещаемость
		api.POST("/attendance/take", handler.HandleTakeAttendance)
		api.GET("/attendance", handler.HandleGetAttendance)
		api.GET("/attendance/faces", handler.HandleGetFaces)

		// Адреса, которые запрашивает воркер распознавания
		api.GET("/attendance/get-faces", handler.HandleGetFaces)
		api.GET("/attendance/get-face/:rollNo", handler.HandleGetStudentFace)

		// Статистика
		api.GET("/stats", handler.HandleGetStats)
	}

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "face-attendance-api",
			"version": "1.0.0",
		})
	})

	return router
}

// printBanner печатает баннер при старте
func printBanner() {
	banner := `
╔═══════════════════════════════════════════════════════╗
║                                                       ║
║   📋  FACE ATTENDANCE SYSTEM                          ║
║                                                       ║
║   Учет посещаемости по лицу:                          ║
║   добавление студентов и отметка с камеры            ║
║                                                       ║
║   Версия: 1.0.0                                       ║
║                                                       ║
╚═══════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
	log.Println("🚀 Инициализация сервисов...")
}
