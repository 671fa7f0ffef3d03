package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	Redis     RedisConfig
	Worker    WorkerConfig
	Rehydrate RehydrateConfig
	Debug     bool
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig - настройки базы данных
type DatabaseConfig struct {
	Driver   string // postgres (lib/pq) или pgx
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// Бэкенды хранилища blob'ов
const (
	StorageBackendDisk = "disk"
	StorageBackendS3   = "s3"
)

// StorageConfig - настройки хранилища образцов лиц
type StorageConfig struct {
	Backend string
	BlobDir string
	S3      S3Config
}

// S3Config - настройки S3 бакета (или совместимого: minio и т.п.)
type S3Config struct {
	Bucket    string
	Prefix    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// RedisConfig - настройки Redis
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Enabled  bool
}

// Политики доступа к камере при занятом устройстве
const (
	CameraPolicyQueue  = "queue"
	CameraPolicyReject = "reject"
)

// WorkerConfig - настройки внешних воркеров (скриптов распознавания)
type WorkerConfig struct {
	Interpreter     string // пусто - скрипт запускается как бинарник
	EnrollScript    string
	RecognizeScript string
	CascadePath     string
	Timeout         time.Duration // 0 - без ограничения
	CameraPolicy    string
}

// RehydrateConfig - настройки восстановления образцов
type RehydrateConfig struct {
	Workers  int
	CacheTTL time.Duration
}

// Load загружает конфигурацию из переменных окружения
// с fallback на значения по умолчанию
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "5000"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "attendance"),
			Password: getEnv("DB_PASSWORD", "attendance"),
			DBName:   getEnv("DB_NAME", "attendance"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Storage: StorageConfig{
			Backend: getEnv("STORAGE_BACKEND", StorageBackendDisk),
			BlobDir: getEnv("BLOB_DIR", "facedata"),
			S3: S3Config{
				Bucket:    getEnv("S3_BUCKET", ""),
				Prefix:    getEnv("S3_PREFIX", "faceData/"),
				Region:    getEnv("S3_REGION", "us-east-1"),
				Endpoint:  getEnv("S3_ENDPOINT", ""),
				AccessKey: getEnv("S3_ACCESS_KEY", ""),
				SecretKey: getEnv("S3_SECRET_KEY", ""),
			},
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			Enabled:  getEnvBool("REDIS_ENABLED", true),
		},
		Worker: WorkerConfig{
			Interpreter:     getEnv("WORKER_INTERPRETER", "python3"),
			EnrollScript:    getEnv("WORKER_ENROLL_SCRIPT", "Attendance/addFaceScript.py"),
			RecognizeScript: getEnv("WORKER_RECOGNIZE_SCRIPT", "Attendance/attendanceScript.py"),
			CascadePath:     getEnv("WORKER_CASCADE_PATH", "Attendance/haarcascade_frontalface_default.xml"),
			Timeout:         getEnvDuration("WORKER_TIMEOUT", 2*time.Minute),
			CameraPolicy:    getEnv("CAMERA_POLICY", CameraPolicyQueue),
		},
		Rehydrate: RehydrateConfig{
			Workers:  getEnvInt("REHYDRATE_WORKERS", 4),
			CacheTTL: getEnvDuration("FACESET_CACHE_TTL", 10*time.Minute),
		},
		Debug: getEnvBool("DEBUG", false),
	}
}

// Validate проверяет значения, которые нельзя исправить молча
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageBackendDisk:
		if c.Storage.BlobDir == "" {
			return fmt.Errorf("BLOB_DIR не задан")
		}
	case StorageBackendS3:
		if c.Storage.S3.Bucket == "" {
			return fmt.Errorf("S3_BUCKET обязателен для STORAGE_BACKEND=s3")
		}
	default:
		return fmt.Errorf("неизвестный STORAGE_BACKEND: %q", c.Storage.Backend)
	}

	switch c.Worker.CameraPolicy {
	case CameraPolicyQueue, CameraPolicyReject:
	default:
		return fmt.Errorf("неизвестный CAMERA_POLICY: %q", c.Worker.CameraPolicy)
	}

	switch c.Database.Driver {
	case "postgres", "pgx":
	default:
		return fmt.Errorf("неизвестный DB_DRIVER: %q", c.Database.Driver)
	}

	if c.Rehydrate.Workers < 1 {
		c.Rehydrate.Workers = 1
	}
	return nil
}

// GetDSN возвращает строку подключения к PostgreSQL
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// getEnv получает переменную окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает целочисленную переменную окружения
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvBool понимает true/false, 1/0, yes/no, on/off
func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return defaultValue
}

// getEnvDuration понимает "90s", "2m" и т.д.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
