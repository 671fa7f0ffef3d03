package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"face-attendance/internal/config"
	"face-attendance/internal/models"

	"github.com/google/uuid"
)

// BlobStore - хранилище сжатых образцов, адресуемых непрозрачным handle.
// Дедупликации, версий и автоочистки нет.
type BlobStore interface {
	// Put сохраняет поток целиком и только после этого возвращает handle
	Put(ctx context.Context, name string, r io.Reader) (models.BlobHandle, error)
	// Get возвращает поток; вызывающий обязан закрыть его
	Get(ctx context.Context, handle models.BlobHandle) (io.ReadCloser, error)
	// Delete удаляет осиротевший blob
	Delete(ctx context.Context, handle models.BlobHandle) error
}

var (
	// ErrBlobNotFound - blob по handle не существует
	ErrBlobNotFound = errors.New("blob не найден")
	// ErrInvalidHandle - handle не похож на выданный этим хранилищем
	ErrInvalidHandle = errors.New("некорректный handle")
)

// StoreError - ошибка ввода-вывода хранилища
type StoreError struct {
	Op     string
	Handle models.BlobHandle
	Err    error
}

func (e *StoreError) Error() string {
	if e.Handle == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Handle, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// New создает хранилище по конфигурации
func New(cfg config.StorageConfig) (BlobStore, error) {
	switch cfg.Backend {
	case config.StorageBackendDisk:
		return NewDiskStore(cfg.BlobDir)
	case config.StorageBackendS3:
		return NewS3Store(cfg.S3)
	default:
		return nil, fmt.Errorf("неизвестный бэкенд хранилища: %q", cfg.Backend)
	}
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// newHandle генерирует handle вида "<uuid>/<имя>".
// Имя нужно только для диагностики, уникальность дает uuid.
func newHandle(name string) models.BlobHandle {
	clean := unsafeNameChars.ReplaceAllString(name, "_")
	clean = strings.Trim(clean, "._")
	if clean == "" {
		clean = "blob"
	}
	return models.BlobHandle(uuid.New().String() + "/" + clean)
}

// splitHandle проверяет handle и возвращает его части
func splitHandle(handle models.BlobHandle) (id, name string, err error) {
	id, name, ok := strings.Cut(string(handle), "/")
	if !ok || name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", "", ErrInvalidHandle
	}
	if _, err := uuid.Parse(id); err != nil {
		return "", "", ErrInvalidHandle
	}
	return id, name, nil
}
