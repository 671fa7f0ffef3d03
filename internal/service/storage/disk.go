package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"face-attendance/internal/models"
)

// DiskStore хранит blob'ы в каталоге на диске: <dir>/<uuid>/<имя>
type DiskStore struct {
	dir string
}

// NewDiskStore создает файловое хранилище
func NewDiskStore(dir string) (*DiskStore, error) {
	// Создаем директорию если ее нет
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать %s: %w", dir, err)
	}
	return &DiskStore{dir: dir}, nil
}

// Put пишет во временный файл, делает fsync и переименовывает,
// так что читатель никогда не увидит недописанный blob
func (s *DiskStore) Put(ctx context.Context, name string, r io.Reader) (models.BlobHandle, error) {
	handle := newHandle(name)
	id, fileName, _ := splitHandle(handle)

	blobDir := filepath.Join(s.dir, id)
	if err := os.MkdirAll(blobDir, 0755); err != nil {
		return "", &StoreError{Op: "put", Handle: handle, Err: err}
	}

	tmp, err := os.CreateTemp(blobDir, ".upload-*")
	if err != nil {
		return "", &StoreError{Op: "put", Handle: handle, Err: err}
	}
	cleanup := func() {
		tmp.Close()
		os.Remove(tmp.Name())
		os.Remove(blobDir)
	}

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r}); err != nil {
		cleanup()
		return "", &StoreError{Op: "put", Handle: handle, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return "", &StoreError{Op: "put", Handle: handle, Err: err}
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return "", &StoreError{Op: "put", Handle: handle, Err: err}
	}
	if err := os.Rename(tmp.Name(), filepath.Join(blobDir, fileName)); err != nil {
		cleanup()
		return "", &StoreError{Op: "put", Handle: handle, Err: err}
	}

	return handle, nil
}

// Get открывает blob на чтение
func (s *DiskStore) Get(ctx context.Context, handle models.BlobHandle) (io.ReadCloser, error) {
	path, err := s.path(handle)
	if err != nil {
		return nil, &StoreError{Op: "get", Handle: handle, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, &StoreError{Op: "get", Handle: handle, Err: err}
	}

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &StoreError{Op: "get", Handle: handle, Err: ErrBlobNotFound}
	}
	if err != nil {
		return nil, &StoreError{Op: "get", Handle: handle, Err: err}
	}
	return file, nil
}

// Delete удаляет blob вместе с его каталогом
func (s *DiskStore) Delete(ctx context.Context, handle models.BlobHandle) error {
	path, err := s.path(handle)
	if err != nil {
		return &StoreError{Op: "delete", Handle: handle, Err: err}
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &StoreError{Op: "delete", Handle: handle, Err: ErrBlobNotFound}
		}
		return &StoreError{Op: "delete", Handle: handle, Err: err}
	}
	// Каталог uuid больше никому не нужен
	os.Remove(filepath.Dir(path))
	return nil
}

func (s *DiskStore) path(handle models.BlobHandle) (string, error) {
	id, name, err := splitHandle(handle)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, id, name), nil
}

// ctxReader прерывает копирование при отмене контекста
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
