package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"face-attendance/internal/models"
	"face-attendance/pkg/workerbridge"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockInvoker - мок моста к воркеру
type MockInvoker struct {
	mock.Mock
}

func (m *MockInvoker) Invoke(ctx context.Context, mode workerbridge.Mode, path string, args ...string) workerbridge.Result {
	a := m.Called(mode, path, args)
	return a.Get(0).(workerbridge.Result)
}

// MockRepository - мок репозитория (профили и отметки)
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetStudentByRollNo(ctx context.Context, rollNo string) (*models.StudentProfile, error) {
	args := m.Called(ctx, rollNo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.StudentProfile), args.Error(1)
}

func (m *MockRepository) CreateStudent(ctx context.Context, student *models.StudentProfile) error {
	args := m.Called(ctx, student)
	return args.Error(0)
}

func (m *MockRepository) ReplaceStudentFace(ctx context.Context, rollNo, name string, handle models.BlobHandle) (*models.StudentProfile, models.BlobHandle, error) {
	args := m.Called(ctx, rollNo, name, handle)
	if args.Get(0) == nil {
		return nil, "", args.Error(2)
	}
	// профиль может зависеть от нового handle
	if fn, ok := args.Get(0).(func(context.Context, string, string, models.BlobHandle) *models.StudentProfile); ok {
		return fn(ctx, rollNo, name, handle), args.Get(1).(models.BlobHandle), args.Error(2)
	}
	return args.Get(0).(*models.StudentProfile), args.Get(1).(models.BlobHandle), args.Error(2)
}

func (m *MockRepository) ListEnrolledStudents(ctx context.Context) ([]models.StudentProfile, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.StudentProfile), args.Error(1)
}

func (m *MockRepository) CreateAttendance(ctx context.Context, record *models.AttendanceRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// MockCache - мок Redis кэша
type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetFaceSet(ctx context.Context) (*models.FaceSet, int64, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).(*models.FaceSet), args.Get(1).(int64), args.Error(2)
}

func (m *MockCache) SetFaceSet(ctx context.Context, set *models.FaceSet, gen int64) (bool, error) {
	args := m.Called(ctx, set, gen)
	return args.Bool(0), args.Error(1)
}

func (m *MockCache) InvalidateFaceSet(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockCache) InvalidateStats(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// writeWorker создает shell-скрипт, изображающий воркер
func writeWorker(t *testing.T, body string) workerbridge.Command {
	t.Helper()
	path := filepath.Join(t.TempDir(), "worker.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return workerbridge.Command{Interpreter: "/bin/sh", Script: path}
}
