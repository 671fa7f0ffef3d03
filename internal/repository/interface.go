package repository

import (
	"context"

	"face-attendance/internal/models"
)

// RepositoryInterface определяет контракт для работы с данными
// Это позволяет легко мокать репозиторий в тестах
type RepositoryInterface interface {
	// Students
	CreateStudent(ctx context.Context, student *models.StudentProfile) error
	GetStudentByRollNo(ctx context.Context, rollNo string) (*models.StudentProfile, error)
	ListStudents(ctx context.Context) ([]models.StudentProfile, error)
	ListEnrolledStudents(ctx context.Context) ([]models.StudentProfile, error)
	ReplaceStudentFace(ctx context.Context, rollNo, name string, handle models.BlobHandle) (*models.StudentProfile, models.BlobHandle, error)
	DeleteStudent(ctx context.Context, rollNo string) (*models.StudentProfile, error)

	// Attendance
	CreateAttendance(ctx context.Context, record *models.AttendanceRecord) error
	ListAttendance(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error)

	// Stats
	GetStats(ctx context.Context) (*models.Stats, error)
}

// Проверяем что Repository реализует RepositoryInterface
var _ RepositoryInterface = (*Repository)(nil)
