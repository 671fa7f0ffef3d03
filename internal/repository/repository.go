package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"face-attendance/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrStudentExists - студент с таким номером уже есть
var ErrStudentExists = errors.New("студент с таким номером уже существует")

// Repository инкапсулирует всю работу с базой данных
type Repository struct {
	db *sqlx.DB
}

// NewRepository создает новый репозиторий
func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Migrate создает таблицы, если их нет (авто-миграция при старте)
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS students (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			roll_no TEXT NOT NULL UNIQUE,
			face_blob TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS attendance (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			enrollment_no TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			date TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS attendance_date_idx ON attendance (date);
	`)
	return err
}

// isUniqueViolation понимает ошибки обоих драйверов (lib/pq и pgx)
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// ============ STUDENTS ============

// CreateStudent создает профиль студента. Существующий профиль не перезаписывается.
func (r *Repository) CreateStudent(ctx context.Context, student *models.StudentProfile) error {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO students (name, roll_no, face_blob)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, student.Name, student.RollNo, student.FaceBlob).Scan(&student.ID, &student.CreatedAt)

	if isUniqueViolation(err) {
		return ErrStudentExists
	}
	return err
}

// GetStudentByRollNo получает студента по номеру
func (r *Repository) GetStudentByRollNo(ctx context.Context, rollNo string) (*models.StudentProfile, error) {
	var student models.StudentProfile
	err := r.db.GetContext(ctx, &student, `
		SELECT id, name, roll_no, face_blob, created_at
		FROM students
		WHERE roll_no = $1
	`, rollNo)
	if err != nil {
		return nil, err
	}
	return &student, nil
}

// ListStudents возвращает всех студентов
func (r *Repository) ListStudents(ctx context.Context) ([]models.StudentProfile, error) {
	var students []models.StudentProfile
	err := r.db.SelectContext(ctx, &students, `
		SELECT id, name, roll_no, face_blob, created_at
		FROM students
		ORDER BY created_at DESC
	`)
	return students, err
}

// ListEnrolledStudents возвращает только студентов с образцом лица
func (r *Repository) ListEnrolledStudents(ctx context.Context) ([]models.StudentProfile, error) {
	var students []models.StudentProfile
	err := r.db.SelectContext(ctx, &students, `
		SELECT id, name, roll_no, face_blob, created_at
		FROM students
		WHERE face_blob IS NOT NULL AND face_blob <> ''
		ORDER BY id
	`)
	return students, err
}

// ReplaceStudentFace - явная замена образца (и имени) существующего студента.
// Возвращает обновленный профиль и старый handle, чтобы вызывающий удалил его.
func (r *Repository) ReplaceStudentFace(ctx context.Context, rollNo, name string, handle models.BlobHandle) (*models.StudentProfile, models.BlobHandle, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, "", err
	}
	defer tx.Rollback()

	var old sql.NullString
	// FOR UPDATE блокирует строку от параллельной замены
	err = tx.QueryRowxContext(ctx, `
		SELECT face_blob FROM students WHERE roll_no = $1 FOR UPDATE
	`, rollNo).Scan(&old)
	if err != nil {
		return nil, "", err
	}

	var student models.StudentProfile
	err = tx.GetContext(ctx, &student, `
		UPDATE students
		SET name = $1, face_blob = $2
		WHERE roll_no = $3
		RETURNING id, name, roll_no, face_blob, created_at
	`, name, string(handle), rollNo)
	if err != nil {
		return nil, "", err
	}

	if err := tx.Commit(); err != nil {
		return nil, "", err
	}
	return &student, models.BlobHandle(old.String), nil
}

// DeleteStudent удаляет студента и возвращает удаленный профиль
// (его blob становится сиротой, удалять его - забота вызывающего)
func (r *Repository) DeleteStudent(ctx context.Context, rollNo string) (*models.StudentProfile, error) {
	var student models.StudentProfile
	err := r.db.GetContext(ctx, &student, `
		DELETE FROM students
		WHERE roll_no = $1
		RETURNING id, name, roll_no, face_blob, created_at
	`, rollNo)
	if err != nil {
		return nil, err
	}
	return &student, nil
}

// ============ ATTENDANCE ============

// CreateAttendance сохраняет отметку. Дубликаты за день допустимы.
func (r *Repository) CreateAttendance(ctx context.Context, record *models.AttendanceRecord) error {
	return r.db.QueryRowxContext(ctx, `
		INSERT INTO attendance (name, enrollment_no, timestamp, date)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, record.Name, record.EnrollmentNo, record.Timestamp, record.Date).Scan(&record.ID)
}

// ListAttendance возвращает отметки, новые первыми
func (r *Repository) ListAttendance(ctx context.Context, filter models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	query := `SELECT id, name, enrollment_no, timestamp, date FROM attendance WHERE TRUE`
	var args []interface{}

	if filter.Date != nil {
		d := *filter.Date
		start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, d.Location())
		end := start.AddDate(0, 0, 1)
		args = append(args, start, end)
		query += ` AND date >= $1 AND date < $2`
	}
	if filter.StudentName != "" {
		args = append(args, "%"+filter.StudentName+"%")
		query += ` AND name ILIKE $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY date DESC`

	records := []models.AttendanceRecord{}
	err := r.db.SelectContext(ctx, &records, query, args...)
	return records, err
}

// ============ STATS ============

// GetStats возвращает общую статистику
func (r *Repository) GetStats(ctx context.Context) (*models.Stats, error) {
	var stats models.Stats

	err := r.db.GetContext(ctx, &stats.TotalStudents, "SELECT COUNT(*) FROM students")
	if err != nil {
		return nil, err
	}

	err = r.db.GetContext(ctx, &stats.EnrolledStudents, "SELECT COUNT(*) FROM students WHERE face_blob IS NOT NULL AND face_blob <> ''")
	if err != nil {
		return nil, err
	}

	err = r.db.GetContext(ctx, &stats.AttendanceRecords, "SELECT COUNT(*) FROM attendance")
	if err != nil {
		return nil, err
	}

	return &stats, nil
}
