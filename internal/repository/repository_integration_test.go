package repository

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"face-attendance/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

type noopLogger struct{}

func (noopLogger) Printf(format string, v ...interface{}) {}

// TestRepositoryIntegration гоняет репозиторий на настоящем Postgres в Docker
func TestRepositoryIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("интеграционный тест пропущен в -short режиме")
	}

	ctx := context.Background()

	// testcontainers паникует, если сокета Docker нет
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("testcontainers panicked: %v", r)
			}
		}()
		cli, err := testcontainers.NewDockerClientWithOpts(ctx)
		if err != nil {
			return err
		}
		defer cli.Close()
		_, err = cli.Ping(ctx)
		return err
	}()
	if err != nil {
		t.Skipf("Docker недоступен: %v", err)
	}

	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("attendance_test"),
		postgres.WithUsername("user"),
		postgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithLogger(noopLogger{}),
	)
	require.NoError(t, err)
	defer func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Fatalf("не удалось остановить контейнер: %v", err)
		}
	}()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sqlx.Connect("postgres", connStr)
	require.NoError(t, err)
	defer db.Close()

	repo := NewRepository(db)
	require.NoError(t, repo.Migrate(ctx))
	// повторная миграция безопасна
	require.NoError(t, repo.Migrate(ctx))

	// --- Студенты ---

	alice := &models.StudentProfile{Name: "Alice", RollNo: "R100", FaceBlob: sql.NullString{String: "a/face.dat", Valid: true}}
	require.NoError(t, repo.CreateStudent(ctx, alice))
	assert.NotZero(t, alice.ID)

	noFace := &models.StudentProfile{Name: "Carol", RollNo: "R300"}
	require.NoError(t, repo.CreateStudent(ctx, noFace))

	dup := &models.StudentProfile{Name: "Alice Again", RollNo: "R100", FaceBlob: sql.NullString{String: "x/face.dat", Valid: true}}
	assert.ErrorIs(t, repo.CreateStudent(ctx, dup), ErrStudentExists)

	stored, err := repo.GetStudentByRollNo(ctx, "R100")
	require.NoError(t, err)
	assert.Equal(t, "Alice", stored.Name, "существующий профиль не должен перезаписываться")

	enrolled, err := repo.ListEnrolledStudents(ctx)
	require.NoError(t, err)
	require.Len(t, enrolled, 1)
	assert.Equal(t, "R100", enrolled[0].RollNo)

	updated, old, err := repo.ReplaceStudentFace(ctx, "R100", "Alice B.", "b/face.dat")
	require.NoError(t, err)
	assert.Equal(t, models.BlobHandle("a/face.dat"), old)
	h, _ := updated.Handle()
	assert.Equal(t, models.BlobHandle("b/face.dat"), h)

	_, _, err = repo.ReplaceStudentFace(ctx, "R404", "Ghost", "g/face.dat")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	// --- Посещаемость ---

	today := time.Now()
	yesterday := today.AddDate(0, 0, -1)
	for _, rec := range []*models.AttendanceRecord{
		{Name: "Alice B.", EnrollmentNo: "R100", Timestamp: "09:00:00", Date: yesterday},
		{Name: "Alice B.", EnrollmentNo: "R100", Timestamp: "09:00:01", Date: today},
		{Name: "Alice B.", EnrollmentNo: "R100", Timestamp: "09:00:02", Date: today.Add(time.Second)},
		{Name: "Carol", EnrollmentNo: "R300", Timestamp: "09:05:00", Date: today},
	} {
		require.NoError(t, repo.CreateAttendance(ctx, rec))
	}

	all, err := repo.ListAttendance(ctx, models.AttendanceFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].Date.After(all[i-1].Date), "новые отметки должны идти первыми")
	}

	todays, err := repo.ListAttendance(ctx, models.AttendanceFilter{Date: &today, StudentName: "ALICE"})
	require.NoError(t, err)
	assert.Len(t, todays, 2, "повторные отметки за день сохраняются")

	stats, err := repo.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &models.Stats{TotalStudents: 2, EnrolledStudents: 1, AttendanceRecords: 4}, stats)

	deleted, err := repo.DeleteStudent(ctx, "R100")
	require.NoError(t, err)
	assert.True(t, deleted.HasFace())
	_, err = repo.GetStudentByRollNo(ctx, "R100")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
