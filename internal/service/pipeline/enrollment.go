// Package pipeline связывает воркер, кодек, хранилище и репозиторий
// в три конвейера: добавление студента, отметка посещаемости и
// восстановление набора лиц для воркера распознавания.
package pipeline

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"time"

	"face-attendance/internal/models"
	"face-attendance/internal/repository"
	"face-attendance/internal/service/codec"
	"face-attendance/internal/service/storage"
	"face-attendance/pkg/workerbridge"
)

// Invoker запускает воркер (реализуется workerbridge.Bridge)
type Invoker interface {
	Invoke(ctx context.Context, mode workerbridge.Mode, path string, args ...string) workerbridge.Result
}

// StudentStore - операции с профилями, нужные добавлению
type StudentStore interface {
	GetStudentByRollNo(ctx context.Context, rollNo string) (*models.StudentProfile, error)
	CreateStudent(ctx context.Context, student *models.StudentProfile) error
	ReplaceStudentFace(ctx context.Context, rollNo, name string, handle models.BlobHandle) (*models.StudentProfile, models.BlobHandle, error)
}

// Invalidator сбрасывает кэши, зависящие от набора лиц и статистики
type Invalidator interface {
	InvalidateFaceSet(ctx context.Context) error
	InvalidateStats(ctx context.Context) error
}

// StageEvent - переход конвейера добавления
type StageEvent struct {
	RollNo   string      `json:"rollNo"`
	Stage    Stage       `json:"stage"`
	FailedAt Stage       `json:"failedAt,omitempty"`
	Kind     FailureKind `json:"kind,omitempty"`
	Message  string      `json:"message,omitempty"`
}

// Observer получает каждый переход (например, для рассылки в websocket)
type Observer func(StageEvent)

// EnrollmentOptions - настройки конвейера добавления
type EnrollmentOptions struct {
	Command  workerbridge.Command
	Observer Observer
	Cache    Invalidator
	Now      func() time.Time
}

// Enrollment - конвейер Idle → Capturing → Encoding → Storing → PersistingProfile → Done
type Enrollment struct {
	bridge   Invoker
	blobs    storage.BlobStore
	students StudentStore
	cmd      workerbridge.Command
	observer Observer
	cache    Invalidator
	now      func() time.Time
}

// NewEnrollment создает конвейер добавления
func NewEnrollment(bridge Invoker, blobs storage.BlobStore, students StudentStore, opts EnrollmentOptions) *Enrollment {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Enrollment{
		bridge:   bridge,
		blobs:    blobs,
		students: students,
		cmd:      opts.Command,
		observer: opts.Observer,
		cache:    opts.Cache,
		now:      now,
	}
}

// BlobName - имя blob'а образца, как его называла исходная система
func BlobName(rollNo string, at time.Time) string {
	return fmt.Sprintf("face_%s_%d.dat", rollNo, at.UnixMilli())
}

// Enroll снимает лицо через воркер, сохраняет сжатый образец и создает профиль
func (e *Enrollment) Enroll(ctx context.Context, req models.EnrollRequest) (*models.StudentProfile, error) {
	// Проверяем конфликт до того, как занимать камеру
	existing, err := e.students.GetStudentByRollNo(ctx, req.RollNo)
	switch {
	case err == nil:
		if !req.Replace {
			return nil, e.fail(req.RollNo, newFailure(StageIdle, KindConflict,
				fmt.Sprintf("студент %s уже существует", req.RollNo), repository.ErrStudentExists))
		}
	case errors.Is(err, sql.ErrNoRows):
		existing = nil
	default:
		return nil, e.fail(req.RollNo, newFailure(StageIdle, KindPersistence, "", err))
	}

	// Capturing
	e.emit(StageEvent{RollNo: req.RollNo, Stage: StageCapturing})
	path, args := e.cmd.Argv(req.Name, req.RollNo)
	res := e.bridge.Invoke(ctx, workerbridge.ModeEnroll, path, args...)
	if !res.OK() {
		return nil, e.fail(req.RollNo, fromResult(StageCapturing, res))
	}
	rec := res.Record
	if rec.RollNo != req.RollNo {
		log.Printf("⚠️  Воркер вернул номер %q вместо запрошенного %q", rec.RollNo, req.RollNo)
	}

	// Encoding
	e.emit(StageEvent{RollNo: req.RollNo, Stage: StageEncoding})
	raw, err := base64.StdEncoding.DecodeString(rec.EncodedFaces)
	if err != nil {
		return nil, e.fail(req.RollNo, newFailure(StageEncoding, KindDecode, "encodedFaces не является base64", err))
	}
	if len(raw) < models.FaceSampleSize {
		log.Printf("⚠️  Воркер вернул %d байт для %s, меньше одного образца (%d)", len(raw), rec.RollNo, models.FaceSampleSize)
	}
	payload, err := codec.Encode(raw)
	if err != nil {
		return nil, e.fail(req.RollNo, newFailure(StageEncoding, KindDecode, "", err))
	}

	// Storing
	e.emit(StageEvent{RollNo: req.RollNo, Stage: StageStoring})
	handle, err := e.blobs.Put(ctx, BlobName(rec.RollNo, e.now()), bytes.NewReader(payload))
	if err != nil {
		return nil, e.fail(req.RollNo, newFailure(StageStoring, KindStore, "", err))
	}

	// PersistingProfile
	e.emit(StageEvent{RollNo: req.RollNo, Stage: StagePersisting})
	profile, old, err := e.persist(ctx, req.Replace && existing != nil, req.Replace, rec, handle)
	if err != nil {
		e.deleteBlob(ctx, handle, "новый")
		if errors.Is(err, repository.ErrStudentExists) {
			return nil, e.fail(req.RollNo, newFailure(StagePersisting, KindConflict,
				fmt.Sprintf("студент %s уже существует", rec.RollNo), err))
		}
		return nil, e.fail(req.RollNo, newFailure(StagePersisting, KindPersistence, "", err))
	}
	if old != "" && old != handle {
		e.deleteBlob(ctx, old, "старый")
	}

	e.invalidate(ctx)
	e.emit(StageEvent{RollNo: req.RollNo, Stage: StageDone})
	log.Printf("✅ Студент %s (%s) добавлен, образец %s (%d байт)", profile.Name, profile.RollNo, handle, len(payload))
	return profile, nil
}

// persist создает профиль или явно заменяет образец существующего
func (e *Enrollment) persist(ctx context.Context, replace, allowReplace bool, rec *models.WorkerRecord, handle models.BlobHandle) (*models.StudentProfile, models.BlobHandle, error) {
	if replace {
		return e.students.ReplaceStudentFace(ctx, rec.RollNo, rec.Name, handle)
	}

	profile := &models.StudentProfile{
		Name:     rec.Name,
		RollNo:   rec.RollNo,
		FaceBlob: sql.NullString{String: string(handle), Valid: true},
	}
	err := e.students.CreateStudent(ctx, profile)
	if errors.Is(err, repository.ErrStudentExists) && allowReplace {
		// Профиль появился между проверкой и сохранением
		return e.students.ReplaceStudentFace(ctx, rec.RollNo, rec.Name, handle)
	}
	if err != nil {
		return nil, "", err
	}
	return profile, "", nil
}

func (e *Enrollment) deleteBlob(ctx context.Context, handle models.BlobHandle, which string) {
	if err := e.blobs.Delete(context.WithoutCancel(ctx), handle); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
		log.Printf("⚠️  Не удалось удалить %s blob %s: %v", which, handle, err)
	}
}

func (e *Enrollment) invalidate(ctx context.Context) {
	if e.cache == nil {
		return
	}
	if err := e.cache.InvalidateFaceSet(ctx); err != nil {
		log.Printf("⚠️  Не удалось сбросить кэш набора лиц: %v", err)
	}
	if err := e.cache.InvalidateStats(ctx); err != nil {
		log.Printf("⚠️  Не удалось сбросить кэш статистики: %v", err)
	}
}

func (e *Enrollment) fail(rollNo string, f *Failure) *Failure {
	log.Printf("❌ Добавление %s: %v", rollNo, f)
	e.emit(StageEvent{RollNo: rollNo, Stage: StageFailed, FailedAt: f.Stage, Kind: f.Kind, Message: f.Message})
	return f
}

func (e *Enrollment) emit(ev StageEvent) {
	if e.observer != nil {
		e.observer(ev)
	}
}
