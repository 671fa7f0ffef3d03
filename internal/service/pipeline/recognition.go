package pipeline

import (
	"context"
	"log"
	"time"

	"face-attendance/internal/models"
	"face-attendance/pkg/workerbridge"
)

// AttendanceStore сохраняет отметки
type AttendanceStore interface {
	CreateAttendance(ctx context.Context, record *models.AttendanceRecord) error
}

// RecognitionOptions - настройки конвейера распознавания
type RecognitionOptions struct {
	Command     workerbridge.Command
	CascadePath string
	Cache       Invalidator
	Now         func() time.Time
}

// Recognition - одна попытка распознавания = не больше одной отметки
type Recognition struct {
	bridge  Invoker
	records AttendanceStore
	cmd     workerbridge.Command
	cascade string
	cache   Invalidator
	now     func() time.Time
}

// NewRecognition создает конвейер распознавания
func NewRecognition(bridge Invoker, records AttendanceStore, opts RecognitionOptions) *Recognition {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Recognition{
		bridge:  bridge,
		records: records,
		cmd:     opts.Command,
		cascade: opts.CascadePath,
		cache:   opts.Cache,
		now:     now,
	}
}

// Recognize запускает воркер и сохраняет отметку при успехе.
// Повторов нет: решение повторить остается за вызывающим.
func (r *Recognition) Recognize(ctx context.Context) (*models.AttendanceRecord, error) {
	var args []string
	if r.cascade != "" {
		args = append(args, r.cascade)
	}
	path, argv := r.cmd.Argv(args...)

	res := r.bridge.Invoke(ctx, workerbridge.ModeRecognize, path, argv...)
	if !res.OK() {
		f := fromResult(StageRecognizing, res)
		if f.Kind == KindNoDetection {
			log.Printf("👀 Лицо не обнаружено")
		} else {
			log.Printf("❌ Распознавание: %v", f)
		}
		return nil, f
	}

	att := res.Record.Attendance
	record := &models.AttendanceRecord{
		Name:         att.Name,
		EnrollmentNo: att.EnrollmentNo,
		Timestamp:    att.Timestamp,
		Date:         r.now(),
	}
	if err := r.records.CreateAttendance(ctx, record); err != nil {
		f := newFailure(StageRecognizing, KindPersistence, "", err)
		log.Printf("❌ Не удалось сохранить отметку %s: %v", att.EnrollmentNo, err)
		return nil, f
	}

	if r.cache != nil {
		if err := r.cache.InvalidateStats(ctx); err != nil {
			log.Printf("⚠️  Не удалось сбросить кэш статистики: %v", err)
		}
	}

	log.Printf("✅ Отмечен %s (%s) в %s", record.Name, record.EnrollmentNo, record.Timestamp)
	return record, nil
}
