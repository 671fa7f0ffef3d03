package handlers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"face-attendance/internal/api/websocket"
	"face-attendance/internal/models"
	"face-attendance/internal/repository"
	"face-attendance/internal/service/cache"
	"face-attendance/internal/service/pipeline"
	"face-attendance/internal/service/storage"
	"face-attendance/pkg/workerbridge"

	"github.com/gin-gonic/gin"
)

// Enroller - конвейер добавления студента
type Enroller interface {
	Enroll(ctx context.Context, req models.EnrollRequest) (*models.StudentProfile, error)
}

// Recognizer - конвейер отметки посещаемости
type Recognizer interface {
	Recognize(ctx context.Context) (*models.AttendanceRecord, error)
}

// FaceSetLoader - восстановление набора лиц
type FaceSetLoader interface {
	Load(ctx context.Context) (*models.FaceSet, error)
}

// Handler содержит все зависимости для обработки HTTP запросов
type Handler struct {
	repo        repository.RepositoryInterface
	blobs       storage.BlobStore
	enrollment  Enroller
	recognition Recognizer
	faces       FaceSetLoader
	cache       *cache.Service
	wsManager   *websocket.Manager
}

// NewHandler создает новый handler с зависимостями
func NewHandler(
	repo repository.RepositoryInterface,
	blobs storage.BlobStore,
	enrollment Enroller,
	recognition Recognizer,
	faces FaceSetLoader,
	cache *cache.Service,
	wsManager *websocket.Manager,
) *Handler {
	return &Handler{
		repo:        repo,
		blobs:       blobs,
		enrollment:  enrollment,
		recognition: recognition,
		faces:       faces,
		cache:       cache,
		wsManager:   wsManager,
	}
}

// ============ STUDENTS ============

// HandleEnroll снимает лицо студента и создает профиль
func (h *Handler) HandleEnroll(c *gin.Context) {
	var req models.EnrollRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "Поля name и rollNo обязательны",
		})
		return
	}

	student, err := h.enrollment.Enroll(c.Request.Context(), req)
	if err != nil {
		h.writeFailure(c, err, http.StatusUnprocessableEntity)
		return
	}

	h.wsManager.BroadcastStudentEnrolled(student.RollNo, toResponse(*student))
	h.broadcastStats(c.Request.Context())

	c.JSON(http.StatusOK, models.EnrollResponse{
		Success:   true,
		Message:   "Студент добавлен",
		StudentID: student.ID,
		Student:   *student,
	})
}

// HandleGetStudents возвращает всех студентов
func (h *Handler) HandleGetStudents(c *gin.Context) {
	students, err := h.repo.ListStudents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: err.Error(),
		})
		return
	}

	resp := make([]models.StudentResponse, 0, len(students))
	for _, s := range students {
		resp = append(resp, toResponse(s))
	}

	c.JSON(http.StatusOK, resp)
}

// HandleGetStudent возвращает студента по номеру
func (h *Handler) HandleGetStudent(c *gin.Context) {
	student, err := h.repo.GetStudentByRollNo(c.Request.Context(), c.Param("rollNo"))
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: "Студент не найден",
		})
		return
	}

	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, toResponse(*student))
}

// HandleGetStudentFace отдает сжатый образец как есть
func (h *Handler) HandleGetStudentFace(c *gin.Context) {
	rollNo := c.Param("rollNo")
	student, err := h.repo.GetStudentByRollNo(c.Request.Context(), rollNo)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: "Студент не найден",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: err.Error(),
		})
		return
	}

	handle, ok := student.Handle()
	if !ok {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: "У студента нет образца лица",
		})
		return
	}

	rc, err := h.blobs.Get(c.Request.Context(), handle)
	if errors.Is(err, storage.ErrBlobNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: "Образец не найден в хранилище",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: err.Error(),
		})
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, -1, "application/octet-stream", rc, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="face_%s.dat"`, rollNo),
	})
}

// HandleDeleteStudent удаляет студента вместе с образцом
func (h *Handler) HandleDeleteStudent(c *gin.Context) {
	ctx := c.Request.Context()

	student, err := h.repo.DeleteStudent(ctx, c.Param("rollNo"))
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: "Студент не найден",
		})
		return
	}

	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: err.Error(),
		})
		return
	}

	// Образец теперь сирота
	if handle, ok := student.Handle(); ok {
		if err := h.blobs.Delete(ctx, handle); err != nil && !errors.Is(err, storage.ErrBlobNotFound) {
			log.Printf("⚠️  Не удалось удалить образец %s: %v", handle, err)
		}
	}

	// Инвалидируем кэш
	if h.cache != nil {
		h.cache.InvalidateFaceSet(ctx)
		h.cache.InvalidateStats(ctx)
	}
	h.broadcastStats(ctx)

	c.JSON(http.StatusOK, gin.H{
		"message": "Студент удален",
	})
}

// ============ ATTENDANCE ============

// HandleTakeAttendance распознает лицо перед камерой и ставит отметку
func (h *Handler) HandleTakeAttendance(c *gin.Context) {
	record, err := h.recognition.Recognize(c.Request.Context())
	if err != nil {
		h.writeFailure(c, err, http.StatusBadRequest)
		return
	}

	h.wsManager.BroadcastAttendanceMarked(record)
	h.broadcastStats(c.Request.Context())

	c.JSON(http.StatusCreated, models.AttendanceResponse{
		Success: true,
		Message: "Посещаемость отмечена",
		Record:  *record,
	})
}

// HandleGetAttendance возвращает отметки с фильтрами ?date=YYYY-MM-DD&studentName=
func (h *Handler) HandleGetAttendance(c *gin.Context) {
	filter := models.AttendanceFilter{StudentName: c.Query("studentName")}

	if date := c.Query("date"); date != "" {
		day, err := time.ParseInLocation("2006-01-02", date, time.Local)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error: "Дата должна быть в формате YYYY-MM-DD",
			})
			return
		}
		filter.Date = &day
	}

	records, err := h.repo.ListAttendance(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: err.Error(),
		})
		return
	}

	if records == nil {
		records = []models.AttendanceRecord{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"records": records,
	})
}

// HandleGetFaces отдает набор лиц в формате, который скачивает воркер распознавания
func (h *Handler) HandleGetFaces(c *gin.Context) {
	set, err := h.faces.Load(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "Не удалось загрузить образцы лиц",
			Kind:    failureKind(err),
			Details: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, models.FaceSetResponse{
		Success: true,
		FaceSet: *set,
	})
}

// ============ STATS ============

// HandleGetStats возвращает общую статистику (с кэшем)
func (h *Handler) HandleGetStats(c *gin.Context) {
	stats, err := h.stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

func (h *Handler) stats(ctx context.Context) (*models.Stats, error) {
	// Пробуем из кэша
	if h.cache != nil {
		if stats, err := h.cache.GetStats(ctx); err == nil && stats != nil {
			return stats, nil
		}
	}

	// Из БД
	stats, err := h.repo.GetStats(ctx)
	if err != nil {
		return nil, err
	}

	// Сохраняем в кэш
	if h.cache != nil {
		h.cache.SetStats(ctx, stats)
	}
	return stats, nil
}

// broadcastStats обновляет статистику у всех клиентов
func (h *Handler) broadcastStats(ctx context.Context) {
	if stats, err := h.stats(ctx); err == nil {
		h.wsManager.BroadcastStatsUpdate(stats)
	}
}

// ============ ERRORS ============

// writeFailure переводит сбой конвейера в HTTP ответ.
// noDetection - статус для "лицо не найдено" (у добавления и отметки он разный).
func (h *Handler) writeFailure(c *gin.Context, err error, noDetection int) {
	f, ok := pipeline.FailureOf(err)
	if !ok {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: err.Error(),
		})
		return
	}

	status := http.StatusInternalServerError
	msg := "Ошибка воркера"
	switch {
	case errors.Is(err, workerbridge.ErrDeviceBusy):
		status, msg = http.StatusConflict, "Камера занята"
	case f.Kind == pipeline.KindConflict:
		status, msg = http.StatusConflict, "Студент уже существует"
	case f.Kind == pipeline.KindNoDetection:
		status, msg = noDetection, "Лицо не обнаружено"
	case f.Kind == pipeline.KindProcess:
		msg = "Воркер завершился с ошибкой"
	case f.Kind == pipeline.KindSpawn:
		msg = "Не удалось запустить воркер"
	case f.Kind == pipeline.KindDecode, f.Kind == pipeline.KindStore, f.Kind == pipeline.KindPersistence:
		msg = "Не удалось сохранить результат"
	}

	c.JSON(status, models.ErrorResponse{
		Error:   msg,
		Kind:    string(f.Kind),
		Details: f.Message,
	})
}

func failureKind(err error) string {
	if f, ok := pipeline.FailureOf(err); ok {
		return string(f.Kind)
	}
	return ""
}

func toResponse(s models.StudentProfile) models.StudentResponse {
	return models.StudentResponse{StudentProfile: s, HasFace: s.HasFace()}
}
