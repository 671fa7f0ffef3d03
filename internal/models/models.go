package models

import (
	"database/sql"
	"time"
)

// Размер одного снимка лица: 50x50 пикселей, 3 канала, построчно
const (
	FaceWidth      = 50
	FaceHeight     = 50
	FaceChannels   = 3
	FaceSampleSize = FaceWidth * FaceHeight * FaceChannels // 7500
)

// BlobHandle - непрозрачный идентификатор blob'а в хранилище
type BlobHandle string

// RawFaceSample - сырой растр лица фиксированной длины.
// JSON кодирует его как массив чисел, именно так его ждет воркер распознавания.
type RawFaceSample [FaceSampleSize]byte

// StudentProfile представляет студента с (необязательным) образцом лица
type StudentProfile struct {
	ID        int            `db:"id" json:"id"`
	Name      string         `db:"name" json:"name"`
	RollNo    string         `db:"roll_no" json:"rollNo"`
	FaceBlob  sql.NullString `db:"face_blob" json:"-"`
	CreatedAt time.Time      `db:"created_at" json:"createdAt"`
}

// Handle возвращает ссылку на blob, если у профиля есть биометрия
func (p *StudentProfile) Handle() (BlobHandle, bool) {
	if !p.FaceBlob.Valid || p.FaceBlob.String == "" {
		return "", false
	}
	return BlobHandle(p.FaceBlob.String), true
}

// HasFace - есть ли у профиля сохраненный образец
func (p *StudentProfile) HasFace() bool {
	_, ok := p.Handle()
	return ok
}

// StudentResponse - профиль для API ответов
type StudentResponse struct {
	StudentProfile
	HasFace bool `json:"hasFace"`
}

// AttendanceRecord - отметка посещаемости.
// Timestamp приходит от воркера и не разбирается, Date ставит сервер.
type AttendanceRecord struct {
	ID           int       `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	EnrollmentNo string    `db:"enrollment_no" json:"enrollmentNo"`
	Timestamp    string    `db:"timestamp" json:"timestamp"`
	Date         time.Time `db:"date" json:"date"`
}

// AttendanceFilter - фильтры выгрузки посещаемости
type AttendanceFilter struct {
	Date        *time.Time // день (локальное время), nil - все дни
	StudentName string     // подстрока имени без учета регистра
}

// FaceSet - восстановленный набор образцов для обучения/поиска.
// Names, Faces и RollNos - параллельные последовательности.
type FaceSet struct {
	Names   []string        `json:"names"`
	Faces   []RawFaceSample `json:"faces_data"`
	RollNos []string        `json:"Eroll"`
	Skipped []SkippedSample `json:"skipped,omitempty"`
}

// Len - количество валидных образцов
func (s *FaceSet) Len() int {
	return len(s.Faces)
}

// Add добавляет образец во все три последовательности
func (s *FaceSet) Add(name, rollNo string, sample RawFaceSample) {
	s.Names = append(s.Names, name)
	s.Faces = append(s.Faces, sample)
	s.RollNos = append(s.RollNos, rollNo)
}

// SkippedSample - профиль, пропущенный при восстановлении
type SkippedSample struct {
	RollNo string `json:"rollNo"`
	Reason string `json:"reason"`
}

// Stats - общая статистика системы
type Stats struct {
	TotalStudents     int `json:"total_students"`
	EnrolledStudents  int `json:"enrolled_students"`
	AttendanceRecords int `json:"attendance_records"`
}

// EnrollRequest - запрос на добавление студента
type EnrollRequest struct {
	Name    string `json:"name" binding:"required"`
	RollNo  string `json:"rollNo" binding:"required"`
	Replace bool   `json:"replace"`
}

// EnrollResponse - ответ на успешное добавление
type EnrollResponse struct {
	Success   bool           `json:"success"`
	Message   string         `json:"message"`
	StudentID int            `json:"studentId"`
	Student   StudentProfile `json:"student"`
}

// AttendanceResponse - ответ на успешную отметку
type AttendanceResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Record  AttendanceRecord `json:"details"`
}

// FaceSetResponse - формат, который скачивает воркер распознавания
type FaceSetResponse struct {
	Success bool `json:"success"`
	FaceSet
}

// ErrorResponse - стандартный ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Details string `json:"details,omitempty"`
}

// Статусы последней строки воркера
const (
	WorkerStatusSuccess     = "success"
	WorkerStatusNoDetection = "no_detection"
	WorkerStatusError       = "error"
)

// WorkerRecord - финальная JSON строка воркера (оба режима)
type WorkerRecord struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	// Режим распознавания
	Attendance *WorkerAttendance `json:"attendance,omitempty"`

	// Режим добавления лица
	Name         string `json:"name,omitempty"`
	RollNo       string `json:"rollNo,omitempty"`
	EncodedFaces string `json:"encodedFaces,omitempty"`
}

// WorkerAttendance - данные распознанного студента
type WorkerAttendance struct {
	Name         string `json:"name"`
	EnrollmentNo string `json:"enrollmentNo"`
	Timestamp    string `json:"timestamp"`
}
