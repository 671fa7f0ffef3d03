package pipeline

import (
	"errors"
	"fmt"

	"face-attendance/pkg/workerbridge"
)

// Stage - шаг конвейера
type Stage string

const (
	StageIdle        Stage = "idle"
	StageCapturing   Stage = "capturing"
	StageEncoding    Stage = "encoding"
	StageStoring     Stage = "storing"
	StagePersisting  Stage = "persisting_profile"
	StageDone        Stage = "done"
	StageFailed      Stage = "failed"
	StageRecognizing Stage = "recognizing"
	StageRehydrating Stage = "rehydrating"
)

// FailureKind - класс сбоя, по нему API выбирает HTTP статус
type FailureKind string

const (
	KindSpawn       FailureKind = "spawn"
	KindProcess     FailureKind = "process"
	KindOutputParse FailureKind = "output_parse"
	KindWorkerError FailureKind = "worker_error"
	KindNoDetection FailureKind = "no_detection"
	KindDecode      FailureKind = "decode"
	KindStore       FailureKind = "store"
	KindPersistence FailureKind = "persistence"
	KindConflict    FailureKind = "conflict"
)

// ErrNoFaceDetected - воркер отработал, но лица в кадре не было
var ErrNoFaceDetected = errors.New("no face detected")

// Failure - сбой конвейера на конкретном шаге
type Failure struct {
	Stage    Stage
	Kind     FailureKind
	Message  string
	ExitCode int // только для KindProcess
	Err      error
}

func (f *Failure) Error() string {
	if f.Err != nil && f.Err.Error() != f.Message {
		return fmt.Sprintf("%s (%s): %s: %v", f.Stage, f.Kind, f.Message, f.Err)
	}
	return fmt.Sprintf("%s (%s): %s", f.Stage, f.Kind, f.Message)
}

func (f *Failure) Unwrap() error { return f.Err }

func newFailure(stage Stage, kind FailureKind, msg string, err error) *Failure {
	if msg == "" && err != nil {
		msg = err.Error()
	}
	return &Failure{Stage: stage, Kind: kind, Message: msg, Err: err}
}

// fromResult переводит неуспешный результат воркера в Failure
func fromResult(stage Stage, res workerbridge.Result) *Failure {
	switch res.Kind {
	case workerbridge.KindEmptyDetection:
		return newFailure(stage, KindNoDetection, ErrNoFaceDetected.Error(), ErrNoFaceDetected)
	case workerbridge.KindSpawnFailure:
		return newFailure(stage, KindSpawn, "", res.Err())
	case workerbridge.KindProcessFailure:
		f := newFailure(stage, KindProcess, res.Stderr, res.Err())
		f.ExitCode = res.ExitCode
		return f
	case workerbridge.KindOutputParseFailure:
		return newFailure(stage, KindOutputParse, "не удалось разобрать вывод воркера", res.Err())
	default:
		return newFailure(stage, KindWorkerError, res.Message, res.Err())
	}
}

// FailureOf достает Failure из цепочки ошибок
func FailureOf(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
