package workerbridge

import (
	"fmt"

	"face-attendance/internal/models"
)

// Kind - вариант результата вызова воркера
type Kind string

const (
	KindSuccess            Kind = "success"
	KindEmptyDetection     Kind = "no_detection"
	KindWorkerError        Kind = "worker_error"
	KindProcessFailure     Kind = "process_failure"
	KindSpawnFailure       Kind = "spawn_failure"
	KindOutputParseFailure Kind = "output_parse_failure"
)

// UnknownError - сообщение, когда воркер ничего не объяснил
const UnknownError = "Unknown error"

// Result - итог одного вызова воркера. Заполнены только поля своего варианта.
type Result struct {
	Kind Kind

	Record    *models.WorkerRecord // Success
	Message   string               // WorkerError
	ExitCode  int                  // ProcessFailure
	Stderr    string               // ProcessFailure
	Cause     error                // SpawnFailure
	RawOutput string               // OutputParseFailure
}

// OK - воркер вернул полезный payload
func (r Result) OK() bool {
	return r.Kind == KindSuccess
}

// Err возвращает ошибку для вариантов-сбоев.
// EmptyDetection - валидный отрицательный исход, для него ошибки нет.
func (r Result) Err() error {
	switch r.Kind {
	case KindSuccess, KindEmptyDetection:
		return nil
	case KindWorkerError:
		return &Error{Kind: r.Kind, Message: r.Message}
	case KindProcessFailure:
		return &Error{Kind: r.Kind, ExitCode: r.ExitCode, Message: r.Stderr}
	case KindSpawnFailure:
		msg := UnknownError
		if r.Cause != nil {
			msg = r.Cause.Error()
		}
		return &Error{Kind: r.Kind, Message: msg, Cause: r.Cause}
	case KindOutputParseFailure:
		return &Error{Kind: r.Kind, Message: "не удалось разобрать вывод воркера", Output: r.RawOutput}
	default:
		return &Error{Kind: r.Kind, Message: UnknownError}
	}
}

// Error - типизированная ошибка вызова воркера
type Error struct {
	Kind     Kind
	ExitCode int
	Message  string
	Output   string
	Cause    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindProcessFailure:
		return fmt.Sprintf("воркер завершился с кодом %d: %s", e.ExitCode, e.Message)
	case KindSpawnFailure:
		return fmt.Sprintf("не удалось запустить воркер: %s", e.Message)
	case KindWorkerError:
		return fmt.Sprintf("воркер сообщил об ошибке: %s", e.Message)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

func success(rec *models.WorkerRecord) Result {
	return Result{Kind: KindSuccess, Record: rec}
}

func emptyDetection() Result {
	return Result{Kind: KindEmptyDetection}
}

func workerError(msg string) Result {
	if msg == "" {
		msg = UnknownError
	}
	return Result{Kind: KindWorkerError, Message: msg}
}

func processFailure(code int, stderr string) Result {
	if stderr == "" {
		stderr = UnknownError
	}
	return Result{Kind: KindProcessFailure, ExitCode: code, Stderr: stderr}
}

func spawnFailure(cause error) Result {
	return Result{Kind: KindSpawnFailure, Cause: cause}
}

func outputParseFailure(raw string) Result {
	return Result{Kind: KindOutputParseFailure, RawOutput: raw}
}
