// Package workerbridge запускает внешний воркер распознавания/добавления лиц
// и классифицирует его исход в типизированный Result.
//
// Протокол: позиционные аргументы, stdout - диагностические строки и ровно
// одна JSON строка в конце, код выхода 0 обязателен для доверия к stdout.
package workerbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"face-attendance/internal/models"
)

// Mode определяет обязательные поля успешного ответа
type Mode int

const (
	ModeEnroll Mode = iota
	ModeRecognize
)

func (m Mode) String() string {
	switch m {
	case ModeEnroll:
		return "enroll"
	case ModeRecognize:
		return "recognize"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Command - интерпретатор и скрипт воркера
type Command struct {
	Interpreter string // например python3; пусто - Script исполняемый
	Script      string
}

// Argv строит [scriptPathOrBinary, ...args] с учетом интерпретатора
func (c Command) Argv(args ...string) (path string, argv []string) {
	if c.Interpreter == "" {
		return c.Script, args
	}
	return c.Interpreter, append([]string{c.Script}, args...)
}

// LineFunc получает строки stdout по мере их появления
type LineFunc func(mode Mode, line string)

// Options - настройки моста
type Options struct {
	Camera  *Camera       // nil - своя камера с очередью
	Timeout time.Duration // 0 - без ограничения
	// WaitDelay ограничивает дочитывание пайпов после завершения/убийства процесса
	WaitDelay time.Duration
	OnLine    LineFunc
	Debug     bool
}

// Bridge запускает воркеры по одному за раз (через Camera)
type Bridge struct {
	camera    *Camera
	timeout   time.Duration
	waitDelay time.Duration
	onLine    LineFunc
	debug     bool
}

// New создает мост
func New(opts Options) *Bridge {
	camera := opts.Camera
	if camera == nil {
		camera = NewCamera(true)
	}
	waitDelay := opts.WaitDelay
	if waitDelay <= 0 {
		waitDelay = 2 * time.Second
	}
	return &Bridge{
		camera:    camera,
		timeout:   opts.Timeout,
		waitDelay: waitDelay,
		onLine:    opts.OnLine,
		debug:     opts.Debug,
	}
}

// Camera возвращает токен камеры моста
func (b *Bridge) Camera() *Camera {
	return b.camera
}

// Invoke запускает воркер и ждет его завершения. Повторов нет:
// на каждый вызов ровно один Result.
func (b *Bridge) Invoke(ctx context.Context, mode Mode, path string, args ...string) Result {
	release, err := b.camera.Acquire(ctx)
	if err != nil {
		return spawnFailure(err)
	}
	defer release()

	runCtx := ctx
	if b.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, path, args...)
	cmd.WaitDelay = b.waitDelay

	stdout := newStreamBuffer(func(line string) {
		if b.debug {
			log.Printf("🐍 [%s] %s", mode, line)
		}
		if b.onLine != nil {
			b.onLine(mode, line)
		}
	})
	stderr := newStreamBuffer(nil)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	started := time.Now()
	if err := cmd.Start(); err != nil {
		return spawnFailure(err)
	}

	waitErr := cmd.Wait()
	elapsed := time.Since(started).Round(time.Millisecond)

	if runCtx.Err() != nil && ctx.Err() == nil {
		// Таймаут: процесс убит, то что успели прочитать не трогаем
		log.Printf("⏱️  Воркер %s превысил таймаут %v и был остановлен", mode, b.timeout)
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = fmt.Sprintf("worker timed out after %v", b.timeout)
		}
		return processFailure(-1, msg)
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(waitErr, &exitErr):
			exitCode = exitErr.ExitCode()
		case errors.Is(waitErr, exec.ErrWaitDelay):
			// Процесс завершился сам, но кто-то из его потомков держал пайп
			exitCode = cmd.ProcessState.ExitCode()
		default:
			return processFailure(-1, waitErr.Error())
		}
	}

	if b.debug {
		log.Printf("🐍 Воркер %s завершился с кодом %d за %v", mode, exitCode, elapsed)
	}
	return classify(mode, stdout.Bytes(), stderr.String(), exitCode)
}

// CheckExecutable проверяет, что воркер можно запустить
func (b *Bridge) CheckExecutable(c Command) error {
	path, argv := c.Argv()
	if _, err := exec.LookPath(path); err != nil {
		return fmt.Errorf("исполняемый файл воркера не найден: %w", err)
	}
	if c.Interpreter != "" && len(argv) > 0 {
		if _, err := os.Stat(argv[0]); err != nil {
			return fmt.Errorf("скрипт воркера недоступен: %w", err)
		}
	}
	return nil
}

// classify переводит (stdout, stderr, код выхода) в Result.
// Ненулевой код всегда важнее содержимого stdout.
func classify(mode Mode, stdout []byte, stderr string, exitCode int) Result {
	if exitCode != 0 {
		return processFailure(exitCode, strings.TrimSpace(stderr))
	}

	line := lastLine(stdout)
	if line == "" {
		return outputParseFailure(string(stdout))
	}

	var rec models.WorkerRecord
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return outputParseFailure(string(stdout))
	}

	switch strings.ToLower(strings.TrimSpace(rec.Status)) {
	case models.WorkerStatusSuccess:
		if missing := missingFields(mode, &rec); len(missing) > 0 {
			log.Printf("⚠️  Воркер %s вернул success без полей: %s", mode, strings.Join(missing, ", "))
			return workerError(rec.Error)
		}
		return success(&rec)
	case models.WorkerStatusNoDetection:
		return emptyDetection()
	default:
		return workerError(rec.Error)
	}
}

// lastLine - последняя непустая строка вывода
func lastLine(out []byte) string {
	lines := strings.Split(string(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return l
		}
	}
	return ""
}

func missingFields(mode Mode, rec *models.WorkerRecord) []string {
	var missing []string
	switch mode {
	case ModeEnroll:
		if rec.Name == "" {
			missing = append(missing, "name")
		}
		if rec.RollNo == "" {
			missing = append(missing, "rollNo")
		}
		if rec.EncodedFaces == "" {
			missing = append(missing, "encodedFaces")
		}
	case ModeRecognize:
		if rec.Attendance == nil {
			return []string{"attendance"}
		}
		if rec.Attendance.Name == "" {
			missing = append(missing, "attendance.name")
		}
		if rec.Attendance.EnrollmentNo == "" {
			missing = append(missing, "attendance.enrollmentNo")
		}
		if rec.Attendance.Timestamp == "" {
			missing = append(missing, "attendance.timestamp")
		}
	}
	return missing
}

// streamBuffer накапливает поток и отдает законченные строки наблюдателю.
// exec пишет в него из своей горутины, читаем после Wait.
type streamBuffer struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	pending []byte
	onLine  func(string)
}

func newStreamBuffer(onLine func(string)) *streamBuffer {
	return &streamBuffer{onLine: onLine}
}

func (s *streamBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, _ := s.buf.Write(p)
	if s.onLine == nil {
		return n, nil
	}

	s.pending = append(s.pending, p...)
	for {
		i := bytes.IndexByte(s.pending, '\n')
		if i < 0 {
			break
		}
		if line := strings.TrimSpace(string(s.pending[:i])); line != "" {
			s.onLine(line)
		}
		s.pending = s.pending[i+1:]
	}
	return n, nil
}

func (s *streamBuffer) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.buf.Bytes())
}

func (s *streamBuffer) String() string {
	return string(s.Bytes())
}
