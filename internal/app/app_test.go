package app

import (
	"context"
	"strings"
	"testing"
	"time"

	"face-attendance/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldForward(t *testing.T) {
	assert.True(t, shouldForward("frame 12 captured"))
	assert.False(t, shouldForward(""))
	assert.False(t, shouldForward(`{"status":"success","encodedFaces":"`+strings.Repeat("A", 10000)+`"}`))
}

func TestNewBridgeCameraPolicy(t *testing.T) {
	cfg := config.Load()

	cfg.Worker.CameraPolicy = config.CameraPolicyReject
	b := NewBridge(cfg, nil)
	release, err := b.Camera().Acquire(context.Background())
	require.NoError(t, err)
	_, err = b.Camera().Acquire(context.Background())
	assert.Error(t, err, "reject: второй вызов отклоняется сразу")
	release()

	cfg.Worker.CameraPolicy = config.CameraPolicyQueue
	b = NewBridge(cfg, nil)
	release, err = b.Camera().Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = b.Camera().Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "queue: второй вызов ждет")
}

func TestCommands(t *testing.T) {
	w := config.WorkerConfig{Interpreter: "python3", EnrollScript: "add.py", RecognizeScript: "rec.py"}

	path, argv := EnrollCommand(w).Argv("Bob", "R200")
	assert.Equal(t, "python3", path)
	assert.Equal(t, []string{"add.py", "Bob", "R200"}, argv)

	_, argv = RecognizeCommand(w).Argv("cascade.xml")
	assert.Equal(t, []string{"rec.py", "cascade.xml"}, argv)
}

func TestOpenCacheDisabled(t *testing.T) {
	cfg := config.Load()
	cfg.Redis.Enabled = false
	assert.Nil(t, OpenCache(context.Background(), cfg))
}

func TestOpenCacheUnreachable(t *testing.T) {
	cfg := config.Load()
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "127.0.0.1:1"
	assert.Nil(t, OpenCache(context.Background(), cfg))
}

func TestOpenDatabaseUnknownDriver(t *testing.T) {
	_, err := OpenDatabase(context.Background(), config.DatabaseConfig{Driver: "mysql"})
	assert.Error(t, err)
}
