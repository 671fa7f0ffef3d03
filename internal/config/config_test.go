package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "5000", cfg.Server.Port)
	assert.Equal(t, StorageBackendDisk, cfg.Storage.Backend)
	assert.Equal(t, CameraPolicyQueue, cfg.Worker.CameraPolicy)
	assert.Equal(t, 2*time.Minute, cfg.Worker.Timeout)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("WORKER_TIMEOUT", "45s")
	t.Setenv("CAMERA_POLICY", "reject")
	t.Setenv("REHYDRATE_WORKERS", "8")
	t.Setenv("REDIS_ENABLED", "off")
	t.Setenv("DB_DRIVER", "pgx")

	cfg := Load()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 45*time.Second, cfg.Worker.Timeout)
	assert.Equal(t, CameraPolicyReject, cfg.Worker.CameraPolicy)
	assert.Equal(t, 8, cfg.Rehydrate.Workers)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "pgx", cfg.Database.Driver)
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("WORKER_TIMEOUT", "soon")
	t.Setenv("REHYDRATE_WORKERS", "many")

	cfg := Load()
	assert.Equal(t, 2*time.Minute, cfg.Worker.Timeout)
	assert.Equal(t, 4, cfg.Rehydrate.Workers)
}

func TestValidate(t *testing.T) {
	cfg := Load()
	cfg.Storage.Backend = StorageBackendS3
	assert.Error(t, cfg.Validate(), "s3 без бакета")

	cfg.Storage.S3.Bucket = "faces"
	assert.NoError(t, cfg.Validate())

	cfg.Worker.CameraPolicy = "share"
	assert.Error(t, cfg.Validate())

	cfg = Load()
	cfg.Rehydrate.Workers = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Rehydrate.Workers)
}

func TestGetDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: "5432", User: "u", Password: "p", DBName: "att", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=att sslmode=disable", db.GetDSN())
}
