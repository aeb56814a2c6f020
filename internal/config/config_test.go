package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{"port": 8080, "jwt_secret": "s", "model": {"snapshot_dir": "/tmp/models"}}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "info", cfg.LogConfig.Level)
	require.Equal(t, 72, cfg.JWTTTLHours)
	require.Equal(t, "/tmp/models", cfg.Finetune.OutputDir)
	require.Equal(t, 2e-5, cfg.Finetune.LearningRate)
	require.Equal(t, 16, cfg.Finetune.BatchSize)
	require.Equal(t, 3, cfg.Finetune.NumEpochs)
	require.Equal(t, 1, cfg.Finetune.CheckpointInterval)
	require.Equal(t, "adam", cfg.Finetune.Optimizer)
	require.Equal(t, 128, cfg.Model.MaxSeqLength)
	require.Equal(t, "0 3 * * *", cfg.Retention.Spec)
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "missing port", body: `{"jwt_secret": "s", "model": {"snapshot_dir": "/tmp"}}`},
		{name: "missing secret", body: `{"port": 1, "model": {"snapshot_dir": "/tmp"}}`},
		{name: "missing snapshot dir", body: `{"port": 1, "jwt_secret": "s"}`},
		{name: "bad store", body: `{"port": 1, "jwt_secret": "s", "model": {"snapshot_dir": "/tmp"}, "file_store": {"type": "ftp"}}`},
		{name: "bad json", body: `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, t.TempDir(), tt.body))
			require.Error(t, err)
		})
	}
}

func TestLoadEnvOverlay(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"port": 1, "model": {"snapshot_dir": "/tmp"}, "file_store": {"type": "s3", "data": {"bucket": "b"}}}`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SEMSIM_JWT_SECRET=from-dotenv\n"), 0o644))
	t.Setenv(EnvJWTSecret, "placeholder")
	require.NoError(t, os.Unsetenv(EnvJWTSecret))
	t.Setenv(EnvDBDSN, "postgres://localhost/semsim")
	t.Setenv(EnvS3SecretKey, "s3-secret")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "from-dotenv", cfg.JWTSecret)
	require.Equal(t, "postgres://localhost/semsim", cfg.Database.DSN)
	data := cfg.FileStore.Data.(map[string]interface{})
	require.Equal(t, "s3-secret", data["secret_key"])
	require.Equal(t, "b", data["bucket"])
}

func TestLoadEnvMissingFile(t *testing.T) {
	require.NoError(t, LoadEnv(filepath.Join(t.TempDir(), ".env")))
}
