package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/xxxsen/common/logger"
)

const (
	EnvJWTSecret   = "SEMSIM_JWT_SECRET"
	EnvDBDSN       = "SEMSIM_DB_DSN"
	EnvS3SecretKey = "SEMSIM_S3_SECRET_KEY"
)

type Config struct {
	Port           int              `json:"port"`
	JWTSecret      string           `json:"jwt_secret"`
	JWTTTLHours    int              `json:"jwt_ttl_hours"`
	LogConfig      logger.LogConfig `json:"log_config"`
	Model          ModelConfig      `json:"model"`
	Finetune       FinetuneConfig   `json:"finetune"`
	Cache          CacheConfig      `json:"cache"`
	Database       DatabaseConfig   `json:"database"`
	FileStore      FileStoreConfig  `json:"file_store"`
	Retention      RetentionConfig  `json:"retention"`
	// AllowedOrigins restricts CORS; empty allows any origin.
	AllowedOrigins []string         `json:"allowed_origins"`
}

type ModelConfig struct {
	BaseModelName string `json:"base_model_name"`
	SnapshotDir   string `json:"snapshot_dir"`
	LoadVersion   string `json:"load_version"`
	VocabSize     int    `json:"vocab_size"`
	HiddenSize    int    `json:"hidden_size"`
	MaxSeqLength  int    `json:"max_seq_length"`
	Seed          int64  `json:"seed"`
}

type FinetuneConfig struct {
	OutputDir              string  `json:"output_dir"`
	CheckpointInterval     int     `json:"checkpoint_interval"`
	LearningRate           float64 `json:"learning_rate"`
	BatchSize              int     `json:"batch_size"`
	NumEpochs              int     `json:"num_epochs"`
	ShutdownTimeoutSeconds int     `json:"shutdown_timeout_seconds"`
	AutoDeploy             bool    `json:"auto_deploy"`
	Optimizer              string  `json:"optimizer"`
	GradClip               float64 `json:"grad_clip"`
	SubmitIntervalSeconds  int     `json:"submit_interval_seconds"`
}

type CacheConfig struct {
	Size       int `json:"size"`
	TTLSeconds int `json:"ttl_seconds"`
}

// DatabaseConfig is optional. Without a dsn or host the dataset and embedding
// cache tables are not used.
type DatabaseConfig struct {
	DSN            string `json:"dsn"`
	Host           string `json:"host"`
	Port           int    `json:"port"`
	User           string `json:"user"`
	Password       string `json:"password"`
	DBName         string `json:"dbname"`
	SSLMode        string `json:"sslmode"`
	MaxOpenConns   int    `json:"max_open_conns"`
	EmbeddingCache bool   `json:"embedding_cache"`
	CacheMaxDays   int    `json:"cache_max_days"`
}

// Enabled reports whether a database connection is configured.
func (c DatabaseConfig) Enabled() bool {
	return c.DSN != "" || c.Host != ""
}

// FileStoreConfig is optional. Data is decoded by the selected store.
type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type RetentionConfig struct {
	Spec    string `json:"spec"`
	MaxKeep int    `json:"max_keep"`
}

// Load reads the json config, overlays secrets from the environment (and a
// .env file next to the config, if present) and applies defaults.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := LoadEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}
	applyEnv(&cfg)
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadEnv loads a dotenv file without overriding variables already set.
// A missing file is not an error.
func LoadEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvJWTSecret)); v != "" {
		cfg.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvDBDSN)); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvS3SecretKey)); v != "" && strings.EqualFold(cfg.FileStore.Type, "s3") {
		data, _ := cfg.FileStore.Data.(map[string]interface{})
		if data == nil {
			data = map[string]interface{}{}
		}
		data["secret_key"] = v
		cfg.FileStore.Data = data
	}
}

func (cfg *Config) normalize() error {
	if cfg.Port == 0 {
		return fmt.Errorf("port is required")
	}
	if cfg.JWTSecret == "" {
		return fmt.Errorf("jwt_secret is required")
	}
	if cfg.Model.SnapshotDir == "" {
		return fmt.Errorf("model.snapshot_dir is required")
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 72
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Model.BaseModelName == "" {
		cfg.Model.BaseModelName = "semsim-base"
	}
	if cfg.Model.VocabSize == 0 {
		cfg.Model.VocabSize = 30522
	}
	if cfg.Model.HiddenSize == 0 {
		cfg.Model.HiddenSize = 128
	}
	if cfg.Model.MaxSeqLength == 0 {
		cfg.Model.MaxSeqLength = 128
	}
	if cfg.Model.Seed == 0 {
		cfg.Model.Seed = 42
	}
	if cfg.Finetune.OutputDir == "" {
		cfg.Finetune.OutputDir = cfg.Model.SnapshotDir
	}
	if cfg.Finetune.CheckpointInterval <= 0 {
		cfg.Finetune.CheckpointInterval = 1
	}
	if cfg.Finetune.LearningRate <= 0 {
		cfg.Finetune.LearningRate = 2e-5
	}
	if cfg.Finetune.BatchSize <= 0 {
		cfg.Finetune.BatchSize = 16
	}
	if cfg.Finetune.NumEpochs <= 0 {
		cfg.Finetune.NumEpochs = 3
	}
	if cfg.Finetune.ShutdownTimeoutSeconds <= 0 {
		cfg.Finetune.ShutdownTimeoutSeconds = 30
	}
	if cfg.Finetune.Optimizer == "" {
		cfg.Finetune.Optimizer = "adam"
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = 4096
	}
	if cfg.Cache.TTLSeconds == 0 {
		cfg.Cache.TTLSeconds = 3600
	}
	if cfg.Database.Host != "" && cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.CacheMaxDays == 0 {
		cfg.Database.CacheMaxDays = 30
	}
	if cfg.Retention.Spec == "" {
		cfg.Retention.Spec = "0 3 * * *"
	}
	if cfg.Retention.MaxKeep < 0 {
		return fmt.Errorf("retention.max_keep must not be negative")
	}
	switch strings.ToLower(cfg.FileStore.Type) {
	case "", "local", "s3":
	default:
		return fmt.Errorf("file_store.type must be local or s3")
	}
	return nil
}
