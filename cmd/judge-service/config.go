package main

import (
	"fmt"
	"os"
	"time"

	"judgehost/internal/common/cache"
	"judgehost/internal/common/mq"
	"judgehost/internal/common/storage"
	"judgehost/internal/common/ziputil"
	"judgehost/internal/judge/dispatcher"
	"judgehost/internal/judge/sandbox/engine"
	"judgehost/internal/judge/sandbox/profile"
	"judgehost/internal/judge/sandbox/spec"
	"judgehost/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	configEnv = "JUDGE_CONFIG"

	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultHealthAddr      = "0.0.0.0:9085"
	defaultReadTimeout     = 30 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultMaxUpload       = 64 << 20

	defaultSubmissionDir = "/sandbox-submissions"
	defaultBackupDir     = "/sandbox-backup"
	defaultTestdataRoot  = "/sandbox-testdata"

	defaultBackendAPI     = "http://web:8080"
	defaultBackendToken   = "KoNoSandboxDa"
	defaultBackendTimeout = 30 * time.Second
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	HealthAddr   string        `yaml:"healthAddr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
	MaxUpload    int64         `yaml:"maxUpload"`
}

// DispatcherConfig holds queue and concurrency settings.
type DispatcherConfig struct {
	QueueSize     int           `yaml:"queueSize"`
	MaxContainers int           `yaml:"maxContainers"`
	PollInterval  time.Duration `yaml:"pollInterval"`
	StaleTimeout  time.Duration `yaml:"staleTimeout"`
	Testing       bool          `yaml:"testing"`
}

// LimitConfig holds resource limits in the units the sandbox limiter takes.
type LimitConfig struct {
	TimeMs      int64 `yaml:"timeMs"`
	MemoryKB    int64 `yaml:"memoryKB"`
	OutputBytes int64 `yaml:"outputBytes"`
	Processes   int64 `yaml:"processes"`
}

// SandboxConfig holds docker engine settings.
type SandboxConfig struct {
	Host                 string        `yaml:"host"`
	ResultDir            string        `yaml:"resultDir"`
	WaitMultiplier       int           `yaml:"waitMultiplier"`
	MinWait              time.Duration `yaml:"minWait"`
	StdoutStderrMaxBytes int64         `yaml:"stdoutStderrMaxBytes"`
	PidsLimit            int64         `yaml:"pidsLimit"`
	MemoryHeadroomKB     int64         `yaml:"memoryHeadroomKB"`
	CleanupTimeout       time.Duration `yaml:"cleanupTimeout"`
	Compile              LimitConfig   `yaml:"compile"`
	Run                  LimitConfig   `yaml:"run"`
}

// StorageConfig holds local paths.
type StorageConfig struct {
	SubmissionDir     string `yaml:"submissionDir"`
	HostSubmissionDir string `yaml:"hostSubmissionDir"`
	BackupDir         string `yaml:"backupDir"`
	TestdataRoot      string `yaml:"testdataRoot"`
	MaxArchiveFiles   int    `yaml:"maxArchiveFiles"`
	MaxArchiveBytes   int64  `yaml:"maxArchiveBytes"`
}

// BackendConfig holds the grading backend endpoint.
type BackendConfig struct {
	API     string        `yaml:"api"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// NotifyConfig selects completion notice channels. Empty values disable a channel.
type NotifyConfig struct {
	RedisChannel string `yaml:"redisChannel"`
	KafkaTopic   string `yaml:"kafkaTopic"`
}

// ArchiveConfig controls uploading backups to object storage.
type ArchiveConfig struct {
	Enabled bool   `yaml:"enabled"`
	Prefix  string `yaml:"prefix"`
}

// AppConfig holds judge-service config.
type AppConfig struct {
	Server     ServerConfig           `yaml:"server"`
	Logger     logger.Config          `yaml:"logger"`
	Dispatcher DispatcherConfig       `yaml:"dispatcher"`
	Sandbox    SandboxConfig          `yaml:"sandbox"`
	Storage    StorageConfig          `yaml:"storage"`
	Backend    BackendConfig          `yaml:"backend"`
	Redis      cache.RedisConfig      `yaml:"redis"`
	Kafka      mq.KafkaConfig         `yaml:"kafka"`
	MinIO      storage.MinIOConfig    `yaml:"minio"`
	Notify     NotifyConfig           `yaml:"notify"`
	Archive    ArchiveConfig          `yaml:"archive"`
	Languages  []profile.LanguageSpec `yaml:"languages"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func resolveConfigPath(flagValue string) string {
	if env := os.Getenv(configEnv); env != "" {
		return env
	}
	return flagValue
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.HealthAddr == "" {
		cfg.Server.HealthAddr = defaultHealthAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Server.MaxUpload <= 0 {
		cfg.Server.MaxUpload = defaultMaxUpload
	}
	if cfg.Storage.SubmissionDir == "" {
		cfg.Storage.SubmissionDir = defaultSubmissionDir
	}
	if cfg.Storage.BackupDir == "" {
		cfg.Storage.BackupDir = defaultBackupDir
	}
	if cfg.Storage.TestdataRoot == "" {
		cfg.Storage.TestdataRoot = defaultTestdataRoot
	}
	if cfg.Backend.API == "" {
		cfg.Backend.API = defaultBackendAPI
	}
	if cfg.Backend.Token == "" {
		cfg.Backend.Token = defaultBackendToken
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = defaultBackendTimeout
	}
	if len(cfg.Languages) == 0 {
		cfg.Languages = profile.DefaultLanguages()
	}
}

func validateConfig(cfg *AppConfig) error {
	if cfg.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required")
	}
	if cfg.Dispatcher.QueueSize < 0 || cfg.Dispatcher.MaxContainers < 0 {
		return fmt.Errorf("dispatcher queueSize and maxContainers must not be negative")
	}
	if cfg.Archive.Enabled && cfg.MinIO.Endpoint == "" {
		return fmt.Errorf("archive requires minio endpoint")
	}
	if cfg.Archive.Enabled && cfg.MinIO.Bucket == "" {
		return fmt.Errorf("archive requires minio bucket")
	}
	if cfg.Notify.KafkaTopic != "" && len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka notifier requires brokers")
	}
	return nil
}

func (d DispatcherConfig) toDispatcherConfig(s StorageConfig) dispatcher.Config {
	return dispatcher.Config{
		SubmissionDir:     s.SubmissionDir,
		HostSubmissionDir: s.HostSubmissionDir,
		QueueSize:         d.QueueSize,
		MaxContainers:     d.MaxContainers,
		PollInterval:      d.PollInterval,
		StaleTimeout:      d.StaleTimeout,
		Testing:           d.Testing,
	}
}

func (s SandboxConfig) toEngineConfig() engine.Config {
	return engine.Config{
		Host:                 s.Host,
		ResultDir:            s.ResultDir,
		WaitMultiplier:       s.WaitMultiplier,
		MinWait:              s.MinWait,
		StdoutStderrMaxBytes: s.StdoutStderrMaxBytes,
		PidsLimit:            s.PidsLimit,
		MemoryHeadroomKB:     s.MemoryHeadroomKB,
		CleanupTimeout:       s.CleanupTimeout,
	}
}

// compileProfile overlays configured compile limits on the built-in ones.
func (s SandboxConfig) compileProfile() profile.TaskProfile {
	p := profile.DefaultCompileProfile()
	p.DefaultLimits = overlay(p.DefaultLimits, s.Compile)
	return p
}

func (s SandboxConfig) runProfile() profile.TaskProfile {
	p := profile.DefaultRunProfile()
	p.DefaultLimits = overlay(p.DefaultLimits, s.Run)
	return p
}

func overlay(base spec.ResourceLimit, l LimitConfig) spec.ResourceLimit {
	if l.TimeMs > 0 {
		base.TimeMs = l.TimeMs
	}
	if l.MemoryKB > 0 {
		base.MemoryKB = l.MemoryKB
	}
	if l.OutputBytes > 0 {
		base.OutputBytes = l.OutputBytes
	}
	if l.Processes > 0 {
		base.Processes = l.Processes
	}
	return base
}

func (s StorageConfig) archiveLimits() ziputil.Limits {
	return ziputil.Limits{MaxFiles: s.MaxArchiveFiles, MaxBytes: s.MaxArchiveBytes}
}
