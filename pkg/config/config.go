package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the main configuration struct combining all sub-configs
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	API       APIConfig       `mapstructure:"api"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Playbooks PlaybookConfig  `mapstructure:"playbooks"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// DatabaseConfig selects and tunes the backing store
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // "sqlite" or "postgres"
	Path     string `mapstructure:"path"` // sqlite file path or ":memory:"
	URL      string `mapstructure:"url"`  // full postgres connection string
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

// APIConfig holds the HTTP surface configuration
type APIConfig struct {
	Addr string `mapstructure:"addr"`
}

// ExecutorConfig tunes the worker pool and subprocess lifecycle
type ExecutorConfig struct {
	WorkerPoolSize       int           `mapstructure:"worker_pool_size"`
	PlaybookBin          string        `mapstructure:"playbook_bin"`
	KillGrace            time.Duration `mapstructure:"kill_grace"`
	TaskTimeout          time.Duration `mapstructure:"task_timeout"` // 0 disables
	ProgressRetention    time.Duration `mapstructure:"progress_retention"`
	SerializePerServer   bool          `mapstructure:"serialize_per_server"`
}

// PlaybookConfig holds system-wide playbook path defaults
type PlaybookConfig struct {
	DefaultUpdate string `mapstructure:"default_update"`
	NightRestart  string `mapstructure:"night_restart"`
	DockerUpdate  string `mapstructure:"docker_update"`
	Action        string `mapstructure:"action"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `mapstructure:"level"`
	JSON  bool   `mapstructure:"json"`
}

// bareEnvAliases maps the documented flat environment variables onto viper
// keys. Applied with Set, so when both forms are present the bare name wins
// over the CORRAL_-prefixed one and over the config file.
var bareEnvAliases = map[string]string{
	"WORKER_POOL_SIZE":                "executor.worker_pool_size",
	"SUBPROCESS_KILL_GRACE_SECONDS":   "executor.kill_grace_seconds",
	"TASK_PROGRESS_RETENTION_SECONDS": "executor.progress_retention_seconds",
	"TASK_TIMEOUT_SECONDS":            "executor.task_timeout_seconds",
	"SERIALIZE_PER_SERVER":            "executor.serialize_per_server",
	"ANSIBLE_PLAYBOOK_BIN":            "executor.playbook_bin",
	"DEFAULT_UPDATE_PLAYBOOK":         "playbooks.default_update",
	"NIGHT_RESTART_PLAYBOOK":          "playbooks.night_restart",
	"DOCKER_UPDATE_PLAYBOOK":          "playbooks.docker_update",
	"ACTION_PLAYBOOK":                 "playbooks.action",
	"DATABASE_URL":                    "database.url",
	"API_ADDR":                        "api.addr",
}

// LoadConfig loads configuration from multiple sources with priority:
// 1. Environment variables (highest priority)
// 2. Config file (config.yaml)
// 3. Defaults (lowest priority)
func LoadConfig(configPath string) (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/corral")
	}

	v.SetEnvPrefix("CORRAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for env, key := range bareEnvAliases {
		if val := os.Getenv(env); val != "" {
			v.Set(key, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applySecondsAliases(v, &cfg)
	SetDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applySecondsAliases converts the *_SECONDS integer knobs into durations
func applySecondsAliases(v *viper.Viper, cfg *Config) {
	if s := v.GetInt("executor.kill_grace_seconds"); s > 0 {
		cfg.Executor.KillGrace = time.Duration(s) * time.Second
	}
	if s := v.GetInt("executor.progress_retention_seconds"); s > 0 {
		cfg.Executor.ProgressRetention = time.Duration(s) * time.Second
	}
	if s := v.GetInt("executor.task_timeout_seconds"); s > 0 {
		cfg.Executor.TaskTimeout = time.Duration(s) * time.Second
	}
}

// SetDefaults fills in defaults for any unset values
func SetDefaults(cfg *Config) {
	if cfg.Database.Type == "" {
		if cfg.Database.URL != "" {
			cfg.Database.Type = "postgres"
		} else {
			cfg.Database.Type = "sqlite"
		}
	}
	if cfg.Database.Type == "sqlite" && cfg.Database.Path == "" {
		cfg.Database.Path = "corral.db"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.API.Addr == "" {
		cfg.API.Addr = ":8080"
	}
	if cfg.Executor.WorkerPoolSize <= 0 {
		cfg.Executor.WorkerPoolSize = 4
	}
	if cfg.Executor.PlaybookBin == "" {
		cfg.Executor.PlaybookBin = "ansible-playbook"
	}
	if cfg.Executor.KillGrace <= 0 {
		cfg.Executor.KillGrace = 10 * time.Second
	}
	if cfg.Executor.ProgressRetention <= 0 {
		cfg.Executor.ProgressRetention = 60 * time.Second
	}
	if cfg.Playbooks.DefaultUpdate == "" {
		cfg.Playbooks.DefaultUpdate = "playbooks/update.yml"
	}
	if cfg.Playbooks.NightRestart == "" {
		cfg.Playbooks.NightRestart = "playbooks/night-restart.yml"
	}
	if cfg.Playbooks.DockerUpdate == "" {
		cfg.Playbooks.DockerUpdate = "playbooks/docker-update.yml"
	}
	if cfg.Playbooks.Action == "" {
		cfg.Playbooks.Action = "playbooks/action.yml"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// Validate checks configuration consistency
func Validate(cfg *Config) error {
	switch cfg.Database.Type {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
	if cfg.Executor.WorkerPoolSize > 64 {
		return fmt.Errorf("worker_pool_size %d is unreasonably large", cfg.Executor.WorkerPoolSize)
	}
	return nil
}
