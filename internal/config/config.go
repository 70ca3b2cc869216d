package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Object    ObjectConfig    `yaml:"object" mapstructure:"object"`
	Queue     QueueConfig     `yaml:"queue" mapstructure:"queue"`
	Launcher  LauncherConfig  `yaml:"launcher" mapstructure:"launcher"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Planner   PlannerConfig   `yaml:"planner" mapstructure:"planner"`
	Worker    WorkerConfig    `yaml:"worker" mapstructure:"worker"`
	Markdown  MarkdownConfig  `yaml:"markdown" mapstructure:"markdown"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the relational store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ObjectConfig configures the object store.
type ObjectConfig struct {
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Region    string `yaml:"region" mapstructure:"region"`
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
}

// QueueConfig configures the trigger-message queue consumer.
type QueueConfig struct {
	URL            string `yaml:"url" mapstructure:"url"`
	MaxMessages    int    `yaml:"max_messages" mapstructure:"max_messages"`
	WaitTimeSecs   int    `yaml:"wait_time_secs" mapstructure:"wait_time_secs"`
	VisibilitySecs int    `yaml:"visibility_secs" mapstructure:"visibility_secs"`
}

// LauncherConfig configures the container launcher for worker tasks.
type LauncherConfig struct {
	Cluster        string   `yaml:"cluster" mapstructure:"cluster"`
	TaskDefinition string   `yaml:"task_definition" mapstructure:"task_definition"`
	Container      string   `yaml:"container" mapstructure:"container"`
	Subnets        []string `yaml:"subnets" mapstructure:"subnets"`
	SecurityGroups []string `yaml:"security_groups" mapstructure:"security_groups"`
	AssignPublicIP bool     `yaml:"assign_public_ip" mapstructure:"assign_public_ip"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	ExtractModel      string  `yaml:"extract_model" mapstructure:"extract_model"`
	ScoreModel        string  `yaml:"score_model" mapstructure:"score_model"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// PlannerConfig configures batch planning.
type PlannerConfig struct {
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// WorkerConfig configures batch processing inside one worker invocation.
type WorkerConfig struct {
	Concurrency    int `yaml:"concurrency" mapstructure:"concurrency"`
	StuckAfterMins int `yaml:"stuck_after_mins" mapstructure:"stuck_after_mins"`
}

// MarkdownConfig configures the markdown normalizer.
type MarkdownConfig struct {
	MaxChars int `yaml:"max_chars" mapstructure:"max_chars"`
}

// ServerConfig configures the ops HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LEADQUAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("object.region", "us-east-1")
	v.SetDefault("queue.max_messages", 50)
	v.SetDefault("queue.wait_time_secs", 10)
	v.SetDefault("queue.visibility_secs", 300)
	v.SetDefault("launcher.container", "leadqual-worker")
	v.SetDefault("anthropic.extract_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.score_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.requests_per_second", 2)
	v.SetDefault("planner.batch_size", 250)
	v.SetDefault("worker.concurrency", 8)
	v.SetDefault("worker.stuck_after_mins", 30)
	v.SetDefault("markdown.max_chars", 60000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
