package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full engine configuration.
type Config struct {
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Blend       BlendConfig       `yaml:"blend" mapstructure:"blend"`
	Evidence    EvidenceConfig    `yaml:"evidence" mapstructure:"evidence"`
	DryRun      DryRunConfig      `yaml:"dry_run" mapstructure:"dry_run"`
	Drift       DriftConfig       `yaml:"drift" mapstructure:"drift"`
	Calibration CalibrationConfig `yaml:"calibration" mapstructure:"calibration"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// BlendConfig carries the signal weights and routing thresholds. It is
// passed into blend calls explicitly so historical decisions can be
// replayed with the configuration in force when they were made.
type BlendConfig struct {
	RuleWeight  float64 `yaml:"rule_weight" mapstructure:"rule_weight"`
	MLWeight    float64 `yaml:"ml_weight" mapstructure:"ml_weight"`
	LLMWeight   float64 `yaml:"llm_weight" mapstructure:"llm_weight"`
	AutoPostMin float64 `yaml:"auto_post_min" mapstructure:"auto_post_min"`
	ReviewMin   float64 `yaml:"review_min" mapstructure:"review_min"`
	LLMMin      float64 `yaml:"llm_min" mapstructure:"llm_min"`
}

// EvidenceConfig carries the rule-candidate promotion thresholds.
type EvidenceConfig struct {
	MinObs  int64   `yaml:"min_obs" mapstructure:"min_obs"`
	MinConf float64 `yaml:"min_conf" mapstructure:"min_conf"`
	MaxVar  float64 `yaml:"max_var" mapstructure:"max_var"`
	// ConflictShare is the fraction of a vendor's observations a runner-up
	// account must hold before the vendor is flagged conflicting.
	ConflictShare float64 `yaml:"conflict_share" mapstructure:"conflict_share"`
}

// DryRunConfig configures impact simulation sampling.
type DryRunConfig struct {
	SampleSize int `yaml:"sample_size" mapstructure:"sample_size"`
	MinSample  int `yaml:"min_sample" mapstructure:"min_sample"`
}

// DriftConfig configures the drift monitor.
type DriftConfig struct {
	Bins           int     `yaml:"bins" mapstructure:"bins"`
	PSIWarn        float64 `yaml:"psi_warn" mapstructure:"psi_warn"`
	PSIAlert       float64 `yaml:"psi_alert" mapstructure:"psi_alert"`
	MinNewRecords  int     `yaml:"min_new_records" mapstructure:"min_new_records"`
	MinElapsedDays int     `yaml:"min_elapsed_days" mapstructure:"min_elapsed_days"`
	WebhookURL     string  `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// CalibrationConfig configures ECE binning and fit selection.
type CalibrationConfig struct {
	Bins        int     `yaml:"bins" mapstructure:"bins"`
	MinBinCount int     `yaml:"min_bin_count" mapstructure:"min_bin_count"`
	HoldoutFrac float64 `yaml:"holdout_frac" mapstructure:"holdout_frac"`
}

// LLMConfig configures the optional LLM signal source.
type LLMConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	Retries     int     `yaml:"retries" mapstructure:"retries"`
}

// ServerConfig configures the review API server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("DECISION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "decision.db")
	v.SetDefault("blend.rule_weight", 0.55)
	v.SetDefault("blend.ml_weight", 0.35)
	v.SetDefault("blend.llm_weight", 0.10)
	v.SetDefault("blend.auto_post_min", 0.90)
	v.SetDefault("blend.review_min", 0.75)
	v.SetDefault("blend.llm_min", 0.70)
	v.SetDefault("evidence.min_obs", 3)
	v.SetDefault("evidence.min_conf", 0.85)
	v.SetDefault("evidence.max_var", 0.08)
	v.SetDefault("evidence.conflict_share", 0.25)
	v.SetDefault("dry_run.sample_size", 500)
	v.SetDefault("dry_run.min_sample", 50)
	v.SetDefault("drift.bins", 10)
	v.SetDefault("drift.psi_warn", 0.10)
	v.SetDefault("drift.psi_alert", 0.22)
	v.SetDefault("drift.min_new_records", 1000)
	v.SetDefault("drift.min_elapsed_days", 7)
	v.SetDefault("calibration.bins", 10)
	v.SetDefault("calibration.min_bin_count", 100)
	v.SetDefault("calibration.holdout_frac", 0.2)
	v.SetDefault("llm.model", "claude-haiku-4-5-20251001")
	v.SetDefault("llm.timeout_secs", 8)
	v.SetDefault("llm.rate_per_sec", 2)
	v.SetDefault("llm.retries", 1)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
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
