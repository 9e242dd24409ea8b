package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type LoggingCfg struct {
	Level        string `mapstructure:"level"`
	ConsoleLevel string `mapstructure:"console_level"`
	DebugFile    string `mapstructure:"debug_file"`
	InfoFile     string `mapstructure:"info_file"`
	Development  bool   `mapstructure:"development"`
	RunLog       string `mapstructure:"run_log"`
}

type InputCfg struct {
	DBType   string `mapstructure:"db_type"`
	FilePath string `mapstructure:"file_path"`
}

// FeaturesCfg controls how events are bucketed into feature vectors.
type FeaturesCfg struct {
	BucketWidth time.Duration `mapstructure:"bucket_width"`
	FillGaps    bool          `mapstructure:"fill_gaps"`
}

// ModelCfg holds isolation forest training parameters.
type ModelCfg struct {
	Contamination float64 `mapstructure:"contamination"`
	NumTrees      int     `mapstructure:"num_trees"`
	SampleSize    int     `mapstructure:"sample_size"`
	Seed          int64   `mapstructure:"seed"`
}

type ArtifactsCfg struct {
	ScalerPath string `mapstructure:"scaler_path"`
	ModelPath  string `mapstructure:"model_path"`
}

type InvestigateCfg struct {
	CriticalTypes []string `mapstructure:"critical_types"`
	TopSessions   int      `mapstructure:"top_sessions"`
}

// SeverityCfg holds the score cutoffs used to tier flagged buckets.
// Scores are negative for anomalies, so Critical < High < Medium < 0.
type SeverityCfg struct {
	Critical float64 `mapstructure:"critical"`
	High     float64 `mapstructure:"high"`
	Medium   float64 `mapstructure:"medium"`
}

type RealtimeCfg struct {
	LogPath      string        `mapstructure:"log_path"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	CursorFile   string        `mapstructure:"cursor_file"`
	FromStart    bool          `mapstructure:"from_start"`
}

type StoreCfg struct {
	Path string `mapstructure:"path"`
}

type ServerCfg struct {
	Addr      string `mapstructure:"addr"`
	AuthToken string `mapstructure:"auth_token"`
}

type OutputCfg struct {
	Dir        string `mapstructure:"dir"`
	RejectFile string `mapstructure:"reject_file"`
}

type Config struct {
	Version     string         `mapstructure:"version"`
	Input       InputCfg       `mapstructure:"input"`
	Features    FeaturesCfg    `mapstructure:"features"`
	Model       ModelCfg       `mapstructure:"model"`
	Artifacts   ArtifactsCfg   `mapstructure:"artifacts"`
	Investigate InvestigateCfg `mapstructure:"investigate"`
	Severity    SeverityCfg    `mapstructure:"severity"`
	Realtime    RealtimeCfg    `mapstructure:"realtime"`
	Store       StoreCfg       `mapstructure:"store"`
	Server      ServerCfg      `mapstructure:"server"`
	Output      OutputCfg      `mapstructure:"output"`
	Logging     LoggingCfg     `mapstructure:"logging"`
}

var cfg *Config

// DefaultCriticalTypes is the investigator allow-list used when none is configured.
var DefaultCriticalTypes = []string{"FATAL", "ERROR", "DISCONNECT", "CONNECT_RECEIVED", "CONNECT_AUTHORIZED"}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("version", "0.1")
	v.SetDefault("input.db_type", "postgres")
	v.SetDefault("features.bucket_width", "5m")
	v.SetDefault("features.fill_gaps", true)
	v.SetDefault("model.contamination", 0.01)
	v.SetDefault("model.num_trees", 100)
	v.SetDefault("model.sample_size", 256)
	v.SetDefault("model.seed", 42)
	v.SetDefault("artifacts.scaler_path", "trained_model/scaler.json")
	v.SetDefault("artifacts.model_path", "trained_model/model.json")
	v.SetDefault("investigate.critical_types", DefaultCriticalTypes)
	v.SetDefault("investigate.top_sessions", 5)
	v.SetDefault("severity.critical", -0.8)
	v.SetDefault("severity.high", -0.5)
	v.SetDefault("severity.medium", -0.2)
	v.SetDefault("realtime.poll_interval", "5s")
	v.SetDefault("realtime.cursor_file", "trained_model/cursor.json")
	v.SetDefault("store.path", "data/anomalies.db")
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console_level", "info")
}

// Load populates global config from a viper instance
func Load(v *viper.Viper) error {
	SetDefaults(v)
	v.SetEnvPrefix("ANOMR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	cfg = &c
	return nil
}

// Validate checks the settings the pipeline cannot run without.
func (c *Config) Validate() error {
	if c.Features.BucketWidth <= 0 {
		return fmt.Errorf("features.bucket_width must be positive, got %s", c.Features.BucketWidth)
	}
	if c.Model.Contamination <= 0 || c.Model.Contamination > 0.5 {
		return fmt.Errorf("model.contamination must be in (0, 0.5], got %v", c.Model.Contamination)
	}
	if c.Model.NumTrees <= 0 {
		return fmt.Errorf("model.num_trees must be positive, got %d", c.Model.NumTrees)
	}
	if c.Model.SampleSize < 2 {
		return fmt.Errorf("model.sample_size must be at least 2, got %d", c.Model.SampleSize)
	}
	if c.Realtime.PollInterval <= 0 {
		return fmt.Errorf("realtime.poll_interval must be positive, got %s", c.Realtime.PollInterval)
	}
	s := c.Severity
	if !(s.Critical <= s.High && s.High <= s.Medium && s.Medium <= 0) {
		return fmt.Errorf("severity bands must satisfy critical <= high <= medium <= 0, got %v/%v/%v",
			s.Critical, s.High, s.Medium)
	}
	return nil
}

func Get() *Config {
	if cfg == nil {
		v := viper.New()
		SetDefaults(v)
		var c Config
		_ = v.Unmarshal(&c)
		cfg = &c
	}
	return cfg
}
