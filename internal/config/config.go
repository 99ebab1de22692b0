// Package config loads engine configuration from an optional YAML
// file and BILINE_* environment variables, with defaults matching the
// engine's tuning constants.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Translate TranslateConfig `mapstructure:"translate"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Watch     WatchConfig     `mapstructure:"watch"`
	Render    RenderConfig    `mapstructure:"render"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TranslateConfig struct {
	Provider     string        `mapstructure:"provider"`
	Endpoint     string        `mapstructure:"endpoint"`
	Model        string        `mapstructure:"model"`
	APIKey       string        `mapstructure:"api_key"`
	SourceLang   string        `mapstructure:"source_lang"`
	TargetLang   string        `mapstructure:"target_lang"`
	Style        string        `mapstructure:"style"`
	CustomPrompt string        `mapstructure:"custom_prompt"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

type PipelineConfig struct {
	QueueCapacity int           `mapstructure:"queue_capacity"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	BatchSize     int           `mapstructure:"batch_size"`
	MaxRetries    int           `mapstructure:"max_retries"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

type DiscoveryConfig struct {
	MinLength  int     `mapstructure:"min_length"`
	MaxLength  int     `mapstructure:"max_length"`
	AutoDetect bool    `mapstructure:"auto_detect"`
	AboveRatio float64 `mapstructure:"above_ratio"`
	BelowRatio float64 `mapstructure:"below_ratio"`
}

type WatchConfig struct {
	MutationDebounce time.Duration `mapstructure:"mutation_debounce"`
	ScrollShort      time.Duration `mapstructure:"scroll_short"`
	ScrollLong       time.Duration `mapstructure:"scroll_long"`
	ScrollThreshold  float64       `mapstructure:"scroll_threshold"`
	RescanMin        time.Duration `mapstructure:"rescan_min"`
	RescanMax        time.Duration `mapstructure:"rescan_max"`
	BacklogHardCap   int           `mapstructure:"backlog_hard_cap"`
}

type RenderConfig struct {
	TranslationOnly bool `mapstructure:"translation_only"`
	Dark            bool `mapstructure:"dark"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("translate.provider", "openai")
	v.SetDefault("translate.source_lang", "auto")
	v.SetDefault("translate.target_lang", "zh")
	v.SetDefault("translate.style", "accurate")
	v.SetDefault("translate.timeout", 90*time.Second)

	v.SetDefault("pipeline.queue_capacity", 100)
	v.SetDefault("pipeline.max_concurrent", 6)
	v.SetDefault("pipeline.batch_size", 1)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.retry_delay", time.Second)

	v.SetDefault("discovery.min_length", 2)
	v.SetDefault("discovery.max_length", 5000)
	v.SetDefault("discovery.auto_detect", true)
	v.SetDefault("discovery.above_ratio", 0.5)
	v.SetDefault("discovery.below_ratio", 1.5)

	v.SetDefault("watch.mutation_debounce", 200*time.Millisecond)
	v.SetDefault("watch.scroll_short", 50*time.Millisecond)
	v.SetDefault("watch.scroll_long", 100*time.Millisecond)
	v.SetDefault("watch.scroll_threshold", 200.0)
	v.SetDefault("watch.rescan_min", 2*time.Second)
	v.SetDefault("watch.rescan_max", 8*time.Second)
	v.SetDefault("watch.backlog_hard_cap", 80)
}

// Load reads the config file at path, or only defaults and env when
// path is empty.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BILINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Translate.APIKey == "" {
		cfg.Translate.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return cfg, nil
}
