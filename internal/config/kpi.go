package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	OutlierStrategyAdjust  = "adjust"
	OutlierStrategyExclude = "exclude"
)

// KPIConfig holds the tunables of the KPI pipeline that operators change at runtime.
type KPIConfig struct {
	OutlierK        float64       `mapstructure:"outlierK"`
	OutlierStrategy string        `mapstructure:"outlierStrategy"`
	Timezone        string        `mapstructure:"timezone"`
	MetricKeys      []string      `mapstructure:"metricKeys"`
	DedupWindow     time.Duration `mapstructure:"dedupWindow"`
	// DefaultThresholds is written at startup for metrics that have no threshold yet.
	DefaultThresholds map[string]ThresholdLevels `mapstructure:"defaultThresholds"`
}

type ThresholdLevels struct {
	Warning  float64 `mapstructure:"warning"`
	Critical float64 `mapstructure:"critical"`
}

func DefaultKPIConfig() KPIConfig {
	return KPIConfig{
		OutlierK:        1.0,
		OutlierStrategy: OutlierStrategyAdjust,
		Timezone:        "UTC",
		MetricKeys:      []string{"time", "rotation", "stock", "sales", "ticket"},
		DedupWindow:     time.Hour,
	}
}

// Location resolves the configured timezone, falling back to UTC.
func (c KPIConfig) Location() *time.Location {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AllowsMetric reports whether key is on the metric allow-list.
func (c KPIConfig) AllowsMetric(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, allowed := range c.MetricKeys {
		if strings.ToLower(strings.TrimSpace(allowed)) == key {
			return true
		}
	}
	return false
}

type KPIConfigHolder struct {
	current atomic.Value // holds KPIConfig
}

// StaticKPIConfig returns a holder that never reloads.
func StaticKPIConfig(cfg KPIConfig) *KPIConfigHolder {
	holder := &KPIConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewKPIConfigHolder(log *zap.Logger) (*KPIConfigHolder, error) {
	v := viper.New()

	if path := strings.TrimSpace(os.Getenv("OPSPULSE_KPI_CONFIG")); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("kpi")
		v.SetConfigType("yml")
		v.AddConfigPath("/var/lib/opspulse/config")
		v.AddConfigPath("/etc/opspulse")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("OPSPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return newKPIConfigHolder(v, log)
}

func newKPIConfigHolder(v *viper.Viper, log *zap.Logger) (*KPIConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.kpi")

	defaults := DefaultKPIConfig()
	v.SetDefault("kpi.outlierK", defaults.OutlierK)
	v.SetDefault("kpi.outlierStrategy", defaults.OutlierStrategy)
	v.SetDefault("kpi.timezone", defaults.Timezone)
	v.SetDefault("kpi.metricKeys", defaults.MetricKeys)
	v.SetDefault("kpi.dedupWindow", defaults.DedupWindow)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodeKPIConfig(v)
	if err != nil {
		return nil, err
	}
	if err := validateKPIConfig(cfg); err != nil {
		return nil, err
	}

	holder := StaticKPIConfig(cfg)
	if !fileLoaded {
		return holder, nil
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeKPIConfig(v)
		if err != nil {
			log.Warn("kpi config reload failed", zap.Error(err))
			return
		}
		if err := validateKPIConfig(updated); err != nil {
			log.Warn("invalid kpi config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("kpi config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

// decodeKPIConfig unmarshals through AllSettings so file values merge with defaults.
func decodeKPIConfig(v *viper.Viper) (KPIConfig, error) {
	var file struct {
		KPI KPIConfig `mapstructure:"kpi"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return KPIConfig{}, err
	}
	return file.KPI, nil
}

func (h *KPIConfigHolder) Get() KPIConfig {
	if h == nil {
		return DefaultKPIConfig()
	}
	cfg, ok := h.current.Load().(KPIConfig)
	if !ok {
		return DefaultKPIConfig()
	}
	return cfg
}

func validateKPIConfig(cfg KPIConfig) error {
	if cfg.OutlierK <= 0 {
		return errors.New("kpi.outlierK must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.OutlierStrategy)) {
	case OutlierStrategyAdjust, OutlierStrategyExclude:
	default:
		return errors.New("kpi.outlierStrategy must be adjust or exclude")
	}
	if len(cfg.MetricKeys) == 0 {
		return errors.New("kpi.metricKeys cannot be empty")
	}
	if cfg.DedupWindow <= 0 {
		return errors.New("kpi.dedupWindow must be positive")
	}
	if _, err := time.LoadLocation(strings.TrimSpace(cfg.Timezone)); err != nil {
		return errors.New("kpi.timezone is not a valid IANA zone")
	}
	for key, levels := range cfg.DefaultThresholds {
		if !cfg.AllowsMetric(key) {
			return fmt.Errorf("kpi.defaultThresholds.%s is not an allowed metric", key)
		}
		if levels.Warning < 0 || levels.Critical < 0 || levels.Warning >= levels.Critical {
			return fmt.Errorf("kpi.defaultThresholds.%s must satisfy 0 <= warning < critical", key)
		}
	}
	return nil
}
