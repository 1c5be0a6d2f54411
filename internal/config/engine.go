package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EngineConfig holds reconciliation-engine tunables that operators may adjust
// without a restart: import chunk size, per-country VAT overrides, and the
// invoice reference pattern used to locate concept invoices.
type EngineConfig struct {
	ImportChunkSize  int            `mapstructure:"importChunkSize"`
	HeaderScanRows   int            `mapstructure:"headerScanRows"`
	InferSampleRows  int            `mapstructure:"inferSampleRows"`
	VATOverrides     map[string]int `mapstructure:"vatOverrides"`
	InvoiceReference string         `mapstructure:"invoiceReference"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ImportChunkSize:  500,
		HeaderScanRows:   50,
		InferSampleRows:  200,
		VATOverrides:     map[string]int{},
		InvoiceReference: `(?i)\bweek\s*(\d{1,2})\s*-\s*(\d{4})\s*\(\s*([A-Z0-9 -]+?)\s*\)`,
	}
}

// EngineConfigHolder exposes the current EngineConfig and hot-reloads it when
// the config file changes on disk.
type EngineConfigHolder struct {
	current atomic.Value // holds EngineConfig
}

func NewEngineConfigHolder() (*EngineConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("tollsync")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/tollsync/config") // Volume-mounted config
	v.AddConfigPath("/etc/tollsync")            // System config
	v.AddConfigPath(".")                        // Current directory (dev mode)

	v.SetEnvPrefix("TOLLSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		defaults := DefaultEngineConfig()
		v.SetDefault("engine.importChunkSize", defaults.ImportChunkSize)
		v.SetDefault("engine.headerScanRows", defaults.HeaderScanRows)
		v.SetDefault("engine.inferSampleRows", defaults.InferSampleRows)
		v.SetDefault("engine.vatOverrides", defaults.VATOverrides)
		v.SetDefault("engine.invoiceReference", defaults.InvoiceReference)
	}

	var cfg EngineConfig
	if err := v.UnmarshalKey("engine", &cfg); err != nil {
		return nil, err
	}
	applyEngineDefaults(&cfg)
	if err := validateEngineConfig(cfg); err != nil {
		return nil, err
	}

	holder := &EngineConfigHolder{}
	holder.current.Store(cfg)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated EngineConfig
		if err := v.UnmarshalKey("engine", &updated); err != nil {
			log.Printf("[engine-config] reload failed: %v", err)
			return
		}
		applyEngineDefaults(&updated)
		if err := validateEngineConfig(updated); err != nil {
			log.Printf("[engine-config] invalid config ignored: %v", err)
			return
		}
		holder.current.Store(updated)
		log.Printf("[engine-config] reloaded from %s", e.Name)
	})

	return holder, nil
}

// NewStaticEngineConfigHolder wraps a fixed config without file watching.
func NewStaticEngineConfigHolder(cfg EngineConfig) *EngineConfigHolder {
	applyEngineDefaults(&cfg)
	holder := &EngineConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *EngineConfigHolder) Get() EngineConfig {
	return h.current.Load().(EngineConfig)
}

func applyEngineDefaults(cfg *EngineConfig) {
	defaults := DefaultEngineConfig()
	if cfg.ImportChunkSize == 0 {
		cfg.ImportChunkSize = defaults.ImportChunkSize
	}
	if cfg.HeaderScanRows == 0 {
		cfg.HeaderScanRows = defaults.HeaderScanRows
	}
	if cfg.InferSampleRows == 0 {
		cfg.InferSampleRows = defaults.InferSampleRows
	}
	if cfg.InvoiceReference == "" {
		cfg.InvoiceReference = defaults.InvoiceReference
	}
	if cfg.VATOverrides == nil {
		cfg.VATOverrides = map[string]int{}
	}
}

func validateEngineConfig(cfg EngineConfig) error {
	if cfg.ImportChunkSize < 1 {
		return errors.New("engine.importChunkSize must be positive")
	}
	for code, rate := range cfg.VATOverrides {
		if len(code) != 2 {
			return errors.New("engine.vatOverrides keys must be ISO-2 country codes")
		}
		if rate < 0 || rate > 100 {
			return errors.New("engine.vatOverrides rates must be within [0,100]")
		}
	}
	return nil
}
