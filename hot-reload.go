// hot-reload.go: dynamic configuration with Argus integration
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package concur

import (
	"fmt"
	"sync"
	"time"

	"github.com/agilira/argus"
)

// HotConfig watches a configuration file and hot-swaps the tunables
// returned by GetConfig. No constructor reads HotConfig itself: a
// reloaded Config reaches a structure only when GetConfig's result is
// passed to NewNWFMapWithConfig or NewCollectorWithConfig, and it is
// never applied to an already constructed structure.
type HotConfig struct {
	watcher *argus.Watcher
	mu      sync.RWMutex
	config  Config

	// OnReload is called after configuration is successfully reloaded.
	// This callback is optional and must be fast and non-blocking.
	OnReload func(oldConfig, newConfig Config)
}

// HotConfigOptions configures hot reload behavior.
type HotConfigOptions struct {
	// ConfigPath is the path to the configuration file to watch.
	// Supports JSON, YAML, TOML, HCL, INI, Properties formats.
	ConfigPath string

	// PollInterval is how often to check for configuration changes.
	// Default: 1 second. Minimum: 100ms.
	PollInterval time.Duration

	// OnReload is called after configuration is successfully reloaded.
	OnReload func(oldConfig, newConfig Config)

	// Logger is accepted for hot reload operations; HotConfig does not
	// store it or log through it.
	Logger Logger
}

// NewHotConfig creates a new hot-reloadable configuration. It starts
// watching the configuration file immediately.
//
// Example configuration file (YAML):
//
//	concur:
//	  hazard_pointers: 4
//	  min_table_size: 16
//	  reprobe_base: 10
//	  bounded_fifo_capacity: 2048
//
// Supported configuration keys:
//   - concur.hazard_pointers (int): HazardPointersPerThread
//   - concur.min_table_size (int): NWFMap's MinTableSize
//   - concur.reprobe_base (int): NWFMap's ReprobeBase
//   - concur.bounded_fifo_capacity (int): BoundedFIFOCapacity
func NewHotConfig(opts HotConfigOptions) (*HotConfig, error) {
	if opts.ConfigPath == "" {
		return nil, fmt.Errorf("config_path is required")
	}

	if opts.PollInterval == 0 {
		opts.PollInterval = 1 * time.Second
	} else if opts.PollInterval < 100*time.Millisecond {
		opts.PollInterval = 100 * time.Millisecond
	}

	if opts.Logger == nil {
		opts.Logger = NoOpLogger{}
	}

	hc := &HotConfig{
		OnReload: opts.OnReload,
		config:   DefaultConfig(),
	}

	argusConfig := argus.Config{
		PollInterval: opts.PollInterval,
	}

	watcher, err := argus.UniversalConfigWatcherWithConfig(opts.ConfigPath, hc.handleConfigChange, argusConfig)
	if err != nil {
		return nil, err
	}
	hc.watcher = watcher

	return hc, nil
}

// Start begins watching the configuration file for changes.
func (hc *HotConfig) Start() error {
	if hc.watcher.IsRunning() {
		return nil
	}
	return hc.watcher.Start()
}

// Stop stops watching the configuration file.
func (hc *HotConfig) Stop() error {
	return hc.watcher.Stop()
}

// GetConfig returns the current configuration (thread-safe).
func (hc *HotConfig) GetConfig() Config {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.config
}

// handleConfigChange is called by Argus when configuration changes.
func (hc *HotConfig) handleConfigChange(configData map[string]interface{}) {
	hc.mu.Lock()
	oldConfig := hc.config
	newConfig := hc.parseConfig(configData)
	hc.config = newConfig
	hc.mu.Unlock()

	if hc.OnReload != nil {
		hc.OnReload(oldConfig, newConfig)
	}
}

// parsePositiveInt extracts a positive integer from interface{} value.
// Supports both int and float64 types (YAML/JSON may vary).
func parsePositiveInt(value interface{}) (int, bool) {
	switch v := value.(type) {
	case int:
		if v > 0 {
			return v, true
		}
	case float64:
		if v > 0 {
			return int(v), true
		}
	}
	return 0, false
}

// parseConfig extracts tunables from Argus config data.
func (hc *HotConfig) parseConfig(data map[string]interface{}) Config {
	config := DefaultConfig()

	section, ok := data["concur"].(map[string]interface{})
	if !ok {
		if _, hasKey := data["hazard_pointers"]; hasKey {
			section = data
		} else {
			return config
		}
	}

	if v, ok := parsePositiveInt(section["hazard_pointers"]); ok {
		config.HazardPointersPerThread = v
	}
	if v, ok := parsePositiveInt(section["min_table_size"]); ok {
		config.MinTableSize = nextPowerOfTwo(v)
	}
	if v, ok := parsePositiveInt(section["reprobe_base"]); ok {
		config.ReprobeBase = v
	}
	if v, ok := parsePositiveInt(section["bounded_fifo_capacity"]); ok {
		config.BoundedFIFOCapacity = nextPowerOfTwo(v)
	}

	return config
}
