// Package config holds the DDG builder's tunable constants. §9 flags
// the 8 KiB stack window as a hard-coded assumption that "will
// misclassify large frames; surface it as a configurable bound" — this
// package is that surface.
package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the two constants named in §6, plus the size of the
// forward walker's Reanalyze cache.
type Config struct {
	// MaxBBLAnalyzeTimes bounds how many times the forward walker will
	// re-pop the same run (§4.D). Spec default: 40.
	MaxBBLAnalyzeTimes int `yaml:"max_bbl_analyze_times"`
	// StackWindowBytes bounds how far below the entry stack pointer an
	// address is still considered part of the stack (§4.C). Spec
	// default: 8192.
	StackWindowBytes uint64 `yaml:"stack_window_bytes"`
	// ReanalyzeCacheSize bounds the number of distinct (run, state)
	// Reanalyze results the forward walker keeps in its LRU (not part
	// of the source's constants; an addition for the Go engine's
	// bounded re-analysis cache, see pkg/ir.CachingRun).
	ReanalyzeCacheSize int `yaml:"reanalyze_cache_size"`
}

// DefaultConfig matches the constants fixed in the source: §6.
func DefaultConfig() *Config {
	return &Config{
		MaxBBLAnalyzeTimes: 40,
		StackWindowBytes:   8192,
		ReanalyzeCacheSize: 256,
	}
}

// Load reads an optional YAML override file and applies it on top of
// DefaultConfig. A zero or missing field in the file keeps the default.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, err
	}
	if override.MaxBBLAnalyzeTimes != 0 {
		cfg.MaxBBLAnalyzeTimes = override.MaxBBLAnalyzeTimes
	}
	if override.StackWindowBytes != 0 {
		cfg.StackWindowBytes = override.StackWindowBytes
	}
	if override.ReanalyzeCacheSize != 0 {
		cfg.ReanalyzeCacheSize = override.ReanalyzeCacheSize
	}
	return cfg, nil
}
