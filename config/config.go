// Package config loads tool configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk tool configuration.
type Config struct {
	// DatabasePath locates the graph database file.
	DatabasePath string `yaml:"database_path"`

	// DisassemblyRoot is the directory holding one disassembled tree per
	// source, named after the source.
	DisassemblyRoot string `yaml:"disassembly_root"`

	// ClassDenylist suppresses classes by descriptor prefix during
	// ingestion. Useful for dropping bulk library namespaces.
	ClassDenylist []string `yaml:"class_denylist"`

	// SourceDenylist names sources ingest-all skips entirely.
	SourceDenylist []string `yaml:"source_denylist"`

	// IngestWorkers bounds how many sources ingest-all parses at once.
	IngestWorkers int `yaml:"ingest_workers"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		DatabasePath:    "graph.db",
		DisassemblyRoot: "disassembly",
		IngestWorkers:   4,
	}
}

// Load reads the YAML file at path, filling unset fields with defaults. A
// missing file yields the defaults; a malformed one is an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = Default().DatabasePath
	}
	if cfg.DisassemblyRoot == "" {
		cfg.DisassemblyRoot = Default().DisassemblyRoot
	}
	if cfg.IngestWorkers <= 0 {
		cfg.IngestWorkers = Default().IngestWorkers
	}
	return cfg, nil
}

// Denied reports whether a class descriptor matches the denylist.
func (c Config) Denied(name string) bool {
	for _, prefix := range c.ClassDenylist {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// SkipSource reports whether a source name is denylisted.
func (c Config) SkipSource(name string) bool {
	for _, s := range c.SourceDenylist {
		if s == name {
			return true
		}
	}
	return false
}

// SourceDir returns the disassembly tree for a source name.
func (c Config) SourceDir(source string) string {
	return filepath.Join(c.DisassemblyRoot, source)
}
