// Package config holds server settings and loads the engine file that
// describes the ring and the scheduler tuning.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/me/ringflow/internal/scheduler"
	"github.com/me/ringflow/internal/topology"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds configuration for the RingFlow server.
type ServerConfig struct {
	Addr          string // Listen address (default ":8080")
	LogLevel      string // Log level: debug, info, warn, error
	LogFormat     string // Log format: text, json
	DBPath        string // SQLite database path (default ~/.ringflow/ringflow.db, ":memory:" for testing)
	ConfigFile    string // Engine file with topology and scheduler settings
	UpstreamURL   string // Release authority endpoint; empty releases everything
	ReleaseScript string // JavaScript release rule file, used when UpstreamURL is empty
	TraceFile     string // OpenTelemetry span output; empty disables tracing
}

// DefaultServerConfig returns sensible defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:       ":8080",
		LogLevel:   "info",
		LogFormat:  "text",
		ConfigFile: "ringflow.yaml",
	}
}

// File is the engine configuration file.
type File struct {
	Topology  topology.Config  `yaml:"topology"`
	Scheduler scheduler.Config `yaml:"scheduler"`
}

// Load reads and validates the engine file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes an engine file. Omitted scheduler settings keep their
// defaults; unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	f := &File{Scheduler: scheduler.DefaultConfig()}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if _, err := topology.New(f.Topology); err != nil {
		return nil, fmt.Errorf("topology: %w", err)
	}
	if err := f.Scheduler.Validate(); err != nil {
		return nil, fmt.Errorf("scheduler: %w", err)
	}
	return f, nil
}

// Ring builds the topology described by the file.
func (f *File) Ring() (*topology.Ring, error) {
	return topology.New(f.Topology)
}
