// Package config holds the kernel's two configuration surfaces: the Jupyter
// connection file (fixed external JSON format, written by the client) and
// the kernel's own tuning knobs (defaults, optional YAML settings file, and
// IGO_* environment overrides).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConnectionInfo is the standard Jupyter connection file.
type ConnectionInfo struct {
	Transport       string `json:"transport"`
	IP              string `json:"ip"`
	ShellPort       int    `json:"shell_port"`
	IOPubPort       int    `json:"iopub_port"`
	StdinPort       int    `json:"stdin_port"`
	ControlPort     int    `json:"control_port"`
	HBPort          int    `json:"hb_port"`
	Key             string `json:"key"`
	SignatureScheme string `json:"signature_scheme"`
}

// LoadConnection reads and validates a connection file.
func LoadConnection(path string) (*ConnectionInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read connection file: %w", err)
	}
	var ci ConnectionInfo
	if err := json.Unmarshal(data, &ci); err != nil {
		return nil, fmt.Errorf("parse connection file %s: %w", path, err)
	}
	if ci.Transport == "" {
		ci.Transport = "tcp"
	}
	if ci.IP == "" {
		ci.IP = "127.0.0.1"
	}
	if ci.ShellPort == 0 || ci.IOPubPort == 0 || ci.HBPort == 0 {
		return nil, fmt.Errorf("connection file %s: shell, iopub and hb ports are required", path)
	}
	return &ci, nil
}

// Endpoint formats the bind address for one of the assigned ports.
func (c *ConnectionInfo) Endpoint(port int) string {
	return fmt.Sprintf("%s://%s:%d", c.Transport, c.IP, port)
}

// Tuning holds the execution pipeline's timing knobs.
type Tuning struct {
	// StreamChunkInterval is the minimum spacing between stream message
	// batches for a single stream.
	StreamChunkInterval time.Duration `yaml:"stream_chunk_interval"`

	// StreamDrainTimeout bounds the grace period for the stream publishers
	// to flush after a run completes, before the reply is sent.
	StreamDrainTimeout time.Duration `yaml:"stream_drain_timeout"`

	// RunDeadline bounds how long the handler waits for a fragment to
	// finish. On expiry the cell is reported as an error; the worker cannot
	// be preempted and is abandoned.
	RunDeadline time.Duration `yaml:"run_deadline"`

	// WorkerPoolSize caps the concurrent tasks one execute request may use:
	// the fragment run plus the stream publishers.
	WorkerPoolSize int `yaml:"worker_pool_size"`
}

// DefaultTuning returns the shipped defaults.
func DefaultTuning() Tuning {
	return Tuning{
		StreamChunkInterval: 10 * time.Millisecond,
		StreamDrainTimeout:  5 * time.Second,
		RunDeadline:         60 * time.Second,
		WorkerPoolSize:      4,
	}
}

// LoadTuning builds the tuning from defaults, an optional YAML settings file
// (empty path or missing file is fine), and IGO_* environment overrides, in
// that precedence order.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env overrides
		case err != nil:
			return t, fmt.Errorf("read settings file: %w", err)
		default:
			if err := yaml.Unmarshal(data, &t); err != nil {
				return t, fmt.Errorf("parse settings file %s: %w", path, err)
			}
		}
	}
	if err := t.applyEnv(); err != nil {
		return t, err
	}
	if err := t.validate(); err != nil {
		return t, err
	}
	return t, nil
}

func (t *Tuning) applyEnv() error {
	durations := map[string]*time.Duration{
		"IGO_STREAM_CHUNK_INTERVAL": &t.StreamChunkInterval,
		"IGO_STREAM_DRAIN_TIMEOUT":  &t.StreamDrainTimeout,
		"IGO_RUN_DEADLINE":          &t.RunDeadline,
	}
	for name, target := range durations {
		if raw := os.Getenv(name); raw != "" {
			d, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			*target = d
		}
	}
	if raw := os.Getenv("IGO_WORKER_POOL_SIZE"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("IGO_WORKER_POOL_SIZE: %w", err)
		}
		t.WorkerPoolSize = n
	}
	return nil
}

func (t *Tuning) validate() error {
	if t.StreamChunkInterval <= 0 {
		return fmt.Errorf("stream_chunk_interval must be positive, got %v", t.StreamChunkInterval)
	}
	if t.StreamDrainTimeout <= 0 {
		return fmt.Errorf("stream_drain_timeout must be positive, got %v", t.StreamDrainTimeout)
	}
	if t.RunDeadline <= 0 {
		return fmt.Errorf("run_deadline must be positive, got %v", t.RunDeadline)
	}
	if t.WorkerPoolSize < 3 {
		return fmt.Errorf("worker_pool_size must be at least 3 (one run, two stream drains), got %d", t.WorkerPoolSize)
	}
	return nil
}
