package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON []byte

// Config holds the application configuration
type Config struct {
	Runner      RunnerConfig      `json:"runner"`
	GreenScreen GreenScreenConfig `json:"greenscreen"`
	Vision      VisionConfig      `json:"vision"`
	Output      OutputConfig      `json:"output"`
	History     HistoryConfig     `json:"history"`
	Server      ServerConfig      `json:"server"`
	Log         LogConfig         `json:"log"`
}

// RunnerConfig holds batch execution settings
type RunnerConfig struct {
	Workers        int  `json:"workers"`
	TimeoutSeconds int  `json:"timeout_seconds"`
	SkipExisting   bool `json:"skip_existing"`
}

// GreenScreenConfig holds the chroma key window and the matting variant
type GreenScreenConfig struct {
	Variant       string `json:"variant"`
	HueMin        int    `json:"hue_min"`
	HueMax        int    `json:"hue_max"`
	SaturationMin int    `json:"saturation_min"`
	ValueMin      int    `json:"value_min"`
}

// VisionConfig holds the vision model connection for the vision-guided method
type VisionConfig struct {
	Backend  string `json:"backend"`
	URL      string `json:"url"`
	Model    string `json:"model"`
	SendSize int    `json:"send_size"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	DirName string `json:"dir_name"`
}

// HistoryConfig holds the locations of the folder history and the run store
type HistoryConfig struct {
	File   string `json:"file"`
	DBPath string `json:"db_path"`
}

// ServerConfig holds the HTTP listener settings
type ServerConfig struct {
	Addr string `json:"addr"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Runner: RunnerConfig{
			Workers:        1,
			TimeoutSeconds: 120,
		},
		GreenScreen: GreenScreenConfig{
			Variant:       "hybrid",
			HueMin:        35,
			HueMax:        85,
			SaturationMin: 40,
			ValueMin:      40,
		},
		Vision: VisionConfig{
			Backend:  "ollama",
			URL:      "http://localhost:11434",
			Model:    "qwen2.5vl:7b",
			SendSize: 768,
		},
		Output: OutputConfig{
			DirName: "output",
		},
		History: HistoryConfig{
			File:   ".rembg_history.json",
			DBPath: filepath.Join(configDir(), "runs.db"),
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8088",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Timeout returns the per-image timeout as a duration
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Runner.TimeoutSeconds) * time.Second
}

// Load reads the configuration at path, or at GetConfigPath() when path is
// empty. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = GetConfigPath()
	}
	cfg, err := LoadFromFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// LoadFromFile loads configuration from a JSON file. Keys absent from the
// file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := validateSchema(data); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", filename, err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", filename, err)
	}
	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the cross-field rules the schema cannot express
func (c *Config) Validate() error {
	if c.Runner.Workers < 1 {
		return fmt.Errorf("runner.workers must be at least 1")
	}

	if c.Runner.TimeoutSeconds < 0 {
		return fmt.Errorf("runner.timeout_seconds cannot be negative")
	}

	if c.GreenScreen.HueMin > c.GreenScreen.HueMax {
		return fmt.Errorf("greenscreen.hue_min must not exceed greenscreen.hue_max")
	}

	if c.Vision.URL != "" && !strings.HasPrefix(c.Vision.URL, "http://") && !strings.HasPrefix(c.Vision.URL, "https://") {
		return fmt.Errorf("vision.url must start with http:// or https://")
	}

	if strings.ContainsAny(c.Output.DirName, `/\`) {
		return fmt.Errorf("output.dir_name must be a plain folder name")
	}

	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	return filepath.Join(configDir(), "config.json")
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "rembg")
}

func validateSchema(data []byte) error {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", bytes.NewReader(schemaJSON)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("config does not match schema: %w", err)
	}
	return nil
}
