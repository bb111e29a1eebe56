// Package config loads querynerd configuration from YAML with sane
// defaults, so a missing config file still yields a runnable setup.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the full querynerd configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Memory  MemoryConfig  `yaml:"memory"`
	Agent   AgentConfig   `yaml:"agent"`
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the model client shared by the perception and
// decision collaborators.
type LLMConfig struct {
	APIKey         string  `yaml:"api_key"`
	Model          string  `yaml:"model"`
	BaseURL        string  `yaml:"base_url"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	Temperature    float64 `yaml:"temperature"`
}

// MemoryConfig configures the long-term store.
type MemoryConfig struct {
	DBPath string `yaml:"db_path"`
}

// AgentConfig configures the control loop.
type AgentConfig struct {
	Name             string `yaml:"name"`
	Strategy         string `yaml:"strategy"`
	PerceptionPrompt string `yaml:"perception_prompt"`
	DecisionPrompt   string `yaml:"decision_prompt"`
}

// LoggingConfig configures diagnostic logging.
type LoggingConfig struct {
	Debug      bool     `yaml:"debug"`
	Level      string   `yaml:"level"`
	Categories []string `yaml:"categories"`
	Dir        string   `yaml:"dir"`
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, ".querynerd")
	return &Config{
		LLM: LLMConfig{
			Model:          "gemini-2.0-flash",
			BaseURL:        "https://generativelanguage.googleapis.com/v1beta",
			TimeoutSeconds: 120,
			Temperature:    0.2,
		},
		Memory: MemoryConfig{
			DBPath: filepath.Join(base, "memory.db"),
		},
		Agent: AgentConfig{
			Name:     "query-agent",
			Strategy: "exploratory",
		},
		Logging: LoggingConfig{
			Level: "debug",
			Dir:   filepath.Join(base, "logs"),
		},
	}
}

// Load reads configuration from path, falling back to defaults when the
// file does not exist. The GEMINI_API_KEY environment variable overrides
// the file's api_key when set.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		cfg.LLM.APIKey = key
	}
	return cfg, nil
}

// DefaultPath is where Load looks when the user passes no --config flag.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".querynerd", "config.yaml")
}
