// Package config loads the JSON configuration file, seeding it with defaults
// on first run. Environment variables take precedence over the file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	DataDir  string `json:"data_dir"`
	LogLevel string `json:"log_level"`
	Backend  struct {
		URL               string `json:"url"`
		ReconnectAttempts int    `json:"reconnect_attempts"`
		ReconnectInterval int    `json:"reconnect_interval_seconds"`
	} `json:"backend"`
	Store struct {
		Kind  string `json:"kind"`
		URL   string `json:"url"`
		Token string `json:"token"`
	} `json:"store"`
	Engine struct {
		StaleTimeout  int `json:"stale_timeout_seconds"`
		SweepInterval int `json:"sweep_interval_seconds"`
		HistoryTokens int `json:"history_tokens"`
	} `json:"engine"`
	LLM struct {
		BaseURL     string  `json:"base_url"`
		APIKey      string  `json:"api_key"`
		Model       string  `json:"model"`
		MaxTokens   int     `json:"max_tokens"`
		Temperature float32 `json:"temperature"`
	} `json:"llm"`
	Identity struct {
		Owner string `json:"owner"`
	} `json:"identity"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".coachline"),
		LogLevel: "info",
	}
	cfg.Backend.URL = "ws://127.0.0.1:8848/ws"
	cfg.Backend.ReconnectAttempts = 3
	cfg.Backend.ReconnectInterval = 2
	cfg.Store.Kind = "file"
	cfg.Engine.StaleTimeout = 30
	cfg.Engine.SweepInterval = 5
	cfg.Engine.HistoryTokens = 4096
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.MaxTokens = 64
	cfg.LLM.Temperature = 0.3
	cfg.Identity.Owner = "local"

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	// Override from env (highest precedence)
	if url := os.Getenv("COACHLINE_BACKEND_URL"); url != "" {
		cfg.Backend.URL = url
	}
	if kind := os.Getenv("COACHLINE_STORE_KIND"); kind != "" {
		cfg.Store.Kind = kind
	}
	if url := os.Getenv("COACHLINE_STORE_URL"); url != "" {
		cfg.Store.URL = url
	}
	if token := os.Getenv("COACHLINE_STORE_TOKEN"); token != "" {
		cfg.Store.Token = token
	}
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.LLM.BaseURL = baseURL
	}

	switch cfg.Store.Kind {
	case "file", "remote":
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}
	return cfg, nil
}

// Save writes the config to path atomically, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	return writeAtomic(path, data)
}

// ToMap converts the config to a nested map via its JSON form.
func ToMap(cfg *Config) (map[string]any, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return m, nil
}

// ListValues returns the config as a flat dot-keyed map, masking secret
// values when mask is true.
func ListValues(cfg *Config, mask bool) (map[string]any, error) {
	m, err := ToMap(cfg)
	if err != nil {
		return nil, err
	}
	flat := Flatten(m)
	if mask {
		flat = MaskSecrets(flat)
	}
	return flat, nil
}

// GetValue returns one value by dot-separated key. The file is created with
// defaults first if it does not exist, and keys outside the Config struct
// are still visible.
func GetValue(path, key string) (any, error) {
	if _, err := Load(path); err != nil {
		return nil, err
	}
	nested, err := readNested(path)
	if err != nil {
		return nil, err
	}
	flat := Flatten(nested)
	v, ok := flat[key]
	if !ok {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}
	return v, nil
}

// SetValue updates one value by dot-separated key and rewrites the file.
// Values that parse as JSON (numbers, booleans) are stored typed, everything
// else as a string. Unknown keys are created.
func SetValue(path, key, value string) error {
	nested, err := readNested(path)
	if err != nil {
		return err
	}
	flat := Flatten(nested)
	flat[key] = coerce(value)

	data, err := json.MarshalIndent(Unflatten(flat), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func readNested(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var nested map[string]any
	if err := json.Unmarshal(data, &nested); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return nested, nil
}

func coerce(value string) any {
	var v any
	if err := json.Unmarshal([]byte(value), &v); err == nil {
		switch v.(type) {
		case float64, bool:
			return v
		}
	}
	return value
}
