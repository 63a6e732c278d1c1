// Package config loads console settings from defaults, an optional JSON
// file at $XDG_CONFIG_HOME/ocrdesk/config.json, and OCRDESK_* environment
// variables, in that order of increasing precedence.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	Server  ServerConfig
	Poll    PollConfig
	Stream  StreamConfig
	Storage StorageConfig
	Log     LogConfig
}

type ServerConfig struct {
	BaseURL string
}

type PollConfig struct {
	Interval time.Duration
}

type StreamConfig struct {
	RetryInterval time.Duration
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Server:  ServerConfig{BaseURL: "http://127.0.0.1:8080"},
		Poll:    PollConfig{Interval: 2500 * time.Millisecond},
		Stream:  StreamConfig{RetryInterval: 2 * time.Second},
		Storage: StorageConfig{DataDir: defaultDataDir()},
		Log:     LogConfig{Level: "info"},
	}
}

// keySpec maps one flat config key to its file name, env variable and
// struct field.
type keySpec struct {
	key   string
	env   string
	apply func(cfg *Config, v string) error
}

var specs = []keySpec{
	{
		key: "server.base_url", env: "OCRDESK_SERVER_BASE_URL",
		apply: func(cfg *Config, v string) error { cfg.Server.BaseURL = v; return nil },
	},
	{
		key: "poll.interval_ms", env: "OCRDESK_POLL_INTERVAL_MS",
		apply: func(cfg *Config, v string) error {
			ms, err := strconv.Atoi(v)
			if err != nil || ms <= 0 {
				return fmt.Errorf("invalid poll interval %q", v)
			}
			cfg.Poll.Interval = time.Duration(ms) * time.Millisecond
			return nil
		},
	},
	{
		key: "stream.retry_ms", env: "OCRDESK_STREAM_RETRY_MS",
		apply: func(cfg *Config, v string) error {
			ms, err := strconv.Atoi(v)
			if err != nil || ms <= 0 {
				return fmt.Errorf("invalid stream retry %q", v)
			}
			cfg.Stream.RetryInterval = time.Duration(ms) * time.Millisecond
			return nil
		},
	},
	{
		key: "storage.data_dir", env: "OCRDESK_DATA_DIR",
		apply: func(cfg *Config, v string) error { cfg.Storage.DataDir = v; return nil },
	},
	{
		key: "log.level", env: "OCRDESK_LOG_LEVEL",
		apply: func(cfg *Config, v string) error { cfg.Log.Level = v; return nil },
	},
}

// Load reads configuration from the JSON file and environment.
func Load() (Config, error) {
	return loadWith(readConfigFile(configFilePath()), os.Getenv)
}

func loadWith(file map[string]string, getenv func(string) string) (Config, error) {
	cfg := defaults()

	for _, spec := range specs {
		if v, ok := file[spec.key]; ok && v != "" {
			if err := spec.apply(&cfg, v); err != nil {
				return Config{}, fmt.Errorf("config file %s: %w", spec.key, err)
			}
		}
	}
	for _, spec := range specs {
		if v := getenv(spec.env); v != "" {
			if err := spec.apply(&cfg, v); err != nil {
				return Config{}, fmt.Errorf("%s: %w", spec.env, err)
			}
		}
	}
	return cfg, nil
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "ocrdesk", "config.json")
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "ocrdesk-data"
		}
	}
	return filepath.Join(dir, "ocrdesk")
}

// readConfigFile loads the flat string map; a missing or unreadable file is
// the same as an empty one.
func readConfigFile(path string) map[string]string {
	out := make(map[string]string)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", path, err)
		}
		return out
	}
	if err := json.Unmarshal(data, &out); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse config file %s: %v. Using default values.\n", path, err)
	}
	return out
}
