// Package registry persists the set of known MCP services and model servers.
package registry

import (
	"encoding/json"
	"fmt"
	"os"
)

// Entry is one registered endpoint: a tool-providing service or a model server.
type Entry struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Enabled bool   `json:"enabled"`
}

// Config is the persisted registry.
type Config struct {
	Services []Entry `json:"services"`
	Models   []Entry `json:"models"`
}

// Default returns the built-in registry written on first run.
func Default() Config {
	return Config{
		Services: []Entry{
			{Name: "Gmail", URL: "http://localhost:8000", Enabled: true},
			{Name: "Discord", URL: "http://localhost:8001", Enabled: true},
			{Name: "SQL", URL: "http://localhost:8002", Enabled: true},
			{Name: "ManusMCP", URL: "http://localhost:8003", Enabled: true},
			{Name: "Slack", URL: "http://localhost:8004", Enabled: true},
			{Name: "Twitter", URL: "http://localhost:8003", Enabled: true},
			{Name: "Bluesky", URL: "http://localhost:8004", Enabled: true},
			{Name: "Telegram", URL: "http://localhost:8005", Enabled: true},
			{Name: "Signal", URL: "http://localhost:8006", Enabled: true},
			{Name: "Reddit", URL: "http://localhost:8007", Enabled: true},
			{Name: "Notion", URL: "http://localhost:8008", Enabled: true},
			{Name: "Google Drive", URL: "http://localhost:8009", Enabled: true},
		},
		Models: []Entry{
			{Name: "Gemma3-27B", URL: "http://localhost:7000", Enabled: true},
			{Name: "QWQ-32B", URL: "http://localhost:7001", Enabled: true},
		},
	}
}

// Load reads the registry from path. A missing file is not an error: the
// default registry is written to path and returned. A malformed file fails
// the whole load.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		def := Default()
		if err := Save(path, def); err != nil {
			return Config{}, fmt.Errorf("seed default config: %w", err)
		}
		return def, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save overwrites path with cfg as 4-space-indented JSON, the same on-disk
// format the file is hand-edited in. No locking: concurrent writers may race,
// which is accepted for a manually edited file.
func Save(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Enabled returns only the entries whose enabled flag is set. Disabled entries
// are invisible to probing, aggregation, and broadcasting.
func Enabled(entries []Entry) []Entry {
	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.Enabled {
			out = append(out, e)
		}
	}
	return out
}
