// Package workspace owns the on-disk layout: a root directory holding
// shared settings and one directory per analysis run, into which stage
// artifacts are published atomically.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	BaseDirName = ".novel_signals"
	EnvRoot     = "NSIG_WORKSPACE"
)

// Settings are workspace-wide defaults, seeded once and overridable by
// environment and flags.
type Settings struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	Jobs                int     `json:"jobs"`
}

// EnsureDefault resolves the workspace root from NSIG_WORKSPACE, or
// falls back to ~/.novel_signals, and makes sure it exists.
func EnsureDefault() (string, error) {
	if base := strings.TrimSpace(os.Getenv(EnvRoot)); base != "" {
		return EnsureAt(base)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return EnsureAt(filepath.Join(home, BaseDirName))
}

// EnsureAt creates the workspace skeleton under base and seeds the
// settings file on first use.
func EnsureAt(base string) (string, error) {
	paths := []string{
		filepath.Join(base, "configs"),
		filepath.Join(base, "runs"),
	}

	for _, p := range paths {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return "", fmt.Errorf("mkdir %s: %w", p, err)
		}
	}

	settingsPath := filepath.Join(base, "configs", "settings.json")
	if _, err := os.Stat(settingsPath); os.IsNotExist(err) {
		defaults := Settings{
			ConfidenceThreshold: 0.3,
			Jobs:                0,
		}
		raw, marshalErr := json.MarshalIndent(defaults, "", "  ")
		if marshalErr != nil {
			return "", fmt.Errorf("marshal settings: %w", marshalErr)
		}
		if writeErr := os.WriteFile(settingsPath, raw, 0o644); writeErr != nil {
			return "", fmt.Errorf("write settings: %w", writeErr)
		}
	}

	return base, nil
}

// LoadSettings reads the seeded settings file back.
func LoadSettings(base string) (Settings, error) {
	raw, err := os.ReadFile(filepath.Join(base, "configs", "settings.json"))
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	var s Settings
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings: %w", err)
	}
	return s, nil
}
