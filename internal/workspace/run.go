package workspace

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// RunDir creates the directory one run publishes its artifacts into:
// <root>/runs/<novel_id>/<run_id>/.
func RunDir(root, novelID, runID string) (string, error) {
	dir := filepath.Join(root, "runs", sanitizeID(novelID), sanitizeID(runID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create run dir: %w", err)
	}
	return dir, nil
}

// SaveArtifact serializes v and publishes it as <name>.json using a
// write-then-rename so a reader never observes partial JSON. It returns
// the published path.
func SaveArtifact(runDir, name string, v any) (string, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}
	final := filepath.Join(runDir, name+".json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return "", fmt.Errorf("publish %s: %w", name, err)
	}
	return final, nil
}

// SaveReport publishes the run report under its fixed name. Saving it
// after the stage artifacts marks the run directory complete.
func SaveReport(runDir string, v any) (string, error) {
	return SaveArtifact(runDir, "run", v)
}

// LoadArtifact reads a published artifact back into out.
func LoadArtifact(runDir, name string, out any) error {
	raw, err := os.ReadFile(filepath.Join(runDir, name+".json"))
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse %s: %w", name, err)
	}
	return nil
}

// NovelIDFor derives a stable novel id from a title or source file
// name, so repeated runs of the same manuscript land under one novel.
func NovelIDFor(title string) string {
	trimmed := strings.TrimSpace(strings.ToLower(title))
	sum := sha256.Sum256([]byte(trimmed))
	return "novel_" + hex.EncodeToString(sum[:])[:12]
}

// sanitizeID keeps ids usable as path segments.
func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "unnamed"
	}
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
