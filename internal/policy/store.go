package policy

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// VersionInfo summarizes one backup file found by ListVersions.
type VersionInfo struct {
	Version   int
	SavedAt   time.Time
	RuleCount int
	Name      string
}

var versionDigitsRe = regexp.MustCompile(`\d+`)

// versionInt extracts the integer embedded in a version string like "v3"
// or "3" or "version-3"; missing digits default to 0.
func versionInt(version string) int {
	digits := versionDigitsRe.FindString(version)
	if digits == "" {
		return 0
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

// Load reads and parses the Document at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("policy: load: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("policy: load: parse %s: %w", path, err)
	}
	return &doc, nil
}

// Save writes doc to path. If a document already exists at path, its
// content is first backed up to "<path>.v<N>" (N taken from its current
// version string), then doc's version is bumped to "v<N+1>" before it is
// atomically written to path. Backups are never deleted by Save: only
// Rollback reads them, and only a user deleting them by hand removes
// them.
func Save(path string, doc *Document) error {
	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("policy: save: read existing: %w", err)
	}

	nextVersion := 1
	if err == nil {
		var prior Document
		if jsonErr := json.Unmarshal(existing, &prior); jsonErr == nil {
			n := versionInt(prior.Version)
			backupPath := fmt.Sprintf("%s.v%d", path, n)
			if writeErr := os.WriteFile(backupPath, existing, 0o600); writeErr != nil {
				return fmt.Errorf("policy: save: write backup: %w", writeErr)
			}
			nextVersion = n + 1
		}
	}

	doc.Version = fmt.Sprintf("v%d", nextVersion)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("policy: save: marshal: %w", err)
	}

	return writeAtomic(path, data)
}

// ListVersions scans path's directory for backup files named exactly
// "<base>.v<integer>", parses each, and reports a summary sorted by
// descending version number.
func ListVersions(path string) ([]VersionInfo, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("policy: list versions: %w", err)
	}

	prefix := base + ".v"
	var out []VersionInfo
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		suffix := name[len(prefix):]
		n, err := strconv.Atoi(suffix)
		if err != nil {
			continue // not exactly <base>.v<integer>
		}

		info, err := de.Info()
		if err != nil {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		var doc Document
		ruleCount := 0
		docName := ""
		if json.Unmarshal(data, &doc) == nil {
			ruleCount = len(doc.Rules)
			docName = doc.Name
		}

		out = append(out, VersionInfo{
			Version:   n,
			SavedAt:   info.ModTime(),
			RuleCount: ruleCount,
			Name:      docName,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out, nil
}

// LoadVersion loads "<path>.v<N>".
func LoadVersion(path string, n int) (*Document, error) {
	return Load(fmt.Sprintf("%s.v%d", path, n))
}

// Rollback loads "<path>.vN" and re-saves it through Save, so the restored
// content becomes a brand-new forward version rather than reviving the old
// version number.
func Rollback(path string, n int) (*Document, error) {
	doc, err := LoadVersion(path, n)
	if err != nil {
		return nil, fmt.Errorf("policy: rollback: %w", err)
	}
	if err := Save(path, doc); err != nil {
		return nil, fmt.Errorf("policy: rollback: save: %w", err)
	}
	return doc, nil
}

// writeAtomic writes data to path via a temp-file-plus-rename swap with
// owner-only permissions, matching the atomic-replace discipline used
// throughout the rest of the store.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".policy-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
