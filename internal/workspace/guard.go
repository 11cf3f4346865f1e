// Package workspace implements the workspace guard: discovery of the
// project a tool call is operating within, and the allow/deny path check
// the gateway runs before ever consulting the control plane.
package workspace

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// maxUpwardHops bounds how far detect walks toward the filesystem root
// before giving up.
const maxUpwardHops = 10

// markerPriority is checked in order at each directory; the first marker
// found wins even if a lower-priority marker also exists there.
var markerPriority = []string{".safeclaw.json", ".git", "package.json"}

// Config is the resolved workspace configuration: a root directory plus
// the allow/deny path sets that govern filesystem access within it.
type Config struct {
	Root         string   `json:"root"`
	AllowedPaths []string `json:"allowedPaths"`
	DeniedPaths  []string `json:"deniedPaths"`
}

// fileConfig is the on-disk shape of .safeclaw.json, which uses
// unexpanded (possibly `~`-relative) path forms.
type fileConfig struct {
	AllowedPaths []string `json:"allowedPaths"`
	DeniedPaths  []string `json:"deniedPaths"`
}

// Detect walks upward from startDir looking for a workspace marker,
// stopping after maxUpwardHops parent directories. It returns the
// directory where a marker was found and the resolved Config, or ok=false
// if no marker was found within the hop budget.
func Detect(startDir string) (root string, cfg Config, ok bool) {
	dir := startDir
	for hop := 0; hop <= maxUpwardHops; hop++ {
		if marker := findMarkerAt(dir); marker != "" {
			if marker == ".safeclaw.json" {
				loaded, err := loadConfig(filepath.Join(dir, marker), dir)
				if err == nil {
					return dir, loaded, true
				}
				// Fall through to default synthesis if the file is
				// present but unreadable/malformed.
			}
			return dir, defaultConfig(dir), true
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break // reached the filesystem root
		}
		dir = parent
	}
	return "", Config{}, false
}

// findMarkerAt returns the highest-priority marker name present in dir,
// or "" if none of the recognized markers exist there.
func findMarkerAt(dir string) string {
	for _, marker := range markerPriority {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return marker
		}
	}
	return ""
}

// loadConfig reads and expands a .safeclaw.json found at path, anchoring
// relative entries at root.
func loadConfig(path, root string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return Config{}, err
	}
	return Config{
		Root:         root,
		AllowedPaths: expandAll(fc.AllowedPaths),
		DeniedPaths:  expandAll(fc.DeniedPaths),
	}, nil
}

// defaultConfig synthesizes the config used when a project root was found
// via .git or package.json but no explicit .safeclaw.json exists: allow
// the whole root subtree, deny a short list of home-directory credential
// directories.
func defaultConfig(root string) Config {
	home, err := os.UserHomeDir()
	var denied []string
	if err == nil {
		denied = []string{
			filepath.Join(home, ".ssh"),
			filepath.Join(home, ".aws"),
			filepath.Join(home, ".gnupg"),
			filepath.Join(home, ".kube"),
		}
	}
	return Config{
		Root:         root,
		AllowedPaths: []string{root},
		DeniedPaths:  denied,
	}
}

// expandAll applies `~` expansion to each path in paths.
func expandAll(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = expandHome(p)
	}
	return out
}

// expandHome replaces a leading `~` with the user's home directory.
func expandHome(p string) string {
	if p == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
		return p
	}
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

// IsAllowed reports whether filePath may be accessed under cfg. With a
// nil cfg (no workspace config resolved at all) the guard is a no-op and
// always returns true. Deny wins over allow: a denied path or any of its
// strict subdirectories is always rejected, even if also covered by an
// allowed path.
func IsAllowed(filePath string, cfg *Config) bool {
	if cfg == nil {
		return true
	}

	abs, err := filepath.Abs(filePath)
	if err != nil {
		return false
	}
	abs = filepath.Clean(abs)

	for _, denied := range cfg.DeniedPaths {
		if withinOrEqual(abs, denied) {
			return false
		}
	}
	for _, allowed := range cfg.AllowedPaths {
		if withinOrEqual(abs, allowed) {
			return true
		}
	}
	return false
}

// withinOrEqual reports whether path equals base or is a strict
// subdirectory of it, comparing cleaned absolute paths.
func withinOrEqual(path, base string) bool {
	base = filepath.Clean(base)
	if path == base {
		return true
	}
	return strings.HasPrefix(path, base+string(filepath.Separator))
}
