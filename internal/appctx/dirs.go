package appctx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Dirs maps base directory variables to absolute paths.
type Dirs map[string]string

// SystemDirs resolves the base directories of the current user. Per-app
// directories are namespaced by identifier.
func SystemDirs(identifier string) (Dirs, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	config, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("resolve config directory: %w", err)
	}
	cache, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("resolve cache directory: %w", err)
	}

	return Dirs{
		"$HOME":      home,
		"$DOCUMENT":  filepath.Join(home, "Documents"),
		"$DESKTOP":   filepath.Join(home, "Desktop"),
		"$APPDATA":   filepath.Join(config, identifier),
		"$APPCONFIG": filepath.Join(config, identifier),
		"$APPCACHE":  filepath.Join(cache, identifier),
		"$TEMP":      os.TempDir(),
	}, nil
}

// Expand replaces a leading base directory variable and returns a clean
// absolute path.
func (d Dirs) Expand(p string) (string, error) {
	if strings.HasPrefix(p, "$") {
		head, rest, _ := strings.Cut(p, "/")
		base, ok := d[head]
		if !ok {
			return "", fmt.Errorf("unknown base directory %s", head)
		}
		p = filepath.Join(base, filepath.FromSlash(rest))
	}
	if !filepath.IsAbs(p) {
		return "", fmt.Errorf("scope path %q is not absolute", p)
	}
	return filepath.Clean(p), nil
}
