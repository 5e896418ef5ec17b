// Package paths resolves the on-disk layout of the daemon's data directory.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// BaseDir returns ~/.tina.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".tina")
}

// ConfigPath returns the default config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// Expand replaces a leading "~" with the home directory.
func Expand(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p
}

// Layout locates the files inside one data directory.
type Layout struct {
	Root string
}

// New returns the layout rooted at dir, expanding "~".
func New(dir string) Layout {
	return Layout{Root: Expand(dir)}
}

// Resolve makes p absolute, treating relative paths as relative to Root.
func (l Layout) Resolve(p string) string {
	p = Expand(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(l.Root, p)
}

// DBPath returns the SQLite database path.
func (l Layout) DBPath() string { return filepath.Join(l.Root, "tina.db") }

// SocketPath returns the control socket path.
func (l Layout) SocketPath() string { return filepath.Join(l.Root, "wppd.sock") }

// LockPath returns the daemon lock file path.
func (l Layout) LockPath() string { return filepath.Join(l.Root, "LOCK") }

func (l Layout) LogDir() string  { return filepath.Join(l.Root, "logs") }
func (l Layout) LogPath() string { return filepath.Join(l.LogDir(), "wppd.log") }

// EnsureDirs creates the directory tree with owner-only permissions.
func (l Layout) EnsureDirs() error {
	for _, d := range []string{l.Root, l.LogDir()} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
