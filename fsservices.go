package main

import (
	"os"
	"path/filepath"
)

const appDirName = "pathfinder"

// dirs are the application directories, resolved once at startup from the
// command-line flags or XDG rules.
type dirs struct {
	Data   string
	Config string
	Cache  string
}

// xdgDir returns $<env> or falls back to $HOME/<rel...>.
func xdgDir(env string, rel ...string) string {
	if d := os.Getenv(env); d != "" {
		return d
	}
	home := os.Getenv("HOME")
	if home == "" {
		// Last resort: current working directory
		cwd, _ := os.Getwd()
		home = cwd
	}
	return filepath.Join(append([]string{home}, rel...)...)
}

func xdgConfigDir() string { return xdgDir("XDG_CONFIG_HOME", ".config") }
func xdgCacheDir() string  { return xdgDir("XDG_CACHE_HOME", ".cache") }
func xdgDataDir() string   { return xdgDir("XDG_DATA_HOME", ".local", "share") }

// resolveDirs applies the precedence flag > XDG variable > $HOME default.
// Empty flags fall back.
func resolveDirs(dataFlag, configFlag, cacheFlag string) dirs {
	d := dirs{
		Data:   filepath.Join(xdgDataDir(), appDirName),
		Config: filepath.Join(xdgConfigDir(), appDirName),
		Cache:  filepath.Join(xdgCacheDir(), appDirName),
	}
	if dataFlag != "" {
		d.Data = dataFlag
	}
	if configFlag != "" {
		d.Config = configFlag
	}
	if cacheFlag != "" {
		d.Cache = cacheFlag
	}
	return d
}

// ensure creates every directory. The first failure is returned; later
// directories are still attempted.
func (d dirs) ensure() error {
	var first error
	for _, dir := range []string{d.Data, d.Config, d.Cache} {
		if err := ensureDir(dir); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// fileExists reports whether the given path exists and is a file (not a directory).
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// ensureDir creates the directory and any necessary parents if it doesn't exist.
func ensureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
