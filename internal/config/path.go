// Package config provides configuration loading and path utilities.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// dataFileName is the SQLite database file created under the data directory.
const dataFileName = "refundflow.db"

// ExpandPath resolves ~ and $VAR references in an operator-supplied path.
// A tilde that cannot be resolved is left in place.
func ExpandPath(path string) string {
	switch {
	case path == "":
		return path
	case path == "~":
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	case strings.HasPrefix(path, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	}

	return os.ExpandEnv(path)
}

// DefaultDataPath returns the database location used when none is configured.
// It honors XDG_DATA_HOME and falls back to ~/.local/share.
func DefaultDataPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return dataFileName
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "refundflow", dataFileName)
}
