package config

import (
	"os"
	"path/filepath"
)

// GetUserConfigDir returns the default relay config directory, ~/.teleterm,
// used when -config-dir isn't passed on the command line.
func GetUserConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, ".teleterm"), nil
}

// EnsureConfigDir creates dir if it doesn't already exist.
func EnsureConfigDir(dir string) error {
	return os.MkdirAll(dir, 0755)
}
