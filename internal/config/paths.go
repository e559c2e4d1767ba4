package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appDirName = "notebook-filetree"

// ConfigDirectory returns the directory holding filetree.conf.
//
// Locations:
//   - Windows: %USERPROFILE%\.config\notebook-filetree
//   - Unix: ~/.config/notebook-filetree
func ConfigDirectory() (string, error) {
	if runtime.GOOS == "windows" {
		if userProfile := os.Getenv("USERPROFILE"); userProfile != "" {
			return filepath.Join(userProfile, ".config", appDirName), nil
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appDirName), nil
}

// DefaultConfigPath returns the default location of the config file.
func DefaultConfigPath() (string, error) {
	dir, err := ConfigDirectory()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "filetree.conf"), nil
}

// LogDirectory returns the directory used for rotating log files.
func LogDirectory() string {
	dir, err := ConfigDirectory()
	if err != nil {
		return filepath.Join(os.TempDir(), appDirName+"-logs")
	}
	return filepath.Join(dir, "logs")
}

// EnsureLogDirectory creates the log directory if it doesn't exist.
func EnsureLogDirectory() error {
	return os.MkdirAll(LogDirectory(), 0700)
}
