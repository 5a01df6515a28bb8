package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigFileName is the file searched for by ResolveConfigPath.
const ConfigFileName = "nudgeme.yaml"

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/nudgeme/nudgeme.yaml → ~/.config/nudgeme/nudgeme.yaml → ./nudgeme.yaml
func ResolveConfigPath() (string, error) {
	candidates := []string{DefaultConfigPath(), ConfigFileName}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultConfigPath is where `nudgeme init` writes a new configuration.
func DefaultConfigPath() string {
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok && xdg != "" {
		return filepath.Join(xdg, "nudgeme", ConfigFileName)
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "nudgeme", ConfigFileName)
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/nudgeme if set, otherwise ~/.local/share/nudgeme following the XDG base directory layout.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok && dir != "" {
		return filepath.Join(dir, "nudgeme")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "nudgeme")
}
