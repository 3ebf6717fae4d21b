package vault

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "cardforge"

// Vault represents the managed data directory for cardforge
type Vault struct {
	RootPath    string
	RecordsPath string
	OutputPath  string
	CachePath   string
	ConfigPath  string
}

// New creates a new Vault instance with XDG-compliant paths
func New() (*Vault, error) {
	rootPath, rootErr := getVaultRoot()
	configPath, configErr := getConfigPath()
	if rootErr != nil {
		return nil, fmt.Errorf("failed to determine vault root: %w", rootErr)
	}
	if configErr != nil {
		return nil, fmt.Errorf("failed to determine config path: %w", configErr)
	}

	v := At(rootPath)
	v.ConfigPath = configPath
	return v, nil
}

// At builds a Vault rooted at an explicit directory, used when the
// configuration overrides data_root. The config path is left empty.
func At(rootPath string) *Vault {
	if abs, err := filepath.Abs(rootPath); err == nil {
		rootPath = abs
	}
	return &Vault{
		RootPath:    rootPath,
		RecordsPath: filepath.Join(rootPath, "records"),
		OutputPath:  filepath.Join(rootPath, "output"),
		CachePath:   filepath.Join(rootPath, "cache"),
	}
}

// WithRoot returns a copy of v moved to rootPath, keeping its config path
func (v *Vault) WithRoot(rootPath string) *Vault {
	moved := At(rootPath)
	moved.ConfigPath = v.ConfigPath
	return moved
}

// getVaultRoot returns the vault root directory path
// Follows XDG Base Directory specification on Unix and uses AppData on Windows
func getVaultRoot() (string, error) {
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return filepath.Join(xdgDataHome, appName), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, appName), nil
	}

	// Fall back to ~/.local/share/cardforge
	return filepath.Join(homeDir, ".local", "share", appName), nil
}

func getConfigPath() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appName, "config.yaml"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	if appData := os.Getenv("APPDATA"); appData != "" {
		return filepath.Join(appData, appName+"-config", "config.yaml"), nil
	}

	return filepath.Join(homeDir, ".config", appName, "config.yaml"), nil
}

// Initialize creates the vault directory structure if it doesn't exist
func (v *Vault) Initialize() error {
	directories := []string{
		v.RootPath,
		v.RecordsPath,
		v.OutputPath,
		v.CachePath,
		v.ThumbsPath(),
	}

	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Exists checks if the vault has been initialized
func (v *Vault) Exists() bool {
	info, err := os.Stat(v.RecordsPath)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// ThumbsPath is the cache directory for generated thumbnails
func (v *Vault) ThumbsPath() string {
	return filepath.Join(v.CachePath, "thumbs")
}

// CleanCache removes all files in the cache directory
func (v *Vault) CleanCache() error {
	entries, err := os.ReadDir(v.CachePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	for _, entry := range entries {
		path := filepath.Join(v.CachePath, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}

	return nil
}
