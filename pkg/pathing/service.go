package pathing

import (
	"os"
	"path/filepath"
)

const (
	dataDirEnv   = "GAZPAR_DATA_DIR"
	configDirEnv = "GAZPAR_CONFIG_DIR"
)

// EnsureDirs creates the data and config directories when missing.
// Must be called on startup before the database is opened.
func EnsureDirs() error {
	dirs := []string{
		GetDataDir(),
		GetConfigDir(),
	}
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
		}
	}
	return nil
}

func GetMeterDbPath() string {
	return filepath.Join(GetDataDir(), "gazpar_bridge.db")
}

func GetPricesPath() string {
	return GetDataDir()
}

func GetDataDir() string {
	if dir := os.Getenv(dataDirEnv); dir != "" {
		return dir
	}
	return "/data"
}

func GetConfigDir() string {
	if dir := os.Getenv(configDirEnv); dir != "" {
		return dir
	}
	return "/etc/gazpar_bridge"
}
