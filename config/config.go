package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

const keyEnv = "ENV"
const envLocal = "local"

type Config struct {
	config *viper.Viper
}

func Load() (*Config, error) {

	env := os.Getenv(keyEnv)
	if len(env) == 0 {
		env = envLocal
	}

	configPath, err := getConfigPath(env)

	viperConfig := viper.New()
	if err == nil {
		viperConfig.SetConfigFile(configPath)
		if err := viperConfig.ReadInConfig(); err != nil {
			slog.Warn(fmt.Sprintf("error reading config file, %s", err))
		}
	}
	viperConfig.AutomaticEnv()

	cfg := &Config{
		config: viperConfig,
	}

	return cfg, nil
}

func (c *Config) GetPort() string {
	port := c.config.GetString("PORT")
	if len(port) == 0 {
		port = c.config.GetString("server.port")
	}
	if len(port) == 0 {
		port = "8080"
	}

	return port
}

// GetStoragePath is the root directory holding the index segments and the
// change cache database.
func (c *Config) GetStoragePath() string {
	storagePath := c.config.GetString("STORAGE_PATH")
	if len(storagePath) == 0 {
		storagePath = c.config.GetString("database.storage_path")
	}

	return storagePath
}

func (c *Config) GetIndexPath() string {
	indexPath := c.config.GetString("INDEX_PATH")
	if len(indexPath) == 0 {
		indexPath = c.config.GetString("database.index_path")
	}
	if len(indexPath) == 0 {
		indexPath = "index.bleve"
	}

	return filepath.Join(c.GetStoragePath(), indexPath)
}

func (c *Config) GetKVDBPath() string {
	kvdbPath := c.config.GetString("KVDB_PATH")
	if len(kvdbPath) == 0 {
		kvdbPath = c.config.GetString("database.kvdb_path")
	}
	if len(kvdbPath) == 0 {
		kvdbPath = "state.db"
	}

	return filepath.Join(c.GetStoragePath(), kvdbPath)
}

// GetWorkers is the size of the parallel extraction pool.
func (c *Config) GetWorkers() int {
	workers := c.config.GetInt("WORKERS")
	if workers == 0 {
		workers = c.config.GetInt("indexer.workers")
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	return workers
}

// GetMaxFileSize is the per-file byte ceiling during bulk indexing. Files
// above it are skipped, not truncated.
func (c *Config) GetMaxFileSize() int64 {
	maxSize := c.config.GetInt64("MAX_FILE_SIZE")
	if maxSize == 0 {
		maxSize = c.config.GetInt64("indexer.max_file_size")
	}
	if maxSize <= 0 {
		maxSize = 100 * 1024 * 1024
	}

	return maxSize
}

// GetMaxTextBytes is the content ceiling for the text extractor.
func (c *Config) GetMaxTextBytes() int64 {
	maxBytes := c.config.GetInt64("MAX_TEXT_BYTES")
	if maxBytes == 0 {
		maxBytes = c.config.GetInt64("indexer.max_text_bytes")
	}

	return maxBytes
}

func getProjectRoot() (string, error) {
	currentDir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}

	for {
		configDir := filepath.Join(currentDir, "config")
		if info, err := os.Stat(configDir); err == nil && info.IsDir() {
			return currentDir, nil
		}

		parent := filepath.Dir(currentDir)

		if parent == currentDir {
			break
		}

		currentDir = parent
	}

	return "", fmt.Errorf("could not find project root (directory containing 'config' folder)")
}

func getConfigPath(env string) (string, error) {
	configFile := fmt.Sprintf("config.%s.yaml", env)

	projectRoot, err := getProjectRoot()
	if err != nil {
		slog.Warn("failed to find project root with config directory, will use environment variables instead", "err", err.Error())
		return "", fmt.Errorf("failed to find project root: %w", err)
	}
	configPath := filepath.Join(projectRoot, "config", configFile)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		slog.Warn("failed to find config file within config directory, will use environment variables instead", "err", err.Error())
		return "", fmt.Errorf("config file does not exist: %s", configPath)
	}

	return configPath, nil
}
