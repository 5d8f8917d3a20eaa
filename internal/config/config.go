// Package config resolves runtime settings from defaults, an optional .env
// file and the environment. Command line flags are applied by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"

	"taskboard/internal/util"
)

// Environment keys.
const (
	EnvAddr              = "TASKBOARD_ADDR"
	EnvDBPath            = "TASKBOARD_DB_PATH"
	EnvStaticDir         = "TASKBOARD_STATIC_DIR"
	EnvJWTSecret         = "TASKBOARD_JWT_SECRET"
	EnvCatalog           = "TASKBOARD_CATALOG"
	EnvLogFile           = "TASKBOARD_LOG_FILE"
	EnvLogLevel          = "TASKBOARD_LOG_LEVEL"
	EnvActivityRetention = "TASKBOARD_ACTIVITY_RETENTION"
)

// Config holds every runtime setting.
type Config struct {
	Addr              string
	DBPath            string
	StaticDir         string
	JWTSecret         string
	CatalogPath       string
	LogFile           string
	LogLevel          string
	ActivityRetention int
}

// Load reads envFile (ignored when absent) and then the environment.
// Variables already set in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	retention, err := util.EnvIntOrDefault(EnvActivityRetention, 1000)
	if err != nil {
		return Config{}, err
	}

	return Config{
		Addr:              util.EnvOrDefault(EnvAddr, ":8080"),
		DBPath:            util.EnvOrDefault(EnvDBPath, "data/taskboard.db"),
		StaticDir:         util.EnvOrDefault(EnvStaticDir, "web/dist"),
		JWTSecret:         util.EnvOrDefault(EnvJWTSecret, ""),
		CatalogPath:       util.EnvOrDefault(EnvCatalog, ""),
		LogFile:           util.EnvOrDefault(EnvLogFile, ""),
		LogLevel:          util.EnvOrDefault(EnvLogLevel, "info"),
		ActivityRetention: retention,
	}, nil
}

// ValidateServe checks the settings the HTTP server cannot run without.
func (c Config) ValidateServe() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("%s must be set", EnvJWTSecret)
	}
	if c.DBPath == "" {
		return fmt.Errorf("%s must not be empty", EnvDBPath)
	}
	if c.ActivityRetention < 0 {
		return fmt.Errorf("%s must not be negative", EnvActivityRetention)
	}
	return nil
}
