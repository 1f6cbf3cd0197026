package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

type Config struct {
	// Database
	DBName  string
	DataDir string

	// Platform hint passed to the store adapter ("android", "ios", "web", "memory")
	Platform string

	// Sync
	DefaultRemoteURL string

	// Logging
	LogLevel string
}

func Load() *Config {
	cfg := &Config{
		DBName:  getEnv("SPENDMAN_DB_NAME", "spending-management"),
		DataDir: getEnv("SPENDMAN_DATA_DIR", "./data"),

		Platform: getEnv("SPENDMAN_PLATFORM", "web"),

		DefaultRemoteURL: getEnv("SPENDMAN_DEFAULT_COUCHDB_URL", ""),

		LogLevel: getEnv("SPENDMAN_LOG_LEVEL", "info"),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if strings.TrimSpace(c.DBName) == "" {
		errors = append(errors, "database name cannot be empty")
	}

	if c.DataDir == "" {
		errors = append(errors, "data directory cannot be empty")
	} else {
		dir := filepath.Clean(c.DataDir)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create data directory '%s': %v", dir, err))
				}
			}
		}
	}

	validPlatforms := []string{"android", "ios", "web", "memory"}
	isValidPlatform := false
	for _, p := range validPlatforms {
		if c.Platform == p {
			isValidPlatform = true
			break
		}
	}
	if !isValidPlatform {
		errors = append(errors, fmt.Sprintf("invalid platform '%s': must be one of %s", c.Platform, strings.Join(validPlatforms, ", ")))
	}

	// The default remote URL may legitimately be empty (sync disabled until set).
	if c.DefaultRemoteURL != "" {
		if parsedURL, err := url.Parse(c.DefaultRemoteURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid default CouchDB URL: %v", err))
		} else if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
			errors = append(errors, fmt.Sprintf("invalid default CouchDB URL scheme '%s': must be 'http' or 'https'", parsedURL.Scheme))
		}
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	isValidLevel := false
	for _, l := range validLevels {
		if c.LogLevel == l {
			isValidLevel = true
			break
		}
	}
	if !isValidLevel {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of %s", c.LogLevel, strings.Join(validLevels, ", ")))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// NormalizeRemoteURL trims the given URL and substitutes the configured
// default when the result is empty.
//
// Note: once a default URL is configured this intentionally removes the
// ability to disable sync by clearing the field.
func (c *Config) NormalizeRemoteURL(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed != "" {
		return trimmed
	}
	return strings.TrimSpace(c.DefaultRemoteURL)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
