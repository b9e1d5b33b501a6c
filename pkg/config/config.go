package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names (single source of truth)
const (
	EnvRoot          = "VBS_ROOT"
	EnvMountpoints   = "VBS_MOUNTPOINTS"
	EnvLogLevel      = "LOG_LEVEL"
	EnvScanCacheSize = "VBS_SCAN_CACHE_SIZE"
	EnvScanCacheTTL  = "VBS_SCAN_CACHE_TTL_SECONDS"
)

// Config holds process configuration for the vbs tools.
type Config struct {
	// Root is scanned for disk[0-9]+ mountpoints when Mountpoints is empty.
	Root        string
	Mountpoints []string
	LogLevel    string

	// Scan cache; a size of 0 disables it.
	ScanCacheSize int
	ScanCacheTTL  time.Duration
}

// Load reads configuration from the environment, applying defaults.
func Load() *Config {
	cfg := &Config{
		Root:          getEnv(EnvRoot, "/mnt"),
		LogLevel:      getEnv(EnvLogLevel, "INFO"),
		ScanCacheSize: getEnvInt(EnvScanCacheSize, 0),
		ScanCacheTTL:  time.Duration(getEnvInt(EnvScanCacheTTL, 30)) * time.Second,
	}
	if v := os.Getenv(EnvMountpoints); v != "" {
		for _, mp := range strings.Split(v, ",") {
			if mp = strings.TrimSpace(mp); mp != "" {
				cfg.Mountpoints = append(cfg.Mountpoints, mp)
			}
		}
	}
	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
