package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"auction-engine/utils"
)

// Config holds process settings read from the environment
type Config struct {
	Port              string
	DatabaseURL       string
	LogLevel          string
	SchedulerInterval time.Duration
	SchedulerWorkers  int

	// RebuildEvery re-derives the schedule from storage every n ticks
	RebuildEvery int
	LockLease    time.Duration
	LockWait     time.Duration
}

const (
	defaultPort              = "8080"
	defaultLogLevel          = "info"
	defaultSchedulerInterval = 2 * time.Second
	defaultSchedulerWorkers  = 8
	defaultRebuildEvery      = 30
	defaultLockLease         = 3 * time.Second
	defaultLockWait          = 250 * time.Millisecond
)

// Load reads the configuration, falling back to defaults for unset or invalid values
func Load() Config {
	return Config{
		Port:              getString("PORT", defaultPort),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		LogLevel:          getString("LOG_LEVEL", defaultLogLevel),
		SchedulerInterval: getDuration("SCHEDULER_INTERVAL", defaultSchedulerInterval),
		SchedulerWorkers:  getInt("SCHEDULER_WORKERS", defaultSchedulerWorkers),
		RebuildEvery:      getInt("SCHEDULER_REBUILD_EVERY", defaultRebuildEvery),
		LockLease:         getDuration("LOCK_LEASE", defaultLockLease),
		LockWait:          getDuration("LOCK_WAIT", defaultLockWait),
	}
}

// Addr returns the listen address for the HTTP server
func (c Config) Addr() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		utils.Warn("invalid duration in environment, using default", map[string]any{"key": key, "value": v, "default": def.String()})
		return def
	}
	return d
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		utils.Warn("invalid integer in environment, using default", map[string]any{"key": key, "value": v, "default": def})
		return def
	}
	return n
}
