// Package reliability stresses tracepool decorators under load. Tests skip
// unless TRACEPOOL_RELIABILITY_LEVEL is set.
package reliability

import (
	"os"
	"strconv"
	"time"
)

// ReliabilityConfig holds configuration for reliability testing.
type ReliabilityConfig struct {
	Level       string        // "basic" or "stress"
	Duration    time.Duration // how long stress tests run
	Submitters  int           // concurrent submitting goroutines
	Workers     int           // pool workers
	MaxLeakRate float64       // tolerated share of unbalanced captures (0.0-1.0)
}

func getReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		Level:       getEnv("TRACEPOOL_RELIABILITY_LEVEL", ""),
		Duration:    parseDuration(getEnv("TRACEPOOL_RELIABILITY_DURATION", "10s")),
		Submitters:  parseInt(getEnv("TRACEPOOL_RELIABILITY_SUBMITTERS", "32")),
		Workers:     parseInt(getEnv("TRACEPOOL_RELIABILITY_WORKERS", "8")),
		MaxLeakRate: parseFloat(getEnv("TRACEPOOL_RELIABILITY_MAX_LEAK_RATE", "0")),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseInt(s string) int {
	if value, err := strconv.Atoi(s); err == nil {
		return value
	}
	return 0
}

func parseFloat(s string) float64 {
	if value, err := strconv.ParseFloat(s, 64); err == nil {
		return value
	}
	return 0
}

func parseDuration(s string) time.Duration {
	if value, err := time.ParseDuration(s); err == nil {
		return value
	}
	return 0
}
