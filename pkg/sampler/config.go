package sampler

import (
	"os"
	"strconv"
)

// Config describes one sampling session.
type Config struct {
	// Name labels the kernel in logs, metrics and the report.
	Name string
	// Threads is the number of threads each launch runs. Every launch must
	// return exactly this many step counts.
	Threads int
	// Runs is the number of timed sample runs averaged into the report.
	Runs int
	// Warmup launches run before timing starts and are discarded.
	Warmup int
}

// ConfigFromEnv returns a Config for the named kernel with run counts taken
// from the environment:
//
//	SAMPLE_RUNS   timed runs per session (default 10)
//	WARMUP_RUNS   discarded launches before timing (default 1, 0 allowed)
func ConfigFromEnv(name string, threads int) Config {
	return Config{
		Name:    name,
		Threads: threads,
		Runs:    envInt("SAMPLE_RUNS", 10),
		Warmup:  envNonNegInt("WARMUP_RUNS", 1),
	}
}

func envInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func envNonNegInt(key string, def int) int {
	if s := os.Getenv(key); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v >= 0 {
			return v
		}
	}
	return def
}
