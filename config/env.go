package config

import (
	"os"
	"strconv"
	"time"
)

// Loader reads environment variables under a common prefix (e.g. FACILITY_).
type Loader struct {
	Prefix string
	getenv func(string) string
}

// NewLoader constructs a loader with the provided prefix. An underscore is
// appended when missing.
func NewLoader(prefix string) Loader {
	if prefix != "" && prefix[len(prefix)-1] != '_' {
		prefix += "_"
	}
	return Loader{Prefix: prefix, getenv: os.Getenv}
}

func (l Loader) lookup(key string) string {
	if l.getenv == nil {
		return os.Getenv(l.Prefix + key)
	}
	return l.getenv(l.Prefix + key)
}

// String returns the variable value or def.
func (l Loader) String(key, def string) string {
	if val := l.lookup(key); val != "" {
		return val
	}
	return def
}

// Int returns an integer variable or def when unset or malformed.
func (l Loader) Int(key string, def int) int {
	if val := l.lookup(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

// Duration accepts Go duration syntax ("30s", "24h") or a plain number of seconds.
func (l Loader) Duration(key string, def time.Duration) time.Duration {
	val := l.lookup(key)
	if val == "" {
		return def
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(val, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return def
}
