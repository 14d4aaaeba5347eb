// Package env reads raw environment variables for the few knobs that are
// consulted before config parsing runs (log format, mostly).
package env

import "os"

// Get returns the variable's value, or fallback when unset or empty.
func Get(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}
