package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// EnvString returns the named environment variable and whether it was set.
func EnvString(name string) (string, bool) {
	value, ok := os.LookupEnv(name)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses the named environment variable as an integer.
func EnvInt(name string) (int, bool, error) {
	raw, ok := EnvString(name)
	if !ok {
		return 0, false, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s=%q is not an integer", name, raw)
	}
	return value, true, nil
}

// EnvDuration parses the named environment variable as a time.Duration.
func EnvDuration(name string) (time.Duration, bool, error) {
	raw, ok := EnvString(name)
	if !ok {
		return 0, false, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false, fmt.Errorf("%s=%q is not a duration", name, raw)
	}
	return value, true, nil
}
