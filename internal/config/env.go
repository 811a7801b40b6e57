package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv reads KEY=VALUE pairs from the given .env files into the process
// environment. Variables already set are left alone. Missing files are
// skipped; with no arguments the default .env in the config directory and
// ./.env are tried.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{GetDefaultEnvPath(), ".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load environment file: %w", err)
	}
	return nil
}
