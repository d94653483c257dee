package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"tools.zach/dev/presenced/internal/paths"
)

// ///////////////////////////////////////////////
// Environment
// ///////////////////////////////////////////////

// EnvFiles returns the dotenv files consulted for dataDir, highest
// precedence first: the data directory, then the working directory.
func EnvFiles(dataDir string) []string {
	files := []string{paths.DataDir{Root: dataDir}.Env()}
	if cwd, err := os.Getwd(); err == nil {
		local := filepath.Join(cwd, paths.EnvFile)
		if local != files[0] {
			files = append(files, local)
		}
	}
	return files
}

// ReadEnvFiles parses files with godotenv without touching the process
// environment. Earlier files win on conflicting keys; missing files are
// skipped.
func ReadEnvFiles(files ...string) (map[string]string, error) {
	merged := make(map[string]string)
	for _, path := range files {
		vars, err := godotenv.Read(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		for k, v := range vars {
			if _, seen := merged[k]; !seen {
				merged[k] = v
			}
		}
	}
	return merged, nil
}

// EnvLookup layers the process environment over dotenv values. A variable
// set to the empty string in the process falls through to the dotenv files.
func EnvLookup(dotenv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
}

// ApplyEnv overrides file settings from the environment via lookup.
// Empty values are ignored. It returns the names of the variables that
// took effect.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) []string {
	var applied []string
	if v, ok := lookup(paths.EnvUserID); ok && strings.TrimSpace(v) != "" {
		c.Presence.UserID = strings.TrimSpace(v)
		applied = append(applied, paths.EnvUserID)
	}
	if v, ok := lookup(paths.EnvBaseURL); ok && strings.TrimSpace(v) != "" {
		c.Presence.BaseURL = strings.TrimSpace(v)
		applied = append(applied, paths.EnvBaseURL)
	}
	return applied
}

// LoadWithEnv is [Load] followed by environment overrides. Precedence, from
// highest: process environment, dataDir/.env, ./.env, config.toml, defaults.
// It is safe to call repeatedly; dotenv files are re-read every time.
func LoadWithEnv(dataDir string) (*Config, error) {
	cfg, err := Load(dataDir)
	if err != nil {
		return nil, err
	}
	dotenv, err := ReadEnvFiles(EnvFiles(dataDir)...)
	if err != nil {
		return nil, err
	}
	if len(cfg.ApplyEnv(EnvLookup(dotenv))) > 0 {
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validate environment overrides: %w", err)
		}
	}
	return cfg, nil
}
