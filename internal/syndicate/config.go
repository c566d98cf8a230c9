package syndicate

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const envPrefix = "SYNDICATE_"

// Settings holds one platform's credential and identity fields keyed by
// snake_case field name (access_token, page_id, ...).
type Settings map[string]string

// Get returns the trimmed value for field, or empty when unset.
func (s Settings) Get(field string) string {
	return strings.TrimSpace(s[field])
}

// Config maps platform name to its settings. A platform absent from the
// config is not instantiated.
type Config map[string]Settings

// Has reports whether the platform has any configuration at all.
func (c Config) Has(platform string) bool {
	return len(c[platform]) > 0
}

// LoadConfig merges an optional YAML config file with SYNDICATE_* environment
// variables. Environment values win: SYNDICATE_<PLATFORM>_<FIELD> overrides
// the file's <platform>.<field> entry. An empty path skips the file.
func LoadConfig(path string) (Config, error) {
	cfg := Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		var file map[string]map[string]string
		if err := yaml.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
		for platform, fields := range file {
			platform = strings.ToLower(strings.TrimSpace(platform))
			if platform == "" {
				continue
			}
			settings := Settings{}
			for field, value := range fields {
				settings[strings.ToLower(strings.TrimSpace(field))] = strings.TrimSpace(value)
			}
			cfg[platform] = settings
		}
	}

	mergeEnv(cfg, os.Environ())

	return cfg, nil
}

// mergeEnv folds SYNDICATE_<PLATFORM>_<FIELD>=value entries into cfg,
// overriding file-provided values.
func mergeEnv(cfg Config, environ []string) {
	for _, entry := range environ {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, envPrefix) {
			continue
		}
		rest := strings.TrimPrefix(key, envPrefix)
		platform, field, ok := strings.Cut(rest, "_")
		if !ok || platform == "" || field == "" {
			continue
		}
		name := strings.ToLower(platform)
		if cfg[name] == nil {
			cfg[name] = Settings{}
		}
		cfg[name][strings.ToLower(field)] = strings.TrimSpace(value)
	}
}
