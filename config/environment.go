package config

import (
	"os"
	"path/filepath"
	"strings"
)

// Environment names the deployment a process runs in, taken from APP_ENV.
type Environment string

const (
	EnvironmentDevelopment Environment = "development"
	EnvironmentStaging     Environment = "staging"
	EnvironmentProduction  Environment = "production"
)

const (
	appEnvVar         = "APP_ENV"
	defaultConfigPath = "config/config.yml"
)

var environmentAliases = map[string]Environment{
	"dev":         EnvironmentDevelopment,
	"local":       EnvironmentDevelopment,
	"prod":        EnvironmentProduction,
	"producation": EnvironmentProduction,
	"stag":        EnvironmentStaging,
	"stagging":    EnvironmentStaging,
}

// AppEnvironment returns the normalised APP_ENV value. An unset variable
// means development; unknown names are passed through lower-cased.
func AppEnvironment() Environment {
	env := strings.ToLower(strings.TrimSpace(os.Getenv(appEnvVar)))
	if env == "" {
		return EnvironmentDevelopment
	}
	if canonical, ok := environmentAliases[env]; ok {
		return canonical
	}
	return Environment(env)
}

// IsProductionLike reports whether env refuses to run without queries.
func IsProductionLike(env Environment) bool {
	return env == EnvironmentProduction || env == EnvironmentStaging
}

// configPathFor picks the file LoadConfig reads. An empty or default path is
// swapped for its environment variant, e.g. config/config.staging.yml, when
// that file exists. Explicit paths are used as given.
func configPathFor(path string, env Environment) string {
	if path == "" {
		path = defaultConfigPath
	}
	if path != defaultConfigPath || env == EnvironmentDevelopment {
		return path
	}
	ext := filepath.Ext(path)
	variant := strings.TrimSuffix(path, ext) + "." + string(env) + ext
	if _, err := os.Stat(variant); err == nil {
		return variant
	}
	return path
}
