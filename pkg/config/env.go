package config

import (
	"fmt"
	"os"
	"regexp"

	"github.com/joho/godotenv"
)

// envRefPattern matches values of the form $NAME or $NAME<suffix>: the
// reference must open the string, and everything after the variable name is
// a literal suffix. No other interpolation is supported.
var envRefPattern = regexp.MustCompile(`^\$([A-Za-z_][A-Za-z0-9_]*)(.*)$`)

// resolveEnvRef expands a single string value. Referencing an unset variable
// is a fatal configuration error.
func resolveEnvRef(s string) (string, error) {
	m := envRefPattern.FindStringSubmatch(s)
	if m == nil {
		return s, nil
	}

	name, suffix := m[1], m[2]
	val, ok := os.LookupEnv(name)
	if !ok {
		return "", fmt.Errorf("environment variable %s referenced in config is not set", name)
	}
	return val + suffix, nil
}

// resolveEnvRefs walks a decoded YAML tree and expands every string value.
func resolveEnvRefs(data any) (any, error) {
	switch v := data.(type) {
	case string:
		return resolveEnvRef(v)

	case map[string]any:
		result := make(map[string]any, len(v))
		for key, value := range v {
			resolved, err := resolveEnvRefs(value)
			if err != nil {
				return nil, err
			}
			result[key] = resolved
		}
		return result, nil

	case []any:
		result := make([]any, len(v))
		for i, item := range v {
			resolved, err := resolveEnvRefs(item)
			if err != nil {
				return nil, err
			}
			result[i] = resolved
		}
		return result, nil

	default:
		return v, nil
	}
}

// LoadEnvFiles loads .env.local then .env, if present.
func LoadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}
