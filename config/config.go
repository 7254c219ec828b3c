package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds raw values from a YAML file and command-line overrides.
type Config struct {
	values map[string]any
}

// LoadConfig reads a YAML file. An empty path yields an empty config, so every
// getter falls back to its default.
func LoadConfig(path string) (*Config, error) {
	values := make(map[string]any)
	if path == "" {
		return &Config{values: values}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]any)
	}
	return &Config{values: values}, nil
}

// Override sets key from a command-line string. YAML scalar rules apply, so
// "true", "12" and "[png, jpeg]" keep their types.
func (c *Config) Override(key, raw string) {
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
		value = raw
	}
	c.values[key] = value
}

// flagKeys maps command-line flags to config keys. Order matters: when two
// flags set the same key the later one wins, so --database beats --db.
var flagKeys = []struct{ flag, key string }{
	{"model", "model_path"},
	{"model-config", "model_config"},
	{"db", "database"},
	{"database", "database"},
	{"logfile", "log_file"},
	{"debug", "debug"},
	{"cache-size", "cache_size"},
	{"workers", "workers"},
	{"max-pixels", "max_pixels"},
}

// ApplyFlags overrides config keys from parsed command-line flags.
func (c *Config) ApplyFlags(args map[string]string) {
	for _, fk := range flagKeys {
		if value, ok := args[fk.flag]; ok {
			c.Override(fk.key, value)
		}
	}
}

// GetString returns a string-typed parameter, or an empty value if missing or of another type.
func (c *Config) GetString(key string) string {
	value, ok := c.values[key]
	if !ok {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case int, float64, bool:
		return strings.TrimSpace(yamlScalar(v))
	}
	return ""
}

// GetStringOrDefault returns a string-typed parameter or defaultValue.
func (c *Config) GetStringOrDefault(key, defaultValue string) string {
	value := c.GetString(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetIntOrDefault returns an integer-typed parameter or defaultValue.
func (c *Config) GetIntOrDefault(key string, defaultValue int) int {
	switch v := c.values[key].(type) {
	case int:
		return v
	case string:
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetFloatOrDefault returns a float-typed parameter or defaultValue. Integers are accepted.
func (c *Config) GetFloatOrDefault(key string, defaultValue float64) float64 {
	switch v := c.values[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case string:
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetBoolOrDefault returns a bool-typed parameter or defaultValue.
func (c *Config) GetBoolOrDefault(key string, defaultValue bool) bool {
	switch v := c.values[key].(type) {
	case bool:
		return v
	case string:
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// GetStringListOrDefault returns a list parameter. A comma-separated string is split.
func (c *Config) GetStringListOrDefault(key string, defaultValue []string) []string {
	switch v := c.values[key].(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return defaultValue
			}
			out = append(out, s)
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

// GetFloatListOrDefault returns a numeric list parameter or defaultValue.
func (c *Config) GetFloatListOrDefault(key string, defaultValue []float64) []float64 {
	list, ok := c.values[key].([]any)
	if !ok {
		return defaultValue
	}
	out := make([]float64, 0, len(list))
	for _, item := range list {
		switch v := item.(type) {
		case float64:
			out = append(out, v)
		case int:
			out = append(out, float64(v))
		default:
			return defaultValue
		}
	}
	return out
}

func yamlScalar(v any) string {
	data, err := yaml.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}
