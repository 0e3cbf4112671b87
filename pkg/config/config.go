package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Error is the config-specific error kind: a missing or malformed key.
type Error struct {
	Key    string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %v", e.Reason, e.Key)
}

// Config is a persisted TOML configuration with dotted-path access. One
// instance exists per process; it is passed into constructors explicitly so
// tests can substitute their own file.
type Config struct {
	v    *viper.Viper
	path string
}

// Open reads the config file at path, creating it with defaults on first
// run.
func Open(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	setDefaults(v)

	c := &Config{
		v:    v,
		path: path,
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := c.Save(); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return c, nil
}

func setDefaults(v *viper.Viper) {
	downloadPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		downloadPath = filepath.Join(home, "Downloads")
	}

	v.SetDefault("general.download_path", downloadPath)
	v.SetDefault("general.use_cache", true)
	v.SetDefault("general.cache_ttl", 300)
	v.SetDefault("general.timeout", 10)
	v.SetDefault("general.max_retries", 3)
	v.SetDefault("general.seed_ratio", 0.0)
	v.SetDefault("indexers.default", "")
	v.SetDefault("download.client", "internal")
	v.SetDefault("downloaders.transmission.host", "localhost")
	v.SetDefault("downloaders.transmission.port", 9091)
	v.SetDefault("downloaders.transmission.username", "")
	v.SetDefault("downloaders.transmission.password", "")
}

// Get returns the value at the dotted key path, or an Error when the key is
// missing or names a section rather than a value.
func (c *Config) Get(key string) (any, error) {
	if !c.v.IsSet(key) {
		return nil, &Error{Key: key, Reason: "key not found"}
	}

	value := c.v.Get(key)
	if _, ok := value.(map[string]any); ok {
		return nil, &Error{Key: key, Reason: "key does not contain a value (it's a section)"}
	}

	return value, nil
}

// GetDefault is Get with a fallback that suppresses the missing-key error.
func (c *Config) GetDefault(key string, fallback any) any {
	value, err := c.Get(key)
	if err != nil {
		return fallback
	}

	return value
}

func (c *Config) GetString(key string) (string, error) {
	value, err := c.Get(key)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%v", value), nil
}

func (c *Config) GetInt(key string, fallback int) int {
	if !c.v.IsSet(key) {
		return fallback
	}

	return c.v.GetInt(key)
}

func (c *Config) GetBool(key string, fallback bool) bool {
	if !c.v.IsSet(key) {
		return fallback
	}

	return c.v.GetBool(key)
}

func (c *Config) GetFloat(key string, fallback float64) float64 {
	if !c.v.IsSet(key) {
		return fallback
	}

	return c.v.GetFloat64(key)
}

// Duration reads a numeric key as a duration in seconds.
func (c *Config) Duration(key string, fallback time.Duration) time.Duration {
	seconds := c.v.GetFloat64(key)
	if seconds <= 0 {
		return fallback
	}

	return time.Duration(seconds * float64(time.Second))
}

// Set coerces the raw value and persists it.
func (c *Config) Set(key string, raw string) error {
	c.v.Set(key, Coerce(raw))

	return c.Save()
}

// List returns every configured key as sorted "key=value" lines.
func (c *Config) List() []string {
	lines := []string{}
	flatten("", c.v.AllSettings(), &lines)
	sort.Strings(lines)

	return lines
}

func flatten(prefix string, settings map[string]any, lines *[]string) {
	for key, value := range settings {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}

		if section, ok := value.(map[string]any); ok {
			flatten(path, section, lines)

			continue
		}

		*lines = append(*lines, fmt.Sprintf("%v=%v", path, value))
	}
}

func (c *Config) Save() error {
	if err := os.MkdirAll(filepath.Dir(c.path), os.ModePerm); err != nil {
		return err
	}

	return c.v.WriteConfigAs(c.path)
}

// Coerce turns a raw string into its typed config value. Precedence: the
// case-insensitive bool keywords, then an integer literal, then a float
// literal, else the string itself. A value intended as the literal string
// "true" is indistinguishable from the bool; this mirrors how values have
// always been stored.
func Coerce(raw string) any {
	switch strings.ToLower(raw) {
	case "true":
		return true
	case "false":
		return false
	}

	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return i
	}

	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}

	return raw
}
