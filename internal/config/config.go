// Package config loads flashdeck settings. Sources are layered, later ones
// winning: flag defaults, an optional YAML file, FLASHDECK_* environment
// variables, and finally flags set explicitly on the command line.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix marks environment variables read by Load. A double underscore
// separates sections: FLASHDECK_HTTP__READ_TIMEOUT sets http.read_timeout.
const EnvPrefix = "FLASHDECK_"

// Config is the full runtime configuration.
type Config struct {
	DB     DBConfig     `koanf:"db"`
	HTTP   HTTPConfig   `koanf:"http"`
	Log    LogConfig    `koanf:"log"`
	Review ReviewConfig `koanf:"review"`
	Import ImportConfig `koanf:"import"`
}

// DBConfig locates the SQLite card store.
type DBConfig struct {
	Path string `koanf:"path" validate:"required"`
}

// HTTPConfig controls the API server started by serve.
type HTTPConfig struct {
	Addr         string        `koanf:"addr" validate:"required,hostname_port"`
	ReadTimeout  time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `koanf:"write_timeout" validate:"gt=0"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// ReviewConfig holds review defaults.
type ReviewConfig struct {
	// DefaultLimit is used when a due-card request names no limit.
	DefaultLimit int `koanf:"default_limit" validate:"min=1,max=200"`
}

// ImportConfig controls deck imports.
type ImportConfig struct {
	ReposDir string `koanf:"repos_dir" validate:"required"`
}

// RegisterFlags defines every setting as a flag on fs. Flag names are the
// config keys, and flag defaults are the configuration defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "path to a YAML config file")
	fs.String("db.path", "flashdeck.db", "path to the SQLite database file")
	fs.String("http.addr", "localhost:8080", "HTTP listen address")
	fs.Duration("http.read_timeout", 10*time.Second, "HTTP read timeout")
	fs.Duration("http.write_timeout", 10*time.Second, "HTTP write timeout")
	fs.String("log.level", "info", "log level: debug, info, warn or error")
	fs.String("log.format", "text", "log format: text or json")
	fs.Int("review.default_limit", 20, "due cards returned when no limit is given")
	fs.String("import.repos_dir", "repos", "directory for git deck checkouts")
}

// Load builds a Config from the layered sources. fs must have been set up by
// RegisterFlags and already parsed.
func Load(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	path, err := fs.GetString("config")
	if err != nil {
		return nil, fmt.Errorf("failed to read config flag: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Unchanged flags only fill keys no earlier source has set.
	if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}
	k.Delete("config")

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate checks field constraints and reports every violation at once.
func (c *Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// EnvKeys lists the FLASHDECK_ variables present in the environment.
func EnvKeys() []string {
	var keys []string
	for _, kv := range os.Environ() {
		if strings.HasPrefix(kv, EnvPrefix) {
			name, _, _ := strings.Cut(kv, "=")
			keys = append(keys, name)
		}
	}
	return keys
}
