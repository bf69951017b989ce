// Package config loads the optional appifi configuration file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/hxsam/appifi/internal/underlying"
)

// Config represents the optional configuration file. Unset fields are nil
// so that callers can tell them apart from explicit zero values.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	XCopy   XCopyConfig   `toml:"xcopy"`
	Log     LogConfig     `toml:"log"`
	Metrics MetricsConfig `toml:"metrics"`
}

// StorageConfig locates the storage root.
type StorageConfig struct {
	Root *string `toml:"root" validate:"omitempty,min=1"`
	// IdentityStore is "xattr" (default) or "inode". The inode store keeps
	// tags in memory only and suits filesystems without user xattrs.
	IdentityStore *string `toml:"identity_store" validate:"omitempty,oneof=xattr inode"`
	// Reflink = false makes copies write their data out in full.
	Reflink *bool `toml:"reflink"`
}

// XCopyConfig holds the default conflict policies of cp and mv. Each list
// has at most two entries: the same-kind policy, then the other-kind one.
type XCopyConfig struct {
	DirPolicy  []string `toml:"dir_policy" validate:"omitempty,max=2,dive,oneof=none parents rename skip"`
	FilePolicy []string `toml:"file_policy" validate:"omitempty,max=2,dive,oneof=none parents rename replace skip"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level *string `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	// File receives JSON logs in addition to stderr.
	File *string `toml:"file" validate:"omitempty,min=1"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled *bool   `toml:"enabled"`
	Listen  *string `toml:"listen" validate:"omitempty,hostname_port"`
}

var validate = validator.New()

// Path returns the resolved path to the config file.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "appifi", "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	path := Path()
	if path == "" {
		return Config{}, nil
	}
	return LoadFile(path)
}

// LoadFile reads and validates the config file at path. A missing file
// yields a zero Config.
func LoadFile(path string) (Config, error) {
	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field values.
func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", e.Namespace(), e.Tag(), e.Value()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// DirPolicies returns the configured directory policies.
func (c Config) DirPolicies() ([2]underlying.Policy, error) {
	return policyPair(c.XCopy.DirPolicy)
}

// FilePolicies returns the configured file policies.
func (c Config) FilePolicies() ([2]underlying.Policy, error) {
	return policyPair(c.XCopy.FilePolicy)
}

// ParsePolicies parses up to two policy names into a same-kind, other-kind
// pair.
func ParsePolicies(names []string) ([2]underlying.Policy, error) {
	return policyPair(names)
}

func policyPair(names []string) ([2]underlying.Policy, error) {
	var out [2]underlying.Policy
	if len(names) > len(out) {
		return out, fmt.Errorf("at most %d policies, got %d", len(out), len(names))
	}
	for i, name := range names {
		p, err := underlying.ParsePolicy(name)
		if err != nil {
			return out, err
		}
		out[i] = p
	}
	return out, nil
}

// LogLevel returns the configured level, or def when unset.
func (c Config) LogLevel(def slog.Level) slog.Level {
	if c.Log.Level == nil {
		return def
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(*c.Log.Level)); err != nil {
		return def
	}
	return l
}
