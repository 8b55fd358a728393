// Package config holds the server settings and loads them from TOML or YAML files.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the set of knobs the command injects into the server.
type Config struct {
	// Addr is the address to bind, without port (e.g. "127.0.0.1").
	Addr string `toml:"addr" yaml:"addr"`
	// Port is the TCP port to listen on.
	Port int `toml:"port" yaml:"port"`
	// Root is the directory whose tree is served.
	Root string `toml:"root" yaml:"root"`
	// Verbose enables debug logging.
	Verbose bool `toml:"verbose" yaml:"verbose"`
	// ReadTimeout bounds each read while a request head is being received.
	ReadTimeout Duration `toml:"read_timeout" yaml:"read_timeout"`
	// MaxRequestBytes caps the size of a request head.
	MaxRequestBytes int `toml:"max_request_bytes" yaml:"max_request_bytes"`
}

// Default returns the settings used when neither a file nor a flag sets a value.
func Default() Config {
	return Config{
		Addr:            "127.0.0.1",
		Port:            8000,
		Root:            ".",
		ReadTimeout:     Duration(time.Second),
		MaxRequestBytes: 8 << 10,
	}
}

// Load reads the file at path on top of Default. The format is chosen by
// extension: .toml, or .yaml/.yml.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.Root == "" {
		return errors.New("root directory is required")
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive, got %s", c.ReadTimeout)
	}
	if c.MaxRequestBytes <= 0 {
		return fmt.Errorf("max request bytes must be positive, got %d", c.MaxRequestBytes)
	}
	return nil
}

// ListenAddr returns the host:port string to bind.
func (c Config) ListenAddr() string {
	return net.JoinHostPort(c.Addr, strconv.Itoa(c.Port))
}

// Duration is a time.Duration written as a string ("1s", "250ms") in config files.
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

// UnmarshalText implements encoding.TextUnmarshaler, which toml uses.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}
