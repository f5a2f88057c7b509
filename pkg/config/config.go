// Package config loads the optional rorth.yaml settings file.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/tjcampanella/rorth/pkg/logging"
)

// DefaultFile is looked up in the working directory when no -config flag is given.
const DefaultFile = "rorth.yaml"

// Config is the decoded settings file.
type Config struct {
	Path      string    `yaml:"-"`
	Toolchain Toolchain `yaml:"toolchain"`
	Output    Output    `yaml:"output"`
	Log       Log       `yaml:"log"`
}

// Toolchain names the external assembler and linker.
type Toolchain struct {
	Assembler      string   `yaml:"assembler"`
	AssemblerFlags []string `yaml:"assembler_flags"`
	Linker         string   `yaml:"linker"`
	LinkerFlags    []string `yaml:"linker_flags"`
}

// Output controls where build artifacts go.
type Output struct {
	Dir              string `yaml:"dir"`
	KeepIntermediate bool   `yaml:"keep_intermediate"`
}

// Log configures the slog handler of the CLI.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the settings used when no file is present.
func Default() *Config {
	return &Config{
		Toolchain: Toolchain{
			Assembler:      "nasm",
			AssemblerFlags: []string{"-felf64"},
			Linker:         "ld",
		},
		Log: Log{Level: "info", Format: "text"},
	}
}

// Load reads path over the defaults. An empty path, or a missing DefaultFile,
// yields Default().
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		if _, err := os.Stat(DefaultFile); err != nil {
			return cfg, nil
		}
		path = DefaultFile
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	if err := cfg.decode(file); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", abs, err)
	}
	cfg.Path = abs
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", abs, err)
	}
	return cfg, nil
}

// Parse decodes YAML from r over the defaults.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := cfg.decode(r); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks that required fields are set and enumerations are known.
func (c *Config) Validate() error {
	if c.Toolchain.Assembler == "" {
		return errors.New("toolchain.assembler must not be empty")
	}
	if c.Toolchain.Linker == "" {
		return errors.New("toolchain.linker must not be empty")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}
