// Package config holds the command-line settings, optionally seeded from a
// YAML file, and validates them into converter options.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mrsinham/recforge/internal/affine"
	"github.com/mrsinham/recforge/internal/convert"
	"github.com/mrsinham/recforge/internal/source"
	"github.com/mrsinham/recforge/internal/util"
)

// Config mirrors the command-line flags. Field names follow the YAML keys.
type Config struct {
	OutputDir       string   `yaml:"output_dir"`
	Compressed      bool     `yaml:"compressed"`
	Origin          string   `yaml:"origin"`
	MinMax          []string `yaml:"minmax"`
	StoreHeader     bool     `yaml:"store_header"`
	Scaling         string   `yaml:"scaling"`
	Verbose         bool     `yaml:"verbose"`
	Overwrite       bool     `yaml:"overwrite"`
	PermitTruncated bool     `yaml:"permit_truncated"`
	VolumeInfo      bool     `yaml:"volume_info"`
	Preview         bool     `yaml:"preview"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		OutputDir: ".",
		Origin:    string(affine.Scanner),
		MinMax:    []string{convert.ParseToken, convert.ParseToken},
		Scaling:   string(source.DV),
	}
}

// Load reads a YAML file on top of the defaults. An empty path returns the
// defaults; a named file that does not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &convert.ConfigError{Field: "config", Value: path, Message: "file not found"}
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, &convert.ConfigError{Field: "config", Value: path, Message: err.Error()}
	}
	return cfg, nil
}

// Validate checks every setting and returns the converter options. The
// first problem found is returned as a *convert.ConfigError.
func (c *Config) Validate() (convert.Options, error) {
	opts := convert.DefaultOptions()

	origin, err := affine.ParseOrigin(c.Origin)
	if err != nil {
		return opts, invalid("origin", c.Origin, fmt.Sprintf("must be one of %v", affine.AllOrigins()), originNames())
	}
	opts.Origin = origin

	method, err := source.ParseMethod(c.Scaling)
	if err != nil {
		return opts, invalid("scaling", c.Scaling, fmt.Sprintf("must be one of %v", source.AllMethods()), methodNames())
	}
	opts.Scaling = method

	if len(c.MinMax) != 2 {
		return opts, &convert.ConfigError{
			Field:   "minmax",
			Value:   strings.Join(c.MinMax, " "),
			Message: fmt.Sprintf("needs exactly 2 values, got %d", len(c.MinMax)),
			Hint:    "--minmax parse 1000",
		}
	}
	for i, dst := range []*convert.Bound{&opts.Min, &opts.Max} {
		b, err := convert.ParseBound(c.MinMax[i])
		if err != nil {
			return opts, &convert.ConfigError{Field: "minmax", Value: c.MinMax[i], Message: err.Error()}
		}
		*dst = b
	}
	if !opts.Min.Parse && !opts.Max.Parse && opts.Min.Value > opts.Max.Value {
		return opts, &convert.ConfigError{
			Field:   "minmax",
			Value:   strings.Join(c.MinMax, " "),
			Message: "minimum is above maximum",
		}
	}

	if strings.TrimSpace(c.OutputDir) == "" {
		return opts, &convert.ConfigError{Field: "output-dir", Message: "must not be empty"}
	}
	opts.OutputDir = c.OutputDir
	opts.Compressed = c.Compressed
	opts.StoreHeader = c.StoreHeader
	opts.Overwrite = c.Overwrite
	opts.PermitTruncated = c.PermitTruncated
	opts.VolumeInfo = c.VolumeInfo
	opts.Preview = c.Preview
	return opts, nil
}

func invalid(field, value, msg string, candidates []string) *convert.ConfigError {
	e := &convert.ConfigError{Field: field, Value: value, Message: msg}
	if s := util.Closest(value, candidates, 2); s != "" {
		e.Hint = fmt.Sprintf("did you mean %q?", s)
	}
	return e
}

func originNames() []string {
	var out []string
	for _, o := range affine.AllOrigins() {
		out = append(out, string(o))
	}
	return out
}

func methodNames() []string {
	var out []string
	for _, m := range source.AllMethods() {
		out = append(out, string(m))
	}
	return out
}
