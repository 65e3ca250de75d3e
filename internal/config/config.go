// Package config holds the immutable per-run configuration and its
// validation rules.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/retinalab/dcmexport/internal/identity"
)

// DefaultTolerance is the time-grouping tolerance, in seconds, applied when
// grouping is enabled without an explicit --tol.
const DefaultTolerance = 2.0

// keepFields are the recognised field-retention letters: p patient key,
// n names, d precise date of birth, D year-only date of birth, g gender.
const keepFields = "pndDg"

// Config describes a single run. Values are fixed before processing starts;
// nothing mutates a Config afterwards.
type Config struct {
	InputDir    string  `yaml:"input_dir"`
	OutputDir   string  `yaml:"output_dir"`
	ImageFormat string  `yaml:"image_format"`
	Group       bool    `yaml:"group"`
	Tolerance   float64 `yaml:"tol"`
	Jobs        int     `yaml:"n_jobs"`
	Mapping     string  `yaml:"mapping"`
	Keep        string  `yaml:"keep"`
	Overwrite   bool    `yaml:"overwrite"`
	Reset       bool    `yaml:"reset"`
	Quiet       bool    `yaml:"quiet"`

	// TolSet distinguishes an explicit --tol from the default; the flag is
	// only legal together with --group.
	TolSet bool `yaml:"-"`
}

// Default returns a Config with the standard defaults applied.
func Default() Config {
	return Config{
		OutputDir:   "exported_data",
		ImageFormat: "png",
		Tolerance:   DefaultTolerance,
		Jobs:        1,
	}
}

// Error marks a configuration problem that must abort the run before any
// file processing begins.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

func configErrorf(format string, args ...any) error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}

// KeepPatientKey reports whether the real patient key is retained.
func (c Config) KeepPatientKey() bool { return strings.ContainsRune(c.Keep, 'p') }

// KeepNames reports whether patient names are retained.
func (c Config) KeepNames() bool { return strings.ContainsRune(c.Keep, 'n') }

// KeepDOB reports whether the precise date of birth is retained.
func (c Config) KeepDOB() bool { return strings.ContainsRune(c.Keep, 'd') }

// KeepYearOnlyDOB reports whether only the birth year is retained.
func (c Config) KeepYearOnlyDOB() bool { return strings.ContainsRune(c.Keep, 'D') }

// KeepGender reports whether patient gender is retained.
func (c Config) KeepGender() bool { return strings.ContainsRune(c.Keep, 'g') }

// Validate checks the configuration. All violations abort before any file
// I/O on the batch.
func (c Config) Validate() error {
	if c.InputDir == "" {
		return configErrorf("input directory is required")
	}
	if _, err := os.Stat(c.InputDir); err != nil {
		return configErrorf("input directory '%s' does not exist", c.InputDir)
	}
	for _, r := range c.Keep {
		if !strings.ContainsRune(keepFields, r) {
			return configErrorf("unknown keep field %q (valid: %s)", r, keepFields)
		}
	}
	if c.KeepPatientKey() && c.Mapping != "" {
		return configErrorf("'--mapping' x '--keep p': are mutually excluding options")
	}
	if !c.KeepPatientKey() && c.Mapping != "" &&
		filepath.Base(c.Mapping) == identity.ReservedCSV {
		return configErrorf("can't use reserved CSV file name: %s", identity.ReservedCSV)
	}
	if c.TolSet && !c.Group {
		return configErrorf("'--tol' option can only be used when '--group' is set")
	}
	if c.Tolerance < 0 {
		return configErrorf("tolerance must not be negative")
	}
	if c.Jobs < 0 {
		return configErrorf("n_jobs must not be negative")
	}
	return nil
}

// Load reads a Config from a YAML file.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the Config to a YAML file.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
