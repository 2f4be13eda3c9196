package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"omibyte.io/regview/session"
)

//go:embed defaults.yaml
var rawDefaults []byte

// FileName is the configuration file looked up in the workspace.
const FileName = "regview.yaml"

var ErrConfig = errors.New("invalid configuration")

type Config struct {
	SVD                string        `yaml:"svd"`
	Workspace          string        `yaml:"workspace"`
	GapThreshold       int           `yaml:"gapThreshold"`
	MaxReadChunk       uint32        `yaml:"maxReadChunk"`
	MaxConcurrentReads int           `yaml:"maxConcurrentReads"`
	RefreshInterval    time.Duration `yaml:"refreshInterval"`
	Verbosity          string        `yaml:"verbosity"`
	Target             Target        `yaml:"target"`
}

// Target selects the memory channel. Exactly one of GDB and Image is used;
// GDB wins when both are set.
type Target struct {
	GDB          string `yaml:"gdb"`
	Image        string `yaml:"image"`
	MaxReadSize  int    `yaml:"maxReadSize"`
	MaxWriteSize int    `yaml:"maxWriteSize"`
}

func Default() Config {
	var c Config
	if err := yaml.Unmarshal(rawDefaults, &c); err != nil {
		panic(err)
	}
	return c
}

// Load reads the defaults, then the file at path if it exists, then the
// environment. An empty path looks for FileName in the current directory.
func Load(path string) (Config, error) {
	c := Default()

	explicit := len(path) > 0
	if !explicit {
		path = FileName
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("%w: %s: %v", ErrConfig, path, err)
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		// Defaults only
	default:
		return c, err
	}

	c.applyEnv()
	return c, c.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if _, err := session.ParseVerbosity(c.Verbosity); err != nil {
		errs = append(errs, err)
	}
	if c.MaxConcurrentReads < 0 {
		errs = append(errs, fmt.Errorf("maxConcurrentReads must not be negative, got %d", c.MaxConcurrentReads))
	}
	if c.RefreshInterval < 0 {
		errs = append(errs, fmt.Errorf("refreshInterval must not be negative, got %s", c.RefreshInterval))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfig, errors.Join(errs...))
	}
	return nil
}

// SessionOptions converts the configuration for a debug session.
func (c Config) SessionOptions() session.Options {
	verbosity, _ := session.ParseVerbosity(c.Verbosity)
	workspace, err := filepath.Abs(c.Workspace)
	if err != nil {
		workspace = c.Workspace
	}
	return session.Options{
		Workspace:          workspace,
		Verbosity:          verbosity,
		MaxReadChunk:       c.MaxReadChunk,
		MaxConcurrentReads: c.MaxConcurrentReads,
	}
}
