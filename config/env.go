package config

import (
	"os"
	"strings"
)

const (
	EnvSVD       = "REGVIEW_SVD"
	EnvTarget    = "REGVIEW_TARGET"
	EnvWorkspace = "REGVIEW_WORKSPACE"
)

// applyEnv overrides the file settings with the environment.
func (c *Config) applyEnv() {
	c.SVD = getenv(EnvSVD, c.SVD)
	c.Workspace = getenv(EnvWorkspace, c.Workspace)
	if target := getenv(EnvTarget, ""); len(target) > 0 {
		c.Target.GDB, c.Target.Image = ParseTarget(target)
	}
}

// ParseTarget splits a target specification. "image:dump.yaml" names a memory
// image, anything else is a gdbserver address with an optional "gdb:"
// prefix.
func ParseTarget(s string) (gdb, image string) {
	s = strings.TrimSpace(s)
	if path, ok := strings.CutPrefix(s, "image:"); ok {
		return "", path
	}
	return strings.TrimPrefix(s, "gdb:"), ""
}

func getenv(key, _default string) (value string) {
	value = os.Getenv(key)
	if len(value) == 0 {
		value = _default
	}
	return value
}
