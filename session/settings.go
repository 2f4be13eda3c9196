package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"omibyte.io/regview/peripheral"
)

const (
	StateDir  = ".regview"
	StateFile = "peripherals.state.json"
)

// NodeSetting is the persisted display state of one node, keyed by its
// dotted path.
type NodeSetting = peripheral.Setting

// SettingsPath returns the preferences file of a workspace.
func SettingsPath(workspace string) string {
	return filepath.Join(workspace, StateDir, StateFile)
}

// LoadSettings reads a preferences file. A missing file yields no settings.
func LoadSettings(path string) ([]NodeSetting, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	var settings []NodeSetting
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return settings, nil
}

func SaveSettings(path string, settings []NodeSetting) error {
	if settings == nil {
		settings = []NodeSetting{}
	}
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
