package config

import (
	"fmt"
	"path/filepath"
)

// FirmwareConfig holds firmware signing configuration
type FirmwareConfig struct {
	KeysDir string // Directory holding <KeyID>.key / <KeyID>.pub
	KeyID   string
}

// GetAbsoluteKeysDir returns the keys directory as an absolute path
func (c *FirmwareConfig) GetAbsoluteKeysDir() (string, error) {
	if filepath.IsAbs(c.KeysDir) {
		return c.KeysDir, nil
	}
	abs, err := filepath.Abs(c.KeysDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve keys directory: %w", err)
	}
	return abs, nil
}
