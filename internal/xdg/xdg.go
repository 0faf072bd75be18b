// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Open Table RPG Contributors

// Package xdg locates otrpg files under the XDG Base Directory layout.
package xdg

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/samber/oops"
)

const (
	appName        = "otrpg"
	configFileName = "config.yaml"
)

// ConfigDir returns the otrpg config directory.
// Checks XDG_CONFIG_HOME first, falls back to $HOME/.config.
func ConfigDir(getenv func(string) string) string {
	base := getenv("XDG_CONFIG_HOME")
	if base == "" {
		base = filepath.Join(getenv("HOME"), ".config")
	}
	return filepath.Join(base, appName)
}

// ConfigFile returns the default config file path.
func ConfigFile(getenv func(string) string) string {
	return filepath.Join(ConfigDir(getenv), configFileName)
}

// ExistingConfigFile returns the default config file path when a regular
// file exists there, or "" when nothing does.
func ExistingConfigFile(getenv func(string) string) (string, error) {
	path := ConfigFile(getenv)
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", nil
	case err != nil:
		return "", oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
	case info.IsDir():
		return "", oops.Code("CONFIG_LOAD_FAILED").With("path", path).Errorf("config path is a directory")
	}
	return path, nil
}
