// Package testsupport provides shared fixtures for curator tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"curator/internal/config"
)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = filepath.Join(base, "data")
	cfg.MediaRoot = filepath.Join(base, "media")
	cfg.ExportDir = filepath.Join(base, "exports")
	cfg.LogDir = filepath.Join(base, "logs")
	cfg.APIBind = "127.0.0.1:0"
	return &cfg
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.DataDir)
}
