// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/steveyegge/pawlaunch/internal/config"
)

// HomeFixture is a throwaway launcher home.
type HomeFixture struct {
	Paths  config.Paths
	Config *config.Config
	Logger *slog.Logger
	t      *testing.T
}

// NewHome creates an empty launcher home under t.TempDir().
func NewHome(t *testing.T) *HomeFixture {
	t.Helper()
	home := t.TempDir()
	return &HomeFixture{
		Paths:  config.NewPaths(home),
		Config: config.Default(),
		Logger: DiscardLogger(),
		t:      t,
	}
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Write creates a file under the home with the given content.
func (f *HomeFixture) Write(rel, content string) string {
	f.t.Helper()
	path := filepath.Join(f.Paths.Home, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		f.t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		f.t.Fatal(err)
	}
	return path
}

// Exists reports whether a path under the home exists.
func (f *HomeFixture) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
