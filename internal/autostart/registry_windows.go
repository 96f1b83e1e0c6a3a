//go:build windows

package autostart

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sys/windows/registry"
)

const runKeyPath = `Software\Microsoft\Windows\CurrentVersion\Run`

// RunKey registers the launcher as a value under HKCU\...\Run.
type RunKey struct {
	Name   string
	Entry  Entry
	Logger *slog.Logger
}

func newPlatform(opts Options) Registrar {
	return &RunKey{Name: AppName, Entry: opts.Entry, Logger: opts.Logger}
}

// Value renders the registry value.
func (k *RunKey) Value() string {
	return joinArgs(k.Entry.Command(), "")
}

// Enable sets the Run value. An identical value is left alone.
func (k *RunKey) Enable(ctx context.Context) error {
	key, _, err := registry.CreateKey(registry.CURRENT_USER, runKeyPath, registry.QUERY_VALUE|registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("opening Run key: %w", err)
	}
	defer key.Close()

	want := k.Value()
	if have, _, err := key.GetStringValue(k.Name); err == nil && have == want {
		return nil
	}
	if err := key.SetStringValue(k.Name, want); err != nil {
		return fmt.Errorf("setting Run value: %w", err)
	}
	k.Logger.Info("autostart enabled", "mechanism", "registry", "value", want)
	return nil
}

// Disable deletes the Run value.
func (k *RunKey) Disable(ctx context.Context) error {
	key, err := registry.OpenKey(registry.CURRENT_USER, runKeyPath, registry.SET_VALUE)
	if errors.Is(err, registry.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening Run key: %w", err)
	}
	defer key.Close()

	err = key.DeleteValue(k.Name)
	if errors.Is(err, registry.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("deleting Run value: %w", err)
	}
	k.Logger.Info("autostart disabled", "mechanism", "registry")
	return nil
}

// IsEnabled reports whether the Run value exists.
func (k *RunKey) IsEnabled() bool {
	key, err := registry.OpenKey(registry.CURRENT_USER, runKeyPath, registry.QUERY_VALUE)
	if err != nil {
		return false
	}
	defer key.Close()
	_, _, err = key.GetStringValue(k.Name)
	return err == nil
}

// Location implements Registrar.
func (k *RunKey) Location() string {
	return `HKCU\` + runKeyPath + `\` + k.Name
}
