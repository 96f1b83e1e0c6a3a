//go:build !darwin && !windows

package autostart

func newPlatform(opts Options) Registrar {
	return NewDesktopFile(opts)
}
