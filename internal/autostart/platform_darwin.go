//go:build darwin

package autostart

func newPlatform(opts Options) Registrar {
	return NewLaunchAgent(opts)
}
