//go:build !linux

package logging

import "log/slog"

func journalHandler(level slog.Leveler) (slog.Handler, bool) {
	return nil, false
}
