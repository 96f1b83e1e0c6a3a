//go:build linux

package logging

import (
	"log/slog"
	"os"
	"path"
	"strings"

	slogjournal "github.com/systemd/slog-journal"
)

// journalHandler returns a journal handler when the process runs inside a
// systemd service unit.
func journalHandler(level slog.Leveler) (slog.Handler, bool) {
	if !underSystemdService() {
		return nil, false
	}
	h, err := slogjournal.NewHandler(&slogjournal.Options{
		ReplaceGroup: journalKey,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			a.Key = journalKey(a.Key)
			return a
		},
	})
	if err != nil {
		return nil, false
	}
	return leveled{Handler: h, level: level}, true
}

func underSystemdService() bool {
	content, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return false
	}
	return cgroupIsService(string(content))
}

// cgroupIsService reports whether a /proc/self/cgroup document places the
// process in a .service unit.
func cgroupIsService(content string) bool {
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		parts := strings.SplitN(line, ":", 3)
		if len(parts) == 3 && strings.HasSuffix(path.Dir(parts[2]), ".service") {
			return true
		}
		if len(parts) == 3 && strings.HasSuffix(parts[2], ".service") {
			return true
		}
	}
	return false
}

// journalKey maps an attribute key to a journal field name.
func journalKey(key string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, strings.ToUpper(key))
}
