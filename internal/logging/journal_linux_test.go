//go:build linux

package logging

import "testing"

func TestCgroupIsService(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{"0::/system.slice/pawlaunch.service\n", true},
		{"0::/user.slice/user-1000.slice/user@1000.service/app.slice/pawlaunch.service\n", true},
		{"0::/user.slice/user-1000.slice/session-2.scope\n", false},
		{"12:pids:/user.slice\n0::/init.scope\n", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := cgroupIsService(tt.content); got != tt.want {
			t.Errorf("cgroupIsService(%q) = %v, want %v", tt.content, got, tt.want)
		}
	}
}

func TestJournalKey(t *testing.T) {
	if got := journalKey("server.port-number"); got != "SERVER_PORT_NUMBER" {
		t.Errorf("journalKey = %q", got)
	}
}
