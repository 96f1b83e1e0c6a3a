//go:build !windows

package util

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func TestExecRunner_Output(t *testing.T) {
	res, err := ExecRunner{}.Run(context.Background(), Command{Name: "echo", Args: []string{"hello"}})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Stdout != "hello" {
		t.Errorf("expected 'hello', got %q", res.Stdout)
	}
}

func TestExecRunner_ExitError(t *testing.T) {
	res, err := ExecRunner{}.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo 'ERROR: no matching distribution' >&2; exit 3"},
	})

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %T: %v", err, err)
	}
	if exitErr.ExitCode != 3 || res.ExitCode != 3 {
		t.Errorf("exit code = %d/%d, want 3", exitErr.ExitCode, res.ExitCode)
	}
	if !strings.Contains(err.Error(), "no matching distribution") {
		t.Errorf("error should carry stderr, got %q", err.Error())
	}
}

func TestExecRunner_WorkDirAndEnv(t *testing.T) {
	dir := t.TempDir()
	res, err := ExecRunner{}.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "pwd; echo $PAW_TEST"},
		Dir:  dir,
		Env:  append(os.Environ(), "PAW_TEST=yes"),
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !strings.Contains(res.Stdout, "yes") {
		t.Errorf("env not passed: %q", res.Stdout)
	}
}

func TestExecRunner_Timeout(t *testing.T) {
	start := time.Now()
	_, err := ExecRunner{}.Run(context.Background(), Command{
		Name:    "sleep",
		Args:    []string{"5"},
		Timeout: 100 * time.Millisecond,
	})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if time.Since(start) > 3*time.Second {
		t.Error("timeout did not stop the command")
	}
}

func TestTail(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"a\nb\nc\nd", 2, "c\nd"},
		{"a\n\nb\n\n", 5, "a\nb"},
		{"", 3, ""},
	}
	for _, tt := range tests {
		if got := Tail(tt.in, tt.n); got != tt.want {
			t.Errorf("Tail(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
