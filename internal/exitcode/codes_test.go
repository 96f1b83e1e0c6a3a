package exitcode

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	err := New(ErrInstallFailed, "install failed")
	if err.Code != ErrInstallFailed {
		t.Errorf("Code = %d, want %d", err.Code, ErrInstallFailed)
	}
	if err.Message != "install failed" {
		t.Errorf("Message = %q, want %q", err.Message, "install failed")
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(ErrInstallFailed, "pip install failed", cause)

	if err.Code != ErrInstallFailed {
		t.Errorf("Code = %d, want %d", err.Code, ErrInstallFailed)
	}
	if !errors.Is(err, cause) {
		t.Error("Wrap should preserve cause for errors.Is")
	}
}

func TestError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "without cause",
			err:  New(ErrGeneral, "something broke"),
			want: "something broke",
		},
		{
			name: "with cause",
			err:  Wrap(ErrInstallFailed, "install failed", errors.New("exit status 1")),
			want: "install failed: exit status 1",
		},
		{
			name: "with remediation",
			err:  New(ErrGeneral, "boom").WithRemediation("try again"),
			want: "boom\n\ntry again",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil error", nil, Success},
		{"coded error", New(ErrStartupTimeout, "slow"), ErrStartupTimeout},
		{"wrapped coded", fmt.Errorf("starting: %w", OperationInProgress("install")), ErrOperationInProgress},
		{"plain error", errors.New("plain"), ErrGeneral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Code(tt.err); got != tt.want {
				t.Errorf("Code() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCategoriesAreDistinct(t *testing.T) {
	errs := map[string]*Error{
		"runtime":    RuntimeUnavailable("3.11"),
		"dependency": DependencyMissing("git", "for branch installs"),
		"install":    InstallFailed("install failed", "/tmp/launcher.log", nil),
		"timeout":    StartupTimeout(8888, time.Minute),
		"busy":       OperationInProgress("reset"),
		"removal":    ComponentRemovalFailed("logs", errors.New("in use")),
	}

	seen := make(map[int]string)
	for name, err := range errs {
		if other, ok := seen[err.Code]; ok {
			t.Errorf("%s and %s share code %d", name, other, err.Code)
		}
		seen[err.Code] = name
		if err.Code == ErrGeneral {
			t.Errorf("%s uses the generic code", name)
		}
	}
}

func TestFatalErrorsCarryRemediation(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"runtime", RuntimeUnavailable("3.11"), PythonDownloadURL},
		{"git", DependencyMissing("git", "for branch installs"), GitDownloadURL},
		{"install", InstallFailed("failed", "/home/u/.pocketclaw/logs/launcher.log", nil), "launcher.log"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !strings.Contains(tt.err.Remediation, tt.want) {
				t.Errorf("Remediation = %q, want it to mention %q", tt.err.Remediation, tt.want)
			}
			if RemediationOf(fmt.Errorf("outer: %w", tt.err)) != tt.err.Remediation {
				t.Error("RemediationOf should see through wrapping")
			}
		})
	}
}

func TestIs(t *testing.T) {
	err := OperationInProgress("install")
	if !Is(err, ErrOperationInProgress) {
		t.Error("Is should match ErrOperationInProgress")
	}
	if Is(err, ErrInstallFailed) {
		t.Error("Is should not match ErrInstallFailed")
	}
	if Is(nil, ErrGeneral) {
		t.Error("nil error should not match ErrGeneral")
	}
}
