//go:build windows

package interp

import (
	"os"
	"path/filepath"
)

func platformCandidates(home string) []Candidate {
	c := []Candidate{
		{Path: filepath.Join(home, "python", "python.exe")},
		{Command: "python3"},
		{Command: "python"},
	}
	if local := os.Getenv("LOCALAPPDATA"); local != "" {
		for _, v := range []string{"313", "312", "311"} {
			c = append(c, Candidate{Path: filepath.Join(local, "Programs", "Python", "Python"+v, "python.exe")})
		}
	}
	return c
}

// PlatformPackageManagers returns the package manager commands tried when
// no interpreter is found.
func PlatformPackageManagers(pinned string) []PackageManagerCommand {
	return []PackageManagerCommand{
		{
			Tool:   "winget",
			Args:   []string{"install", "--exact", "--id", "Python.Python." + pinned, "--scope", "user", "--silent", "--accept-package-agreements", "--accept-source-agreements"},
			Result: "python",
		},
	}
}
