//go:build !windows

package interp

import "runtime"

func platformCandidates(home string) []Candidate {
	c := []Candidate{
		{Command: "python3"},
		{Command: "python3.13"},
		{Command: "python3.12"},
		{Command: "python3.11"},
		{Command: "python"},
	}
	if runtime.GOOS == "darwin" {
		c = append(c,
			Candidate{Path: "/opt/homebrew/bin/python3"},
			Candidate{Path: "/usr/local/bin/python3"},
			Candidate{Path: "/Library/Frameworks/Python.framework/Versions/Current/bin/python3"},
		)
	}
	c = append(c, Candidate{Path: "/usr/bin/python3"})
	return c
}

// PlatformPackageManagers returns the package manager commands tried when
// no interpreter is found.
func PlatformPackageManagers(pinned string) []PackageManagerCommand {
	return []PackageManagerCommand{
		{Tool: "brew", Args: []string{"install", "python@" + pinned}, Result: "python" + pinned},
	}
}
