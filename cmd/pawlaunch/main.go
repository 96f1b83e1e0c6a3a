// pawlaunch installs, runs and updates PocketPaw on the local machine.
package main

import (
	"os"

	"github.com/steveyegge/pawlaunch/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
