// The main package for the leadcapture executable.
package main

import (
	"github.com/JakeFAU/leadcapture/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
