// The main package for the kb-linkcheck executable.
package main

import (
	"github.com/atoombs-lib/kb-linkcheck/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
