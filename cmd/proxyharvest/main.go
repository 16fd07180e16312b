// The main package for the proxyharvest executable.
package main

import (
	"github.com/JakeFAU/proxyharvest/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
