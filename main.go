// The main package for the bbdcbot executable.
package main

import (
	"github.com/JakeFAU/bbdc-slot-bot/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
