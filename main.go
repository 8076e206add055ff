// Package main is the entry point for the cursorbridge CLI application.
package main

import (
	"cursorbridge/cli/cmd"
)

// main is the entry point for the cursorbridge CLI application.
// It initializes and executes the command-line interface.
func main() {
	cmd.Execute()
}
