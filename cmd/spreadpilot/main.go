package main

import (
	"os"

	"github.com/tkrause/spreadpilot/cmd/spreadpilot/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
