package main

import (
	"os"

	"github.com/ArkLabsHQ/intentd/cmd/intentctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
