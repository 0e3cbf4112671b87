package main

import (
	"os"

	"github.com/pojntfx/storrent/cmd/storrent/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
