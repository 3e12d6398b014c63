package main

import (
	"os"

	"github.com/luxfi/erc20-processor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
