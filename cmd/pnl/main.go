package main

import (
	"os"

	"upbit-pnl/cmd/pnl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
