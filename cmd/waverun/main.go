package main

import (
	"os"

	"github.com/waverun-dev/waverun/internal/interface/cli"
)

func main() {
	if err := cli.NewRoot().Execute(); err != nil {
		os.Exit(1)
	}
}
