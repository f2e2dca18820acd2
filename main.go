package main

import (
	"os"

	"github.com/datapublik/bps-wilayah/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
