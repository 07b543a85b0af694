// Package main provides the entry point for the layerlibre CLI.
package main

import (
	"fmt"
	"os"

	"github.com/drecchia/maplibre-layerlibre/cmd/layerlibre/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
