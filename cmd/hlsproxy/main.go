// Package main is the entry point for the hlsproxy application.
package main

import (
	"os"

	"github.com/jmylchreest/hlsproxy/cmd/hlsproxy/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
