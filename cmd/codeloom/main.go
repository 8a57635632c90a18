// Package main provides the entry point for the codeloom CLI.
package main

import (
	"os"

	"github.com/codeloom/codeloom/cmd/codeloom/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
