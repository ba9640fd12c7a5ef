// Package main is the entry point for the agentry CLI.
package main

import (
	"fmt"
	"os"

	"github.com/agentry-dev/agentry/internal/cli"
)

// version is set at build time using -ldflags.
var version = "dev"

func main() {
	rootCmd := cli.NewRootCommand(version)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
