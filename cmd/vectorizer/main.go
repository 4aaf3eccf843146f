// Package main provides the entry point for the vectorizer CLI.
package main

import (
	"os"

	"github.com/vectorizer-project/vectorizer/cmd/vectorizer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
