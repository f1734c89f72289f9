// Package main is the entry point of the pkms CLI.
package main

import (
	"os"

	"github.com/pkms-dev/pkms/cmd/pkms/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
