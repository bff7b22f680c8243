// Package main provides the entry point for tokmesh-cli.
//
// tokmesh-cli is the command-line admin tool for a tokmesh cluster.
package main

import (
	"fmt"
	"os"

	"github.com/tokmesh/cluster/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
