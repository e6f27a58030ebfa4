// Package main is the entry point for the supplies ledger.
// This is a thin wrapper around the cli package.
package main

import (
	"os"

	"github.com/zot/supplies/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
