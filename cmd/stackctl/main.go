// Package main is the entry point for stackctl, the command-line client of
// the manager service.
//
// Commands: install, status.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
