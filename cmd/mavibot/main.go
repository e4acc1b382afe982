// cmd/mavibot/main.go
//
// mavibot CLI - interactive key/value shell over a mavibot store.
//
// Usage:
//
//	mavibot [data-file]
//
// If no data file is specified, opens an in-memory store. Use .help for
// available commands.
package main

import (
	"fmt"
	"os"

	"mavibot/pkg/cli"
)

func main() {
	dbPath := ":memory:"
	if len(os.Args) > 1 {
		dbPath = os.Args[1]
	}

	repl, err := cli.NewREPL(dbPath, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening store: %v\n", err)
		os.Exit(1)
	}
	defer repl.Close()

	repl.Run()
}
