// Command symjit-demo exercises the symjit library end to end, one
// subcommand per literal scenario from the engine's testable-properties
// list: quadratic, sinevalley, exponential, vectors, constfreeze, order.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
