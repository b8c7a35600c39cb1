// Command walletrpcd serves Nockchain balances over gRPC.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "walletrpcd:", err)
		os.Exit(1)
	}
}
