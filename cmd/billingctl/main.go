// Command billingctl runs billing operations from the command line:
// schema migrations, due billing runs, trial reminders and single
// subscription inspection or charging.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
