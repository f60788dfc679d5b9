// Command jobcored runs the job orchestrator: the polling dispatcher, the
// Redis durable queue when configured, and a metrics endpoint.
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
