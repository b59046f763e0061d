// Command acquisition runs the job acquisition service and its tooling.
package main

import (
	"fmt"
	"os"

	"jobmate/acquisition-service/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
