// Command trustcard runs the TrustCard verification service and its
// maintenance commands.
//
// Usage:
//
//	trustcard serve [--config path]
//	trustcard analyze <url> [--json]
//	trustcard cache stats|invalidate <key>|clear
//	trustcard sources seed|stats
//	trustcard grade <score>
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prempunmagar/trustcard/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "trustcard:", err)
		os.Exit(1)
	}
}
