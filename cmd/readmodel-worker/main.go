// Command readmodel-worker consumes invalidation jobs, keeps the stats
// snapshots warm and exposes operator commands for the read model cache.
package main

import (
	"os"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
