// Command fainderqld is the query-engine CLI: it serves the full-text
// reference backend, runs one-shot queries against an on-disk generation,
// reports result-cache stats and triggers an index-generation swap.
package main

import (
	"os"

	"github.com/fainderql/queryengine/cmd/fainderqld/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
