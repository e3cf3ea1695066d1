// Command tableflow loads tables from files or URLs, filters and transforms
// their rows concurrently, and stores the results in a document collection.
//
//	tableflow run -c pipeline.yaml
//	tableflow validate -c pipeline.yaml
package main

import (
	"errors"
	"fmt"
	"os"

	// register all backends with the storage factory; the config picks one.
	_ "tableflow/internal/storage/all"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errRunFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(exitCode(err))
	}
}

// exitCode is 2 for config and setup errors and 1 when the run finished
// with failed rows or tables.
func exitCode(err error) int {
	if errors.Is(err, errRunFailed) {
		return 1
	}
	return 2
}
