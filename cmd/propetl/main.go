// Command propetl ingests property-listing tables (CSV, XLSX, HTML) into the
// configured store and prints one JSON run summary per input.
//
//	propetl run listings.csv https://example.com/export.xlsx
//	propetl run --list inputs.txt --replace
//	propetl validate listings.csv
//	propetl watch ./inbox
//	propetl config check
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "propetl:", err)
		os.Exit(1)
	}
}
