// Command tbootgen runs once very early in the booted system's startup and
// emits the ordering/trigger rules that run the bless daemon exactly once
// per boot and strictly before the shutdown sequence. It only writes the
// declarative plan; the host's service supervisor enacts it.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/johnrichardrinehart/tinyboot/pkg/bless"
	"github.com/johnrichardrinehart/tinyboot/pkg/catalog"
	"github.com/johnrichardrinehart/tinyboot/pkg/generator"
)

var defaultStore = catalog.Store{Dir: catalog.DefaultStoreDir}

var (
	blessdPath = flag.String("blessd", "/sbin/blessd", "Bless daemon executable path")
	markerPath = flag.String("marker", defaultStore.MarkerPath(), "Launch handoff marker file")
	signalPath = flag.String("signal", bless.DefaultSignalPath, "Boot-good health signal file")
	ledgerPath = flag.String("ledger", defaultStore.LedgerPath(), "Attempt ledger file")
)

func main() {
	flag.Parse()

	// service supervisors invoke generators with the output directory as
	// the first positional argument
	outDir := flag.Arg(0)
	if outDir == "" {
		log.Print("Usage: tbootgen [flags] <output-dir>")
		os.Exit(1)
	}

	plan := generator.BuildPlan(generator.Config{
		BlessdPath: *blessdPath,
		MarkerPath: *markerPath,
		SignalPath: *signalPath,
		LedgerPath: *ledgerPath,
	})
	if err := plan.Write(outDir); err != nil {
		log.Fatalf("Cannot write boot plan: %v", err)
	}
}
