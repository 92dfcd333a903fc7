// Command blessd runs inside the booted target system. It reads the launch
// handoff marker, waits for the boot-good health signal, and commits a Good
// status into the attempt ledger. If shutdown begins first it exits without
// committing, so the boot stays recorded as a failed attempt.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/johnrichardrinehart/tinyboot/pkg/bless"
	"github.com/johnrichardrinehart/tinyboot/pkg/catalog"
	"github.com/johnrichardrinehart/tinyboot/pkg/ledger"
)

var defaultStore = catalog.Store{Dir: catalog.DefaultStoreDir}

var (
	ledgerPath = flag.String("ledger", defaultStore.LedgerPath(), "Attempt ledger file")
	markerPath = flag.String("marker", defaultStore.MarkerPath(), "Launch handoff marker file")
	signalPath = flag.String("signal", bless.DefaultSignalPath, "Boot-good health signal file")
)

func main() {
	flag.Parse()

	l, err := ledger.Open(*ledgerPath)
	if err != nil {
		log.Fatalf("Cannot open attempt ledger: %v", err)
	}

	daemon := &bless.Daemon{
		Ledger:     l,
		MarkerPath: *markerPath,
		SignalPath: *signalPath,
	}

	// SIGTERM/SIGINT mean shutdown has begun: stop waiting, commit nothing.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := daemon.Run(ctx); err != nil {
		if errors.Is(err, bless.ErrShutdown) {
			log.Printf("Shutdown before health signal, boot stays unblessed")
			os.Exit(0)
		}
		log.Fatalf("Bless failed: %v", err)
	}
}
