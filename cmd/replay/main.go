package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"worldsmith.dev/internal/persistence/indexdb"
	framelog "worldsmith.dev/internal/persistence/log"
)

func main() {
	var (
		dataDir = flag.String("data", "./data", "runtime data directory (frames under <data>/frames)")
		file    = flag.String("file", "", "single frames-*.jsonl.zst file (overrides -data)")
		verbose = flag.Bool("v", false, "print every frame")
		dbPath  = flag.String("db", "", "traffic index to summarize (default: <data>/index/traffic.sqlite if present)")
	)
	flag.Parse()

	var files []string
	if *file != "" {
		files = []string{*file}
	} else {
		fs, err := framelog.ListFrameFiles(*dataDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, "list frames:", err)
			os.Exit(1)
		}
		files = fs
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no frame files found under", framelog.FramesDir(*dataDir))
		os.Exit(1)
	}

	var out io.Writer
	if *verbose {
		out = os.Stdout
	}
	rep, err := replay(files, out)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	rep.print(os.Stdout)

	db := *dbPath
	if db == "" {
		db = filepath.Join(*dataDir, "index", "traffic.sqlite")
		if _, err := os.Stat(db); err != nil {
			return
		}
	}
	sum, err := indexdb.ReadSummary(context.Background(), db)
	if err != nil {
		fmt.Fprintln(os.Stderr, "index:", err)
		os.Exit(1)
	}
	fmt.Printf("index: flushes=%d sent=%d (%s) dropped=%d connects=%d disconnects=%d\n",
		sum.Flushes, sum.FramesSent, humanize.Bytes(uint64(sum.BytesSent)), sum.FramesDropped, sum.Connects, sum.Disconnects)
	for _, code := range sum.Codes() {
		fmt.Printf("index: decode drops %s=%d\n", code, sum.DecodeDrops[code])
	}
}
