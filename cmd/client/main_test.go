package main

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"worldsmith.dev/internal/config"
)

func TestRun_IndexOpenFailureReturnsError(t *testing.T) {
	dir := t.TempDir()
	// A file where the index directory should be makes the open fail.
	if err := os.WriteFile(filepath.Join(dir, "index"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := config.Defaults()
	cfg.Persistence.DataDir = dir
	cfg.Persistence.Record = true

	err := run(log.New(io.Discard, "", 0), cfg, 0)
	if err == nil || !strings.HasPrefix(err.Error(), "open index:") {
		t.Fatalf("err=%v, want open index failure", err)
	}
}
