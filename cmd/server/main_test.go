package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harrylevesque/stationbook/internal/crypto"
	"github.com/harrylevesque/stationbook/internal/storage"
)

func setServerEnv(t *testing.T, addr string) (dbPath, logPath string) {
	t.Helper()
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "stationbook.db")
	logPath = filepath.Join(dir, "server.log")
	t.Setenv("STATIONBOOK_HTTP_ADDR", addr)
	t.Setenv("STATIONBOOK_DB_PATH", dbPath)
	t.Setenv("MASTER_KEY_HEX", crypto.GenerateMasterKey())
	t.Setenv("STATIONBOOK_LOG_FILE", logPath)
	return dbPath, logPath
}

func TestRunReturnsListenErrorAfterClosingResources(t *testing.T) {
	dbPath, logPath := setServerEnv(t, "127.0.0.1:-1")

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "serve") {
		t.Fatalf("run() error = %v, want serve error", err)
	}

	logs, readErr := os.ReadFile(logPath)
	if readErr != nil {
		t.Fatalf("read log: %v", readErr)
	}
	if !strings.Contains(string(logs), "serve:") {
		t.Fatalf("listen failure not logged: %q", logs)
	}

	store, openErr := storage.Open(dbPath)
	if openErr != nil {
		t.Fatalf("reopen store: %v", openErr)
	}
	_ = store.Close()
}

func TestRunStopsWhenContextIsDone(t *testing.T) {
	setServerEnv(t, "127.0.0.1:0")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() error = %v, want nil", err)
		}
	case <-time.After(shutdownTimeout + 5*time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestRunRejectsBadConfig(t *testing.T) {
	setServerEnv(t, "127.0.0.1:0")
	t.Setenv("MASTER_KEY_HEX", "not-hex")
	if err := run(context.Background()); err == nil || !strings.Contains(err.Error(), "master key") {
		t.Fatalf("run() error = %v, want master key error", err)
	}
}
