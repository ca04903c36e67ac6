package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatchPicksUpEdit(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("server:\n  port: 8080\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var lastPort atomic.Int64
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := Watch(ctx, cfgPath, func(cfg *Config) {
			lastPort.Store(int64(cfg.Server.Port))
		}); err != nil {
			t.Errorf("Watch() error: %v", err)
		}
	}()

	// Give the watcher a moment to attach before the edit lands.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(cfgPath, []byte("server:\n  port: 9191\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for lastPort.Load() != 9191 {
		if time.Now().After(deadline) {
			t.Fatalf("reload not observed, last port %d", lastPort.Load())
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatchSkipsBadEdit(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("server:\n  port: 8080\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var reloads atomic.Int64
	go func() {
		_ = Watch(ctx, cfgPath, func(*Config) { reloads.Add(1) })
	}()

	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(cfgPath, []byte(":::not valid yaml"), 0644); err != nil {
		t.Fatal(err)
	}

	// The malformed edit must not reach onChange.
	time.Sleep(500 * time.Millisecond)
	if n := reloads.Load(); n != 0 {
		t.Fatalf("bad edit triggered %d reloads, want 0", n)
	}

	// A subsequent good edit still goes through.
	if err := os.WriteFile(cfgPath, []byte("server:\n  port: 9292\n"), 0644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for reloads.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("good edit after a bad one was not reloaded")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
