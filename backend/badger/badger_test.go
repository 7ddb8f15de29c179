package badger

import (
	"context"
	"sync"
	"testing"

	"github.com/unkn0wn-root/mightycache"
	"github.com/unkn0wn-root/mightycache/backend"
	"github.com/unkn0wn-root/mightycache/backend/backendtest"
)

func TestConformanceInMemory(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend {
		b, err := New(Config{InMemory: true})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return b
	})
}

func TestConformanceOnDisk(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend {
		b, err := New(Config{Path: t.TempDir()})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		return b
	})
}

func TestNewRequiresPath(t *testing.T) {
	if _, err := New(Config{}); err != ErrNoPath {
		t.Fatalf("want ErrNoPath, got %v", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	b, err := New(Config{Path: dir})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(ctx); err != nil {
		t.Fatal(err)
	}

	b, err = New(Config{Path: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = b.Close(ctx) })
	v, ok, err := b.Get(ctx, "k")
	if err != nil || !ok || string(v) != "v" {
		t.Fatalf("after reopen: %q %v %v", v, ok, err)
	}
}

type captureLogger struct {
	mightycache.NopLogger
	mu    sync.Mutex
	lines int
}

func (c *captureLogger) Info(string, mightycache.Fields) {
	c.mu.Lock()
	c.lines++
	c.mu.Unlock()
}

func TestLoggerAdapter(t *testing.T) {
	l := &captureLogger{}
	badgerLogger{l}.Infof("opened %s", "db")
	if l.lines != 1 {
		t.Fatalf("want 1 line, got %d", l.lines)
	}
}
