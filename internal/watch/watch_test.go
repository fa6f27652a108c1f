package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func startWatcher(t *testing.T, paths []string) <-chan []string {
	t.Helper()
	w, err := New(paths, 50*time.Millisecond, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	batches := make(chan []string, 10)
	go w.Run(ctx, func(ctx context.Context, changed []string) error {
		batches <- changed
		return nil
	})
	return batches
}

func nextBatch(t *testing.T, batches <-chan []string) []string {
	t.Helper()
	select {
	case b := <-batches:
		return b
	case <-time.After(5 * time.Second):
		t.Fatal("no change batch delivered")
		return nil
	}
}

func TestWatcher_DebouncesTreeChanges(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "crawl"), 0o755); err != nil {
		t.Fatal(err)
	}
	batches := startWatcher(t, []string{root})

	a := filepath.Join(root, "crawl", "a.py")
	b := filepath.Join(root, "crawl", "b.py")
	for _, p := range []string{a, b, a} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if diff := cmp.Diff([]string{a, b}, nextBatch(t, batches)); diff != "" {
		t.Errorf("batch (-want +got):\n%s", diff)
	}
}

func TestWatcher_IgnoresBytecode(t *testing.T) {
	root := t.TempDir()
	batches := startWatcher(t, []string{root})

	if err := os.WriteFile(filepath.Join(root, "a.pyc"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case b := <-batches:
		t.Fatalf("unexpected batch %v", b)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcher_SingleFile(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "hostkeep.toml")
	other := filepath.Join(dir, "other.toml")
	if err := os.WriteFile(cfg, []byte("a"), 0o644); err != nil {
		t.Fatal(err)
	}
	batches := startWatcher(t, []string{cfg})

	if err := os.WriteFile(other, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg, []byte("b"), 0o644); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{cfg}, nextBatch(t, batches)); diff != "" {
		t.Errorf("batch (-want +got):\n%s", diff)
	}
}

func TestWatcher_NewSubdirectory(t *testing.T) {
	root := t.TempDir()
	batches := startWatcher(t, []string{root})

	sub := filepath.Join(root, "common")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	nextBatch(t, batches)

	f := filepath.Join(sub, "util.py")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	got := nextBatch(t, batches)
	if !contains(got, f) {
		t.Errorf("batch %v missing %s", got, f)
	}
}

func TestWatcher_MissingPath(t *testing.T) {
	if _, err := New([]string{filepath.Join(t.TempDir(), "nope")}, time.Second, nil); err == nil {
		t.Error("expected error for missing path")
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
