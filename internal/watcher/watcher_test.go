package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/kensaku/internal/config"
)

type fakeSink struct {
	mu       sync.Mutex
	ingested []string
	removed  []string
}

func (f *fakeSink) IngestFile(ctx context.Context, path string, allowedExts []string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, path)
	return true, nil
}

func (f *fakeSink) RemoveFile(ctx context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, path)
	return nil
}

func (f *fakeSink) snapshot() (ingested, removed []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ingested...), append([]string(nil), f.removed...)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(20 * time.Millisecond)
	}
	return cond()
}

func hasSuffix(paths []string, suffix string) bool {
	for _, p := range paths {
		if strings.HasSuffix(p, suffix) {
			return true
		}
	}
	return false
}

func startWatcher(t *testing.T, sink Sink, cfg *config.WatchConfig) *Watcher {
	t.Helper()
	w := New(sink, cfg, WithDebounce(50*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_IngestsWrittenFile(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	mustMkdir(t, sub)
	sink := &fakeSink{}
	startWatcher(t, sink, &config.WatchConfig{Directories: []string{dir}, Extensions: []string{".txt"}})

	mustWrite(t, filepath.Join(sub, "f.txt"), "hello")
	mustWrite(t, filepath.Join(sub, "skip.xyz"), "ignored")

	if !waitFor(t, func() bool { in, _ := sink.snapshot(); return hasSuffix(in, "f.txt") }) {
		in, _ := sink.snapshot()
		t.Fatalf("f.txt not ingested: %v", in)
	}
	in, _ := sink.snapshot()
	if hasSuffix(in, "skip.xyz") {
		t.Errorf("skip.xyz should not be ingested: %v", in)
	}
}

func TestWatcher_DebounceCoalescesWrites(t *testing.T) {
	dir := t.TempDir()
	sink := &fakeSink{}
	w := New(sink, &config.WatchConfig{Directories: []string{dir}}, WithDebounce(300*time.Millisecond))
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	path := filepath.Join(dir, "burst.txt")
	for i := 0; i < 5; i++ {
		mustWrite(t, path, strings.Repeat("x", i+1))
		time.Sleep(10 * time.Millisecond)
	}
	if !waitFor(t, func() bool { in, _ := sink.snapshot(); return len(in) > 0 }) {
		t.Fatal("file never ingested")
	}
	time.Sleep(400 * time.Millisecond)
	in, _ := sink.snapshot()
	if len(in) != 1 {
		t.Errorf("ingested %d times, want 1: %v", len(in), in)
	}
}

func TestWatcher_RemovesDeletedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gone.md")
	mustWrite(t, path, "bye")
	sink := &fakeSink{}
	startWatcher(t, sink, &config.WatchConfig{Directories: []string{dir}, Extensions: []string{"md"}})

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if !waitFor(t, func() bool { _, rm := sink.snapshot(); return hasSuffix(rm, "gone.md") }) {
		_, rm := sink.snapshot()
		t.Errorf("gone.md not removed: %v", rm)
	}
}

func TestWatcher_NewDirectoryIsIngested(t *testing.T) {
	dir := t.TempDir()
	sink := &fakeSink{}
	startWatcher(t, sink, &config.WatchConfig{Directories: []string{dir}, Extensions: []string{".txt", ".md"}})

	nested := filepath.Join(dir, "level1", "level2")
	mustMkdir(t, nested)
	mustWrite(t, filepath.Join(nested, "deep.txt"), "deep content")
	mustWrite(t, filepath.Join(dir, "level1", "top.md"), "top")

	ok := waitFor(t, func() bool {
		in, _ := sink.snapshot()
		return hasSuffix(in, "deep.txt") && hasSuffix(in, "top.md")
	})
	if !ok {
		in, _ := sink.snapshot()
		t.Errorf("expected deep.txt and top.md, got %v", in)
	}
}

func TestWatcher_SyncExisting(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	mustMkdir(t, sub)
	mustWrite(t, filepath.Join(dir, "a.txt"), "hello")
	mustWrite(t, filepath.Join(sub, "b.txt"), "nested")
	mustWrite(t, filepath.Join(dir, "ignore.xyz"), "x")

	recursive := false
	tests := []struct {
		name      string
		recursive *bool
		want      []string
	}{
		{"recursive by default", nil, []string{"a.txt", "b.txt"}},
		{"flat", &recursive, []string{"a.txt"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &fakeSink{}
			w := New(sink, &config.WatchConfig{Directories: []string{dir}, Extensions: []string{".txt"}, Recursive: tt.recursive})
			n := w.SyncExisting(context.Background())
			in, _ := sink.snapshot()
			names := make([]string, len(in))
			for i, p := range in {
				names[i] = filepath.Base(p)
			}
			sort.Strings(names)
			if n != len(tt.want) || strings.Join(names, ",") != strings.Join(tt.want, ",") {
				t.Errorf("SyncExisting = %d %v, want %v", n, names, tt.want)
			}
		})
	}
}

func TestWatcher_StartCreatesMissingRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	w := startWatcher(t, &fakeSink{}, &config.WatchConfig{Directories: []string{root}})
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
	if dirs := w.Directories(); len(dirs) != 1 || dirs[0] != root {
		t.Errorf("Directories() = %v", dirs)
	}
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	w := New(&fakeSink{}, &config.WatchConfig{Directories: []string{t.TempDir()}})
	w.Stop()
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	w.Stop()
	w.Stop()
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{"txt"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{".txt"}, false},
	}
	for _, tt := range tests {
		if got := matchExtension(tt.path, tt.extensions); got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func mustMkdir(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatal(err)
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}
