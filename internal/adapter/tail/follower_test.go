package tail

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/V4T54L/chia-harvester-metrics/internal/domain"
)

const testPoll = 10 * time.Millisecond

func setupFollower(t *testing.T, initial string, opts ...Option) (*Follower, string, func()) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "debug.log")
	if err := os.WriteFile(path, []byte(initial), 0644); err != nil {
		t.Fatalf("failed to create log file: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithPollInterval(testPoll)}, opts...)
	f, err := Open(path, logger, opts...)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Start(ctx) }()

	stop := func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start() returned %v after cancel", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("follower did not stop")
		}
	}
	return f, path, stop
}

func appendFile(t *testing.T, path, data string) {
	t.Helper()
	fh, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		t.Fatalf("failed to open log for append: %v", err)
	}
	defer fh.Close()
	if _, err := fh.WriteString(data); err != nil {
		t.Fatalf("failed to append: %v", err)
	}
}

func collect(t *testing.T, ch <-chan domain.Line, n int) []domain.Line {
	t.Helper()
	var got []domain.Line
	timeout := time.After(3 * time.Second)
	for len(got) < n {
		select {
		case l, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d of %d lines", len(got), n)
			}
			got = append(got, l)
		case <-timeout:
			t.Fatalf("timed out after %d of %d lines: %v", len(got), n, texts(got))
		}
	}
	return got
}

func expectNone(t *testing.T, ch <-chan domain.Line, wait time.Duration) {
	t.Helper()
	select {
	case l := <-ch:
		t.Fatalf("unexpected line %q", l.Text)
	case <-time.After(wait):
	}
}

func texts(lines []domain.Line) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = l.Text
	}
	return out
}

func assertTexts(t *testing.T, got []domain.Line, want ...string) {
	t.Helper()
	if g := strings.Join(texts(got), "|"); g != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", texts(got), want)
	}
}

func TestFollower_ExistingAndAppendedLines(t *testing.T) {
	f, path, stop := setupFollower(t, "first\nsecond\n")
	defer stop()

	got := collect(t, f.Lines(), 2)
	assertTexts(t, got, "first", "second")
	if got[0].Offset != 0 || got[1].Offset != 6 {
		t.Errorf("offsets = %d, %d; want 0, 6", got[0].Offset, got[1].Offset)
	}

	appendFile(t, path, "third\r\nfourth\n")
	got = collect(t, f.Lines(), 2)
	assertTexts(t, got, "third", "fourth")
	if got[0].Offset != 13 {
		t.Errorf("offset = %d, want 13", got[0].Offset)
	}

	expectNone(t, f.Lines(), 50*time.Millisecond)
}

func TestFollower_PartialWrite(t *testing.T) {
	f, path, stop := setupFollower(t, "")
	defer stop()

	appendFile(t, path, "hel")
	expectNone(t, f.Lines(), 80*time.Millisecond)

	appendFile(t, path, "lo wor")
	expectNone(t, f.Lines(), 40*time.Millisecond)

	appendFile(t, path, "ld\nnext")
	assertTexts(t, collect(t, f.Lines(), 1), "hello world")

	appendFile(t, path, "\n")
	assertTexts(t, collect(t, f.Lines(), 1), "next")
}

func TestFollower_StartAtEnd(t *testing.T) {
	f, path, stop := setupFollower(t, "old 1\nold 2\nhalf-writ", WithStartAtEnd(true))
	defer stop()

	expectNone(t, f.Lines(), 50*time.Millisecond)

	appendFile(t, path, "ten\nnew 1\n")
	assertTexts(t, collect(t, f.Lines(), 1), "new 1")
}

func TestFollower_Truncation(t *testing.T) {
	tests := []struct {
		name string
		post string
		want []string
	}{
		{
			name: "shorter content",
			post: "p1\n",
			want: []string{"p1"},
		},
		{
			name: "longer content",
			post: "post-truncate 1\npost-truncate 2\npost-truncate 3\n",
			want: []string{"post-truncate 1", "post-truncate 2", "post-truncate 3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, path, stop := setupFollower(t, "")
			defer stop()

			appendFile(t, path, "pre 1\npre 2\n")
			assertTexts(t, collect(t, f.Lines(), 2), "pre 1", "pre 2")

			// O_TRUNC keeps the inode, as copytruncate rotation does.
			if err := os.WriteFile(path, []byte(tt.post), 0644); err != nil {
				t.Fatalf("failed to rewrite log: %v", err)
			}
			assertTexts(t, collect(t, f.Lines(), len(tt.want)), tt.want...)
			expectNone(t, f.Lines(), 80*time.Millisecond)
		})
	}
}

func TestFollower_Replacement(t *testing.T) {
	f, path, stop := setupFollower(t, "a\n")
	defer stop()

	assertTexts(t, collect(t, f.Lines(), 1), "a")

	appendFile(t, path, "b\n")
	if err := os.Rename(path, path+".1"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if err := os.WriteFile(path, []byte("c\n"), 0644); err != nil {
		t.Fatalf("recreate: %v", err)
	}

	assertTexts(t, collect(t, f.Lines(), 2), "b", "c")

	appendFile(t, path, "d\n")
	got := collect(t, f.Lines(), 1)
	assertTexts(t, got, "d")
	if got[0].Offset != 2 {
		t.Errorf("offset in new file = %d, want 2", got[0].Offset)
	}
	expectNone(t, f.Lines(), 50*time.Millisecond)
}

func TestFollower_ReplacementReadsLateWritesToOldFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	if err := os.WriteFile(path, []byte("a\n"), 0644); err != nil {
		t.Fatalf("failed to create log file: %v", err)
	}
	f, err := Open(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { f.file.Close() })

	ctx := context.Background()
	if err := f.drain(ctx); err != nil {
		t.Fatalf("drain() error = %v", err)
	}

	// The writer keeps appending to the renamed file after the last read
	// and before the new file is noticed.
	if err := os.Rename(path, path+".1"); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	if err := os.WriteFile(path, []byte("c\n"), 0644); err != nil {
		t.Fatalf("failed to recreate log file: %v", err)
	}
	appendFile(t, path+".1", "b\n")

	if err := f.reopen(ctx); err != nil {
		t.Fatalf("reopen() error = %v", err)
	}

	got := collect(t, f.Lines(), 3)
	want := []domain.Line{{Text: "a", Offset: 0}, {Text: "b", Offset: 2}, {Text: "c", Offset: 0}}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestFollower_OverlongLineDropped(t *testing.T) {
	f, path, stop := setupFollower(t, "", WithMaxLineBytes(8))
	defer stop()

	appendFile(t, path, "short\n"+strings.Repeat("x", 20))
	assertTexts(t, collect(t, f.Lines(), 1), "short")

	appendFile(t, path, "yyy\nok\n")
	assertTexts(t, collect(t, f.Lines(), 1), "ok")
}

func TestFollower_FileGone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "debug.log")
	if err := os.WriteFile(path, []byte("only\n"), 0644); err != nil {
		t.Fatal(err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f, err := Open(path, logger, WithPollInterval(testPoll), WithMissingGrace(100*time.Millisecond))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- f.Start(context.Background()) }()

	assertTexts(t, collect(t, f.Lines(), 1), "only")
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrFileGone) {
			t.Fatalf("Start() = %v, want ErrFileGone", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("follower did not report missing file")
	}

	if _, ok := <-f.Lines(); ok {
		t.Error("expected lines channel to be closed")
	}
}

func TestFollower_ReappearsWithinGrace(t *testing.T) {
	f, path, stop := setupFollower(t, "", WithMissingGrace(2*time.Second))
	defer stop()

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("back\n"), 0644); err != nil {
		t.Fatal(err)
	}

	assertTexts(t, collect(t, f.Lines(), 1), "back")
}

func TestOpen_Errors(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	if _, err := Open(filepath.Join(dir, "missing.log"), logger); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Open(missing) = %v, want not-exist error", err)
	}
	if _, err := Open(dir, logger); err == nil {
		t.Error("Open(dir) should fail")
	}
}
