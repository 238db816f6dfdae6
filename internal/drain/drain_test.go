package drain_test

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"testing"
	"testing/iotest"

	"monistor/internal/drain"
	"monistor/internal/logging"
)

func captureLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: logging.LevelRaw}))
}

func TestLinesYieldsInOrderWithoutTerminators(t *testing.T) {
	input := "first\nsecond\r\n\nlast"
	got := slices.Collect(drain.Lines(strings.NewReader(input), logging.NewNop()))
	want := []string{"first", "second", "", "last"}
	if !slices.Equal(got, want) {
		t.Fatalf("Lines = %q, want %q", got, want)
	}
}

func TestLinesEmptyStream(t *testing.T) {
	if got := slices.Collect(drain.Lines(strings.NewReader(""), logging.NewNop())); len(got) != 0 {
		t.Fatalf("expected no lines, got %q", got)
	}
}

func TestLinesHandlesIncrementalReads(t *testing.T) {
	r := iotest.OneByteReader(strings.NewReader("a\nbc\nd"))
	got := slices.Collect(drain.Lines(r, logging.NewNop()))
	if !slices.Equal(got, []string{"a", "bc", "d"}) {
		t.Fatalf("unexpected lines %q", got)
	}
}

func TestLinesStopsWhenConsumerBreaks(t *testing.T) {
	var seen []string
	for line := range drain.Lines(strings.NewReader("1\n2\n3\n"), logging.NewNop()) {
		seen = append(seen, line)
		if line == "2" {
			break
		}
	}
	if !slices.Equal(seen, []string{"1", "2"}) {
		t.Fatalf("unexpected lines %q", seen)
	}
}

func TestLinesLogsReadErrorOnce(t *testing.T) {
	var buf bytes.Buffer
	boom := errors.New("device gone")
	r := io.MultiReader(strings.NewReader("ok\npartial"), iotest.ErrReader(boom))

	got := slices.Collect(drain.Lines(r, captureLogger(&buf)))
	if !slices.Equal(got, []string{"ok", "partial"}) {
		t.Fatalf("unexpected lines %q", got)
	}
	if n := strings.Count(buf.String(), "output stream read failed"); n != 1 {
		t.Fatalf("expected one read failure log, got %d:\n%s", n, buf.String())
	}
	if !strings.Contains(buf.String(), "device gone") {
		t.Fatalf("expected error text in log:\n%s", buf.String())
	}
}

func TestLinesTreatsClosedPipeAsEnd(t *testing.T) {
	var buf bytes.Buffer
	pr, pw := io.Pipe()
	go func() {
		_, _ = pw.Write([]byte("hello\n"))
		_ = pw.Close()
	}()
	got := slices.Collect(drain.Lines(pr, captureLogger(&buf)))
	if !slices.Equal(got, []string{"hello"}) {
		t.Fatalf("unexpected lines %q", got)
	}
	if strings.Contains(buf.String(), "read failed") {
		t.Fatalf("clean close should not log a failure:\n%s", buf.String())
	}
}

type closeRecorder struct {
	io.Reader
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestForwardLogsRawLinesAndCloses(t *testing.T) {
	var buf bytes.Buffer
	src := &closeRecorder{Reader: strings.NewReader("Entering streaming loop\nDisplay configured\n")}

	n := drain.Forward(src, captureLogger(&buf))
	if n != 2 {
		t.Fatalf("Forward = %d, want 2", n)
	}
	if !src.closed {
		t.Fatal("expected reader to be closed")
	}
	out := buf.String()
	if strings.Count(out, "level=DEBUG-4") != 2 {
		t.Fatalf("expected two raw-level records:\n%s", out)
	}
	if !strings.Contains(out, `msg="Entering streaming loop"`) {
		t.Fatalf("expected verbatim line:\n%s", out)
	}
}

func TestLinesCapsOversizedLines(t *testing.T) {
	var buf bytes.Buffer
	input := strings.Repeat("x", 2*drain.MaxLineBytes+10) + "\nnext\n" + strings.Repeat("y", drain.MaxLineBytes) + "\n"
	got := slices.Collect(drain.Lines(strings.NewReader(input), captureLogger(&buf)))

	if len(got) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(got))
	}
	if len(got[0]) != drain.MaxLineBytes || strings.Trim(got[0], "x") != "" {
		t.Fatalf("expected first line cut to %d bytes, got %d", drain.MaxLineBytes, len(got[0]))
	}
	if got[1] != "next" {
		t.Fatalf("line after truncation = %q, want next", got[1])
	}
	if len(got[2]) != drain.MaxLineBytes {
		t.Fatalf("line at the limit should be kept whole, got %d bytes", len(got[2]))
	}
	if n := strings.Count(buf.String(), "output line truncated"); n != 1 {
		t.Fatalf("expected one truncation warning, got %d:\n%s", n, buf.String())
	}
	if !strings.Contains(buf.String(), "dropped_bytes="+strconv.Itoa(drain.MaxLineBytes+10)) {
		t.Fatalf("expected dropped byte count in log:\n%s", buf.String())
	}
}
