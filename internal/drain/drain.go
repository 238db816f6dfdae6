// Package drain consumes child process output line by line so the child
// never blocks on a full pipe.
package drain

import (
	"bufio"
	"errors"
	"io"
	"iter"
	"log/slog"
	"os"
	"strings"

	"monistor/internal/logging"
)

// MaxLineBytes bounds a single yielded line. Longer lines are cut to this
// length and the rest up to the next newline is discarded.
const MaxLineBytes = 64 * 1024

// Lines yields each line read from r without its trailing newline. Only one
// read is outstanding at a time. The sequence ends at EOF, when the pipe is
// closed, when the consumer stops, or on the first read error, which is
// logged once and never returned.
func Lines(r io.Reader, logger *slog.Logger) iter.Seq[string] {
	return func(yield func(string) bool) {
		reader := bufio.NewReader(r)
		for {
			line, dropped, err := readLine(reader, MaxLineBytes)
			if dropped > 0 && logger != nil {
				logging.WarnWithContext(logger, "output line truncated", "output_line_truncated",
					logging.Int("limit_bytes", MaxLineBytes),
					logging.Int("dropped_bytes", dropped),
					logging.String(logging.FieldImpact, "the tail of an oversized line is discarded"),
				)
			}
			if err == nil {
				if !yield(trimEOL(line)) {
					return
				}
				continue
			}
			if line != "" && !yield(trimEOL(line)) {
				return
			}
			if !endOfStream(err) && logger != nil {
				logging.WarnWithContext(logger, "output stream read failed", "stream_read_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "remaining output from the companion daemon is discarded"),
				)
			}
			return
		}
	}
}

// Forward logs every line from r verbatim at the raw level, closes r when it
// can be closed, and reports how many lines it saw.
func Forward(r io.Reader, logger *slog.Logger) int {
	if closer, ok := r.(io.Closer); ok {
		defer closer.Close()
	}
	count := 0
	for line := range Lines(r, logger) {
		logging.Raw(logger, line)
		count++
	}
	return count
}

// readLine reads up to the next newline, keeping at most limit bytes of the
// line and reporting how many it dropped. The newline itself is not kept.
func readLine(r *bufio.Reader, limit int) (string, int, error) {
	var (
		buf     []byte
		dropped int
	)
	for {
		frag, err := r.ReadSlice('\n')
		if err == nil {
			frag = frag[:len(frag)-1]
		}
		room := max(limit-len(buf), 0)
		if len(frag) > room {
			dropped += len(frag) - room
			frag = frag[:room]
		}
		buf = append(buf, frag...)
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return string(buf), dropped, err
	}
}

func trimEOL(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}

func endOfStream(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}
