package campaign

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/pkg/errors"
)

// ErrResultSink wraps a failure writing to the result CSV. It is
// fatal: spec.md §7 requires the campaign to abort, leaving the
// partially-written file for inspection.
var ErrResultSink = errors.New("campaign: result sink error")

// Sink is the single-writer CSV result stream. Every row is flushed
// immediately so a crash mid-campaign leaves valid, complete rows on
// disk rather than buffered, lost ones.
type Sink struct {
	f *os.File
	w *csv.Writer
}

// NewSink creates (or truncates) path and returns a Sink ready to
// accept rows.
func NewSink(path string) (*Sink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(ErrResultSink, "create %s: %v", path, err)
	}
	return &Sink{f: f, w: csv.NewWriter(f)}, nil
}

// Write appends one row (infile, filename, key, plaintext, stdout,
// stderr, exitcode, timed_out) and flushes it. stdout/stderr are
// written as their raw bytes reinterpreted as a string; encoding/csv
// quotes embedded commas, quotes and newlines per RFC 4180, which is
// sufficient for binary-safe round-tripping through a text CSV cell.
func (s *Sink) Write(r RunResult) error {
	row := []string{
		r.InFile,
		r.Filename,
		r.Key,
		r.Plaintext,
		string(r.Stdout),
		string(r.Stderr),
		fmt.Sprintf("%d", r.ExitCode),
		fmt.Sprintf("%t", r.TimedOut),
	}
	if err := s.w.Write(row); err != nil {
		return errors.Wrap(ErrResultSink, err.Error())
	}
	s.w.Flush()
	return s.w.Error()
}

// Close flushes any buffered data and closes the underlying file.
func (s *Sink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	return s.f.Close()
}
