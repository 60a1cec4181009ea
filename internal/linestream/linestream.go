// Package linestream turns gzip compressed JSON lines files into a lazy
// sequence of lines.
package linestream

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"iter"
	"os"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ChunkSize is the size of the reads from the decoded stream.
const ChunkSize = 64 << 10

// Splitter splits a stream of chunks on line feeds. A fragment at the end of
// a chunk is carried over and prepended to the next one.
type Splitter struct {
	carry []byte
}

// Feed consumes chunk and returns every line it completes, without the line
// feed. chunk may be reused by the caller once Feed returns.
func (s *Splitter) Feed(chunk []byte) []string {
	var lines []string
	for {
		i := bytes.IndexByte(chunk, '\n')
		if i < 0 {
			break
		}
		if len(s.carry) > 0 {
			s.carry = append(s.carry, chunk[:i]...)
			lines = append(lines, string(s.carry))
			s.carry = s.carry[:0]
		} else {
			lines = append(lines, string(chunk[:i]))
		}
		chunk = chunk[i+1:]
	}
	s.carry = append(s.carry, chunk...)
	return lines
}

// Flush returns the trailing fragment that was not terminated by a line
// feed, if any.
func (s *Splitter) Flush() (string, bool) {
	if len(s.carry) == 0 {
		return "", false
	}
	line := string(s.carry)
	s.carry = s.carry[:0]
	return line, true
}

// NewReader wraps a gzip compressed stream into a reader of UTF-8 text.
// Invalid byte sequences are replaced by U+FFFD.
func NewReader(r io.Reader) (io.ReadCloser, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip stream: %w", err)
	}
	return &textReader{
		Reader: transform.NewReader(gz, unicode.UTF8.NewDecoder()),
		gz:     gz,
	}, nil
}

type textReader struct {
	io.Reader
	gz *gzip.Reader
}

func (r *textReader) Close() error {
	return r.gz.Close()
}

// LinesFromReader yields the lines of the text in r. Blank lines are yielded
// too. Iteration stops at the first read error, which is yielded last.
func LinesFromReader(ctx context.Context, r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		var s Splitter
		buf := make([]byte, ChunkSize)
		for {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			n, err := r.Read(buf)
			if n > 0 {
				for _, line := range s.Feed(buf[:n]) {
					if !yield(line, nil) {
						return
					}
				}
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				yield("", err)
				return
			}
		}
		if line, ok := s.Flush(); ok {
			yield(line, nil)
		}
	}
}

// Lines yields the lines of the gzip compressed file at path. The file is
// opened when iteration starts and closed when it ends, so the sequence can
// be consumed only once per call.
func Lines(ctx context.Context, path string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield("", fmt.Errorf("failed to open %s: %w", path, err))
			return
		}
		defer f.Close()

		text, err := NewReader(f)
		if err != nil {
			yield("", fmt.Errorf("%s: %w", path, err))
			return
		}
		defer text.Close()

		for line, err := range LinesFromReader(ctx, text) {
			if err != nil {
				yield("", fmt.Errorf("failed to read %s: %w", path, err))
				return
			}
			if !yield(line, nil) {
				return
			}
		}
	}
}
