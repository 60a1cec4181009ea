package linestream

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func sampleText(lines int) string {
	var sb strings.Builder
	rng := rand.New(rand.NewPCG(1, 2))
	for i := range lines {
		fmt.Fprintf(&sb, `{"id":"https://openalex.org/W%d","title":"%s","pad":"%s"}`, i, "Grüße ☃", strings.Repeat("x", rng.IntN(400)))
		sb.WriteByte('\n')
		if i%97 == 0 {
			sb.WriteByte('\n')
		}
	}
	sb.WriteString(`{"id":"https://openalex.org/Wlast"}`)
	return sb.String()
}

func TestSplitter_ArbitraryChunks(t *testing.T) {
	text := sampleText(20000)
	if len(text) < 2<<20 {
		t.Fatalf("sample too small: %d bytes", len(text))
	}
	want := strings.Split(text, "\n")

	rng := rand.New(rand.NewPCG(3, 4))
	for round := range 5 {
		var s Splitter
		var got []string
		data := []byte(text)
		for len(data) > 0 {
			n := 1 + rng.IntN(9000)
			if round == 0 {
				n = 1
			}
			n = min(n, len(data))
			chunk := slices.Clone(data[:n])
			got = append(got, s.Feed(chunk)...)
			clear(chunk)
			data = data[n:]
		}
		if line, ok := s.Flush(); ok {
			got = append(got, line)
		}

		if !slices.Equal(got, want) {
			t.Fatalf("round %d: got %d lines, want %d", round, len(got), len(want))
		}
	}
}

func TestSplitter_TrailingNewline(t *testing.T) {
	var s Splitter
	got := s.Feed([]byte("a\nb\n"))
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("got %q", got)
	}
	if _, ok := s.Flush(); ok {
		t.Fatal("no fragment expected after a final line feed")
	}
}

func writeGzip(t *testing.T, text string) string {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(text)); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "part_000.gz")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLines_GzipFile(t *testing.T) {
	text := sampleText(5000)
	path := writeGzip(t, text)

	var got []string
	for line, err := range Lines(context.Background(), path) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, line)
	}
	if !slices.Equal(got, strings.Split(text, "\n")) {
		t.Fatalf("decoded %d lines, want %d", len(got), len(strings.Split(text, "\n")))
	}
}

func TestLines_EarlyBreak(t *testing.T) {
	path := writeGzip(t, "a\nb\nc\n")
	var got []string
	for line, err := range Lines(context.Background(), path) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, line)
		if len(got) == 2 {
			break
		}
	}
	if !slices.Equal(got, []string{"a", "b"}) {
		t.Fatalf("got %q", got)
	}
}

func TestLines_NotGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.gz")
	if err := os.WriteFile(path, []byte("not compressed"), 0o644); err != nil {
		t.Fatal(err)
	}
	var gotErr error
	for _, err := range Lines(context.Background(), path) {
		gotErr = err
	}
	if gotErr == nil {
		t.Fatal("expected error for a file that is not gzip compressed")
	}
}

func TestLines_Canceled(t *testing.T) {
	path := writeGzip(t, "a\nb\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var gotErr error
	for _, err := range Lines(ctx, path) {
		gotErr = err
	}
	if !errors.Is(gotErr, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", gotErr)
	}
}

func TestDecodeRecord(t *testing.T) {
	type record struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	}

	tests := []struct {
		name      string
		line      string
		want      record
		wantError bool
	}{
		{"Valid", `{"id":"W1","title":"a \"quoted\" word"}`, record{"W1", `a "quoted" word`}, false},
		{"ValidEscapedBackslash", `{"id":"W2","title":"C:\\temp"}`, record{"W2", `C:\temp`}, false},
		{"DoubledBackslashFallback", `{"id":"W3","title":"say \\"hi\\""}`, record{"W3", `say "hi"`}, false},
		{"BothFail", `{"id":"W4","title":}`, record{}, true},
		{"FallbackFailsToo", `{"id":"W5","title":"x \\"`, record{}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got record
			err := DecodeRecord(tc.line, &got)
			if tc.wantError {
				if !errors.Is(err, ErrMalformedRecord) {
					t.Fatalf("expected ErrMalformedRecord, got %v", err)
				}
				var recErr *RecordError
				if !errors.As(err, &recErr) || recErr.Line != tc.line {
					t.Fatalf("error does not carry the raw line: %v", err)
				}
				var syntaxErr *json.SyntaxError
				if !errors.As(err, &syntaxErr) {
					t.Fatalf("original parse error not kept: %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}
