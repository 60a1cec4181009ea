// Package manifest reads the per kind snapshot manifest and selects the data
// files that are newer than a watermark.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/OFFIS-RIT/openalex-import/pkg/openalex"
)

// ErrMalformedManifestEntry is returned for a manifest entry whose URL does not
// point into the kind's dated snapshot layout.
var ErrMalformedManifestEntry = errors.New("malformed manifest entry")

// Meta is the size information attached to a manifest and to each entry.
type Meta struct {
	ContentLength int64 `json:"content_length"`
	RecordCount   int64 `json:"record_count"`
}

type rawEntry struct {
	URL  string `json:"url"`
	Meta Meta   `json:"meta"`
}

type rawManifest struct {
	Entries []rawEntry `json:"entries"`
	Meta    Meta       `json:"meta"`
}

// Entry is one data file listed by the manifest.
type Entry struct {
	Kind        openalex.EntityKind
	URL         string
	Date        string
	FileName    string
	RecordCount int64
}

// Key is the object key of the file, e.g.
// "data/concepts/updated_date=2022-01-01/part_000.gz".
func (e Entry) Key() string {
	return e.Kind.Prefix() + "updated_date=" + e.Date + "/" + e.FileName
}

// LocalPath is where the snapshot fetcher stores the file below dataDir.
func (e Entry) LocalPath(dataDir string) string {
	return filepath.Join(dataDir, filepath.FromSlash(e.Key()))
}

// Selection is the watermark filtered view of a manifest.
type Selection struct {
	Entries      []Entry
	TotalRecords int64
}

func entryPattern(kind openalex.EntityKind) *regexp.Regexp {
	return regexp.MustCompile(`^s3://[^/]+/data/` + regexp.QuoteMeta(string(kind)) + `/updated_date=(\d{4}-\d{2}-\d{2})/([^/]+)$`)
}

// Parse decodes a manifest document of kind and returns the entries dated
// strictly after watermark, in manifest order. An empty watermark selects
// every entry.
func Parse(kind openalex.EntityKind, data []byte, watermark string) (Selection, error) {
	var raw rawManifest
	if err := json.Unmarshal(data, &raw); err != nil {
		return Selection{}, fmt.Errorf("failed to decode %s manifest: %w", kind, err)
	}

	pattern := entryPattern(kind)
	var sel Selection
	for i, re := range raw.Entries {
		m := pattern.FindStringSubmatch(re.URL)
		if m == nil {
			return Selection{}, fmt.Errorf("%w: entry %d of %s manifest has url %q", ErrMalformedManifestEntry, i, kind, re.URL)
		}
		date, fileName := m[1], m[2]
		// ISO dates order lexicographically.
		if watermark != "" && date <= watermark {
			continue
		}
		sel.Entries = append(sel.Entries, Entry{
			Kind:        kind,
			URL:         re.URL,
			Date:        date,
			FileName:    fileName,
			RecordCount: re.Meta.RecordCount,
		})
		sel.TotalRecords += re.Meta.RecordCount
	}
	return sel, nil
}

// Read parses the manifest of kind that the snapshot fetcher stored below
// dataDir.
func Read(dataDir string, kind openalex.EntityKind, watermark string) (Selection, error) {
	path := filepath.Join(dataDir, filepath.FromSlash(kind.ManifestKey()))
	data, err := os.ReadFile(path)
	if err != nil {
		return Selection{}, fmt.Errorf("failed to read manifest: %w", err)
	}
	return Parse(kind, data, watermark)
}
