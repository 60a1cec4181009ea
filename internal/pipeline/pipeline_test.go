package pipeline

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/OFFIS-RIT/openalex-import/internal/importer"
	"github.com/OFFIS-RIT/openalex-import/internal/linestream"
	"github.com/OFFIS-RIT/openalex-import/internal/pusher"
	"github.com/OFFIS-RIT/openalex-import/internal/runlog"
	"github.com/OFFIS-RIT/openalex-import/internal/storage"
	"github.com/OFFIS-RIT/openalex-import/internal/storage/storagetest"
	"github.com/OFFIS-RIT/openalex-import/pkg/edit"
	"github.com/OFFIS-RIT/openalex-import/pkg/neolace"
	"github.com/OFFIS-RIT/openalex-import/pkg/openalex"
)

type snapshotFile struct {
	date  string
	lines []string
}

func gzipLines(t *testing.T, lines []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// snapshotObjects renders the objects of a kind's snapshot keyed by object
// key, manifest included.
func snapshotObjects(t *testing.T, kind openalex.EntityKind, files []snapshotFile) map[string][]byte {
	t.Helper()
	objects := map[string][]byte{}
	type meta struct {
		RecordCount int `json:"record_count"`
	}
	type entry struct {
		URL  string `json:"url"`
		Meta meta   `json:"meta"`
	}
	var entries []entry
	for _, f := range files {
		key := fmt.Sprintf("%supdated_date=%s/part_000.gz", kind.Prefix(), f.date)
		objects[key] = gzipLines(t, f.lines)
		entries = append(entries, entry{URL: "s3://openalex/" + key, Meta: meta{RecordCount: len(f.lines)}})
	}
	data, err := json.Marshal(map[string]any{"entries": entries})
	require.NoError(t, err)
	objects[kind.ManifestKey()] = data
	return objects
}

func writeSnapshot(t *testing.T, dataDir string, kind openalex.EntityKind, files []snapshotFile) {
	t.Helper()
	for key, body := range snapshotObjects(t, kind, files) {
		path := filepath.Join(dataDir, filepath.FromSlash(key))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, body, 0o644))
	}
}

func conceptLine(id, name string) string {
	return fmt.Sprintf(`{"id":"https://openalex.org/%s","display_name":%q,"level":0,"updated_date":"2023-01-01T00:00:00"}`, id, name)
}

var conceptFiles = []snapshotFile{
	{date: "2022-01-01", lines: []string{conceptLine("C1", "Old")}},
	{date: "2023-01-01", lines: []string{conceptLine("C2", "Physics"), "   ", conceptLine("C3", "Biology")}},
}

type fakeLedger struct {
	lastDate string
	recorded []runlog.FileRecord
}

func (l *fakeLedger) LastDate(ctx context.Context, kind openalex.EntityKind) (string, error) {
	return l.lastDate, nil
}

func (l *fakeLedger) RecordFile(ctx context.Context, rec runlog.FileRecord) error {
	l.recorded = append(l.recorded, rec)
	return nil
}

func (l *fakeLedger) PredictDuration(ctx context.Context, kind openalex.EntityKind, records int64) (time.Duration, error) {
	return time.Duration(records) * time.Millisecond, nil
}

func importConfig(dataDir string, kinds ...openalex.EntityKind) Config {
	return Config{
		Kinds:        kinds,
		DataDir:      dataDir,
		Import:       true,
		BatchSize:    1,
		ConnectionID: "openalex",
		RecoveryDir:  dataDir,
	}
}

func TestRun_ImportsFilesAfterWatermark(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, openalex.Concepts, conceptFiles)
	store := neolace.NewMemoryStore()
	ledger := &fakeLedger{}

	cfg := importConfig(dir, openalex.Concepts)
	cfg.Watermark = "2022-01-01"
	p, err := New(cfg, Deps{Store: store, Ledger: ledger})
	require.NoError(t, err)

	summaries, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	require.Equal(t, 1, summaries[0].Files)
	require.Equal(t, int64(2), summaries[0].Records)
	require.Equal(t, "2022-01-01", summaries[0].Watermark)

	require.Nil(t, store.Entry("C1"))
	require.Equal(t, "Physics", store.Entry("C2").Name)
	require.Equal(t, "Biology", store.Entry("C3").Name)
	require.Equal(t, summaries[0].Edits, int64(summaries[0].Submission.Edits))

	require.Len(t, ledger.recorded, 1)
	rec := ledger.recorded[0]
	require.Equal(t, openalex.Concepts, rec.Kind)
	require.Equal(t, "2023-01-01", rec.FileDate)
	require.Equal(t, "part_000.gz", rec.FileName)
	require.Equal(t, int64(2), rec.RecordCount)
}

func TestRun_WatermarkFromLedger(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, openalex.Concepts, conceptFiles)
	store := neolace.NewMemoryStore()

	p, err := New(importConfig(dir, openalex.Concepts), Deps{Store: store, Ledger: &fakeLedger{lastDate: "2022-01-01"}})
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	require.Nil(t, store.Entry("C1"))
	require.NotNil(t, store.Entry("C2"))
}

func TestRun_WithoutWatermarkImportsEverything(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, openalex.Concepts, conceptFiles)
	store := neolace.NewMemoryStore()

	p, err := New(importConfig(dir, openalex.Concepts), Deps{Store: store})
	require.NoError(t, err)
	_, err = p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, store.Len())
}

func TestRun_RecordErrorsCarryRawLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want error
	}{
		{"MalformedJSON", `{"id":"https://openalex.org/C9",`, linestream.ErrMalformedRecord},
		{"MissingIdentifier", `{"display_name":"Nameless","level":0}`, importer.ErrMissingIdentifier},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeSnapshot(t, dir, openalex.Concepts, []snapshotFile{
				{date: "2023-01-01", lines: []string{conceptLine("C2", "Physics"), tc.line}},
			})
			ledger := &fakeLedger{}
			p, err := New(importConfig(dir, openalex.Concepts), Deps{Store: neolace.NewMemoryStore(), Ledger: ledger})
			require.NoError(t, err)

			_, err = p.Run(context.Background())
			require.ErrorIs(t, err, tc.want)
			var recErr *linestream.RecordError
			require.ErrorAs(t, err, &recErr)
			require.Equal(t, tc.line, recErr.Line)
			require.Empty(t, ledger.recorded)
		})
	}
}

type rejectingStore struct {
	*neolace.MemoryStore
}

func (s rejectingStore) PushBulkEdits(ctx context.Context, edits []edit.Edit, opts neolace.BulkOptions) error {
	return errors.New("transaction exceeded memory limit")
}

func TestRun_SubmissionFailureLeavesRecoveryFile(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, openalex.Concepts, conceptFiles)
	recovery := t.TempDir()
	ledger := &fakeLedger{}

	cfg := importConfig(dir, openalex.Concepts)
	cfg.RecoveryDir = recovery
	cfg.BatchSize = 1000
	p, err := New(cfg, Deps{Store: rejectingStore{neolace.NewMemoryStore()}, Ledger: ledger})
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.ErrorIs(t, err, pusher.ErrSubmissionFailed)
	var subErr *pusher.SubmissionError
	require.ErrorAs(t, err, &subErr)
	require.Equal(t, recovery, filepath.Dir(subErr.RecoveryPath))

	data, err := os.ReadFile(subErr.RecoveryPath)
	require.NoError(t, err)
	edits, err := edit.DecodeList(data)
	require.NoError(t, err)
	require.NotEmpty(t, edits)
	require.Empty(t, ledger.recorded)
}

func TestRun_CountryFilter(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(t, dir, openalex.Institutions, []snapshotFile{{date: "2023-01-01", lines: []string{
		`{"id":"https://openalex.org/I1","display_name":"University of Toronto","country_code":"CA"}`,
		`{"id":"https://openalex.org/I2","display_name":"Harvard University","country_code":"US"}`,
	}}})
	store := neolace.NewMemoryStore()

	p, err := New(importConfig(dir, openalex.Institutions), Deps{Store: store, Filter: CountryFilter("ca")})
	require.NoError(t, err)
	summaries, err := p.Run(context.Background())
	require.NoError(t, err)

	require.NotNil(t, store.Entry("I1"))
	require.Nil(t, store.Entry("I2"))
	require.Equal(t, int64(2), summaries[0].Records)
	require.Equal(t, int64(1), summaries[0].Skipped)
}

func TestRun_DownloadThenImport(t *testing.T) {
	ctx := context.Background()
	mock, err := storagetest.StartMockS3(ctx, "openalex")
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	for key, body := range snapshotObjects(t, openalex.Concepts, conceptFiles) {
		require.NoError(t, mock.Put(ctx, key, body))
	}

	dir := t.TempDir()
	cfg := importConfig(dir, openalex.Concepts)
	cfg.Download = true
	store := neolace.NewMemoryStore()
	p, err := New(cfg, Deps{Source: storage.NewBucket(mock.Client, mock.Bucket), Store: store})
	require.NoError(t, err)

	summaries, err := p.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, summaries[0].Fetched.Downloaded)
	require.Equal(t, 3, store.Len())
}

func TestNew_Validation(t *testing.T) {
	store := neolace.NewMemoryStore()
	valid := importConfig(t.TempDir(), openalex.Concepts)

	tests := []struct {
		name   string
		mutate func(*Config)
		deps   Deps
	}{
		{"NoKinds", func(c *Config) { c.Kinds = nil }, Deps{Store: store}},
		{"UnknownKind", func(c *Config) { c.Kinds = []openalex.EntityKind{"funders"} }, Deps{Store: store}},
		{"NoDataDir", func(c *Config) { c.DataDir = "" }, Deps{Store: store}},
		{"BadWatermark", func(c *Config) { c.Watermark = "2022-13-01" }, Deps{Store: store}},
		{"ShortWatermark", func(c *Config) { c.Watermark = "2022" }, Deps{Store: store}},
		{"NoConnection", func(c *Config) { c.ConnectionID = "" }, Deps{Store: store}},
		{"NothingToDo", func(c *Config) { c.Import = false }, Deps{Store: store}},
		{"NegativeKindBatch", func(c *Config) { c.BatchSizes = map[openalex.EntityKind]int{openalex.Works: -1} }, Deps{Store: store}},
		{"DownloadWithoutSource", func(c *Config) { c.Download = true }, Deps{Store: store}},
		{"ImportWithoutStore", func(c *Config) {}, Deps{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mutate(&cfg)
			_, err := New(cfg, tc.deps)
			require.Error(t, err)
		})
	}

	_, err := New(valid, Deps{Store: store})
	require.NoError(t, err)
}

func TestBatchSizeFor(t *testing.T) {
	cfg := Config{BatchSizes: map[openalex.EntityKind]int{openalex.Works: 100}}
	require.Equal(t, 100, cfg.BatchSizeFor(openalex.Works))
	require.Equal(t, pusher.DefaultBatchSize, cfg.BatchSizeFor(openalex.Concepts))

	cfg.BatchSize = 250
	require.Equal(t, 250, cfg.BatchSizeFor(openalex.Concepts))
}
