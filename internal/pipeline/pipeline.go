// Package pipeline drives an import run: for every selected entity kind it
// mirrors the snapshot, selects the manifest files newer than the watermark
// and streams their records through the importer into the pusher.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/OFFIS-RIT/openalex-import/internal/importer"
	"github.com/OFFIS-RIT/openalex-import/internal/linestream"
	"github.com/OFFIS-RIT/openalex-import/internal/manifest"
	"github.com/OFFIS-RIT/openalex-import/internal/pusher"
	"github.com/OFFIS-RIT/openalex-import/internal/reconcile"
	"github.com/OFFIS-RIT/openalex-import/internal/runlog"
	"github.com/OFFIS-RIT/openalex-import/internal/snapshot"
	"github.com/OFFIS-RIT/openalex-import/internal/util"
	"github.com/OFFIS-RIT/openalex-import/pkg/edit"
	"github.com/OFFIS-RIT/openalex-import/pkg/logger"
	"github.com/OFFIS-RIT/openalex-import/pkg/neolace"
	"github.com/OFFIS-RIT/openalex-import/pkg/openalex"
)

// Store is the part of the content store a run writes to and reads from.
type Store interface {
	neolace.BulkPusher
	reconcile.Store
}

// Ledger remembers imported files across runs.
type Ledger interface {
	LastDate(ctx context.Context, kind openalex.EntityKind) (string, error)
	RecordFile(ctx context.Context, rec runlog.FileRecord) error
	PredictDuration(ctx context.Context, kind openalex.EntityKind, records int64) (time.Duration, error)
}

// Deps are the collaborators of a run. Source is only needed for downloads,
// Store only for imports. Ledger, Filter and Online are optional.
type Deps struct {
	Source snapshot.ObjectSource
	Store  Store
	Ledger Ledger
	Filter Filter

	// Online adds related concepts through the reconciler instead of
	// setting them declaratively.
	Online bool
}

// KindSummary reports what a run did for one kind.
type KindSummary struct {
	Kind       openalex.EntityKind
	Fetched    snapshot.Result
	Watermark  string
	Files      int
	Records    int64
	Skipped    int64
	Edits      int64
	Submission pusher.Stats
	Duration   time.Duration
}

type Pipeline struct {
	cfg  Config
	deps Deps

	fetcher    *snapshot.Fetcher
	reconciler *reconcile.Reconciler
}

func New(cfg Config, deps Deps) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Download && deps.Source == nil {
		return nil, errors.New("download requires an object source")
	}
	if cfg.Import && deps.Store == nil {
		return nil, errors.New("import requires a content store")
	}

	p := &Pipeline{cfg: cfg, deps: deps}
	if cfg.Download {
		p.fetcher = snapshot.NewFetcher(snapshot.NewFetcherParams{
			Source:          deps.Source,
			DataDir:         cfg.DataDir,
			StreamThreshold: cfg.StreamThreshold,
			Parallelism:     cfg.Parallelism,
		})
	}
	if deps.Online && deps.Store != nil {
		p.reconciler = reconcile.New(deps.Store)
	}
	return p, nil
}

// Run processes the configured kinds in order and stops at the first error.
func (p *Pipeline) Run(ctx context.Context) ([]KindSummary, error) {
	summaries := make([]KindSummary, 0, len(p.cfg.Kinds))
	for _, kind := range p.cfg.Kinds {
		summary, err := p.runKind(ctx, kind)
		summaries = append(summaries, summary)
		if err != nil {
			return summaries, fmt.Errorf("%s: %w", kind, err)
		}
		logger.Info("Finished entity kind",
			"kind", kind,
			"files", summary.Files,
			"records", summary.Records,
			"edits", summary.Edits,
			"duration", util.FormatDuration(summary.Duration),
		)
	}
	return summaries, nil
}

func (p *Pipeline) runKind(ctx context.Context, kind openalex.EntityKind) (summary KindSummary, err error) {
	start := time.Now()
	summary.Kind = kind
	defer func() { summary.Duration = time.Since(start) }()

	if p.cfg.Download {
		logger.Info("Downloading snapshot", "kind", kind)
		res, err := p.fetcher.Fetch(ctx, kind)
		summary.Fetched = res
		if err != nil {
			return summary, fmt.Errorf("download: %w", err)
		}
		logger.Info("Downloaded snapshot", "kind", kind, "downloaded", res.Downloaded, "skipped", res.Skipped)
	}
	if !p.cfg.Import {
		return summary, nil
	}

	watermark, err := p.watermark(ctx, kind)
	if err != nil {
		return summary, err
	}
	summary.Watermark = watermark

	sel, err := manifest.Read(p.cfg.DataDir, kind, watermark)
	if err != nil {
		return summary, err
	}
	logger.Info("Importing entity kind",
		"kind", kind,
		"files", len(sel.Entries),
		"records", sel.TotalRecords,
		"after", watermark,
	)
	p.logPrediction(ctx, kind, sel.TotalRecords)

	im, err := importer.ForKind(kind, importer.Options{Reconciler: p.reconciler})
	if err != nil {
		return summary, err
	}
	push := pusher.NewPusher(pusher.NewPusherParams{
		Client:      p.deps.Store,
		Options:     neolace.BulkOptions{ConnectionID: p.cfg.ConnectionID, CreateConnection: true},
		BatchSize:   p.cfg.BatchSizeFor(kind),
		RecoveryDir: p.cfg.RecoveryDir,
	})
	progress := util.NewRecordProgress(sel.TotalRecords)

	imported := make([]runlog.FileRecord, 0, len(sel.Entries))
	for _, entry := range sel.Entries {
		rec, err := p.importFile(ctx, entry, im, push, progress, &summary)
		if err != nil {
			// Let the batch in flight settle so a failed submission leaves
			// its recovery file behind.
			if waitErr := push.Wait(context.WithoutCancel(ctx)); waitErr != nil && !errors.Is(err, pusher.ErrSubmissionFailed) {
				err = errors.Join(err, waitErr)
			}
			summary.Submission = push.Stats()
			return summary, err
		}
		imported = append(imported, rec)
		summary.Files++
	}

	if err := push.Close(ctx); err != nil {
		summary.Submission = push.Stats()
		return summary, err
	}
	summary.Submission = push.Stats()

	if p.deps.Ledger != nil {
		for _, rec := range imported {
			if err := p.deps.Ledger.RecordFile(ctx, rec); err != nil {
				return summary, err
			}
		}
	}
	return summary, nil
}

func (p *Pipeline) importFile(
	ctx context.Context,
	entry manifest.Entry,
	im importer.Importer,
	push *pusher.Pusher,
	progress *util.RecordProgress,
	summary *KindSummary,
) (runlog.FileRecord, error) {
	start := time.Now()
	rec := runlog.FileRecord{Kind: entry.Kind, FileDate: entry.Date, FileName: entry.FileName}
	logger.Info("Processing file", "file", entry.Key(), "records", entry.RecordCount)

	for line, err := range linestream.Lines(ctx, entry.LocalPath(p.cfg.DataDir)) {
		if err != nil {
			return rec, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		edits, err := p.mapLine(ctx, entry.Kind, im, line)
		if err != nil {
			return rec, fmt.Errorf("%s: %w", entry.Key(), err)
		}
		if edits == nil {
			summary.Skipped++
		}
		if err := push.Add(ctx, edits...); err != nil {
			return rec, err
		}

		rec.RecordCount++
		rec.Edits += int64(len(edits))
		summary.Records++
		summary.Edits += int64(len(edits))
		progress.Add(1)
		if progress.ShouldReport() {
			logger.Info("Import progress", "kind", entry.Kind, "percent", progress.Percentage(), "records", progress.Processed)
		}
	}

	rec.Duration = time.Since(start)
	logger.Debug("Processed file", "file", entry.Key(), "records", rec.RecordCount, "edits", rec.Edits, "duration", rec.Duration)
	return rec, nil
}

// mapLine decodes one line and maps it to edits. It returns nil edits for
// records the filter rejects.
func (p *Pipeline) mapLine(ctx context.Context, kind openalex.EntityKind, im importer.Importer, line string) ([]edit.Edit, error) {
	var raw json.RawMessage
	if err := linestream.DecodeRecord(line, &raw); err != nil {
		return nil, err
	}
	if p.deps.Filter != nil {
		ok, err := p.deps.Filter(kind, raw)
		if err != nil {
			return nil, &linestream.RecordError{Line: line, Err: err}
		}
		if !ok {
			return nil, nil
		}
	}
	edits, err := im.MapToEdits(ctx, raw)
	if err != nil {
		return nil, &linestream.RecordError{Line: line, Err: err}
	}
	return edits, nil
}

func (p *Pipeline) watermark(ctx context.Context, kind openalex.EntityKind) (string, error) {
	if p.cfg.Watermark != "" || p.deps.Ledger == nil {
		return p.cfg.Watermark, nil
	}
	date, err := p.deps.Ledger.LastDate(ctx, kind)
	if err != nil {
		return "", err
	}
	if date != "" {
		logger.Info("Using watermark from run ledger", "kind", kind, "date", date)
	}
	return date, nil
}

func (p *Pipeline) logPrediction(ctx context.Context, kind openalex.EntityKind, records int64) {
	if p.deps.Ledger == nil || records == 0 {
		return
	}
	predicted, err := p.deps.Ledger.PredictDuration(ctx, kind, records)
	if err != nil {
		logger.Warn("Could not predict import duration", "kind", kind, "err", err)
		return
	}
	if predicted > 0 {
		logger.Info("Predicted import duration", "kind", kind, "duration", util.FormatDuration(predicted))
	}
}
