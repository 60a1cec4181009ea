package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/OFFIS-RIT/openalex-import/internal/pipeline"
	"github.com/OFFIS-RIT/openalex-import/internal/runlog"
	"github.com/OFFIS-RIT/openalex-import/internal/util"
	"github.com/OFFIS-RIT/openalex-import/pkg/leaselock"
	"github.com/OFFIS-RIT/openalex-import/pkg/logger"
	"github.com/OFFIS-RIT/openalex-import/pkg/neolace"
	"github.com/OFFIS-RIT/openalex-import/pkg/openalex"
)

var (
	importEntities   string
	importDownload   bool
	importImport     bool
	importLastDate   string
	importConfigPath string
	importBatchSize  int
	importCountry    string
	importDryRun     bool
	importOnline     bool
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "openalex-import",
		Short: "Import OpenAlex snapshot files into a Neolace site",
		Args:  cobra.NoArgs,
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.StringVar(&importEntities, "entities", "all", "Comma separated entity kinds: concepts, institutions, venues, authors, works or all")
	f.BoolVar(&importDownload, "download", true, "Mirror the snapshot files from object storage first")
	f.BoolVar(&importImport, "import", true, "Import the downloaded files")
	f.StringVar(&importLastDate, "last-date", "", "Skip files dated on or before this YYYY-MM-DD date (defaults to the run ledger)")
	f.StringVar(&importConfigPath, "config", "", "YAML file with batch sizes and run settings")
	f.IntVar(&importBatchSize, "batch-size", 0, "Edits per bulk submission (overrides the config file)")
	f.StringVar(&importCountry, "country", "", "Only import institutions and authors of this country code")
	f.BoolVar(&importDryRun, "dry-run", false, "Apply edits to an in-memory store instead of the content store")
	f.BoolVar(&importOnline, "online", false, "Reconcile related concepts against existing entries")
	return cmd
}

func runImport(cmd *cobra.Command, args []string) error {
	start := time.Now()
	defer func() {
		logger.Info("Took", "duration", util.FormatDuration(time.Since(start)))
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kinds, err := openalex.ParseEntityKinds(importEntities)
	if err != nil {
		return err
	}
	fileCfg, err := loadFileConfig(importConfigPath)
	if err != nil {
		return err
	}

	cfg := pipeline.Config{
		Kinds:           kinds,
		DataDir:         util.GetEnvString("DATA_DIR", "."),
		Download:        importDownload,
		Import:          importImport,
		Watermark:       importLastDate,
		BatchSize:       util.GetEnvInt("BATCH_SIZE", 0),
		BatchSizes:      fileCfg.BatchSizes,
		ConnectionID:    util.GetEnvString("NEOLACE_CONNECTION_ID", "openalex"),
		RecoveryDir:     util.GetEnvString("RECOVERY_DIR", "."),
		StreamThreshold: util.GetEnvInt64("STREAM_THRESHOLD_BYTES", 0),
		Parallelism:     util.GetEnvInt("DOWNLOAD_PARALLELISM", 0),
	}
	applyFileConfig(&cfg, fileCfg)
	if cmd.Flags().Changed("batch-size") {
		cfg.BatchSize = importBatchSize
	}

	var deps pipeline.Deps
	deps.Online = importOnline

	country := importCountry
	if country == "" {
		country = fileCfg.Country
	}
	if country != "" {
		deps.Filter = pipeline.CountryFilter(country)
	}

	if cfg.Download {
		bucket, err := newSnapshotBucket(ctx)
		if err != nil {
			return err
		}
		deps.Source = bucket
	}
	if cfg.Import {
		if importDryRun {
			logger.Warn("Dry run, edits are applied to an in-memory store")
			deps.Store = neolace.NewMemoryStore()
		} else {
			client, err := newStoreClient(ctx)
			if err != nil {
				return err
			}
			deps.Store = client
		}
	}

	databaseURL := util.GetEnv("DATABASE_URL")
	if databaseURL == "" {
		return run(ctx, cfg, deps)
	}

	ledger, err := runlog.Open(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer ledger.Close()
	deps.Ledger = ledger

	return ledger.Locker().WithLease(ctx, leaselock.DataDirKey(cfg.DataDir), leaselock.Options{TokenPrefix: "import-"}, func(ctx context.Context) error {
		return run(ctx, cfg, deps)
	})
}

func applyFileConfig(cfg *pipeline.Config, fileCfg *fileConfig) {
	if fileCfg.DataDir != "" {
		cfg.DataDir = fileCfg.DataDir
	}
	if fileCfg.RecoveryDir != "" {
		cfg.RecoveryDir = fileCfg.RecoveryDir
	}
	if fileCfg.ConnectionID != "" {
		cfg.ConnectionID = fileCfg.ConnectionID
	}
	if fileCfg.BatchSize > 0 {
		cfg.BatchSize = fileCfg.BatchSize
	}
}

func run(ctx context.Context, cfg pipeline.Config, deps pipeline.Deps) error {
	p, err := pipeline.New(cfg, deps)
	if err != nil {
		return err
	}
	summaries, err := p.Run(ctx)
	for _, s := range summaries {
		logger.Info("Summary",
			"kind", s.Kind,
			"downloaded", s.Fetched.Downloaded,
			"files", s.Files,
			"records", s.Records,
			"filtered", s.Skipped,
			"batches", s.Submission.Batches,
			"edits", s.Submission.Edits,
			"duration", util.FormatDuration(s.Duration),
		)
	}
	if store, ok := deps.Store.(*neolace.MemoryStore); ok {
		logger.Info("Dry run finished", "entries", store.Len())
	}
	return err
}
