// Package snapshot mirrors the snapshot bucket of one entity kind to local
// disk.
package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/OFFIS-RIT/openalex-import/internal/storage"
	"github.com/OFFIS-RIT/openalex-import/pkg/logger"
	"github.com/OFFIS-RIT/openalex-import/pkg/openalex"
)

const (
	DefaultStreamThreshold = 64 << 20
	DefaultParallelism     = 4
)

// ObjectSource is the read side of the bucket the fetcher mirrors.
type ObjectSource interface {
	List(ctx context.Context, prefix string) ([]storage.Object, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Fetcher downloads snapshot objects into DataDir, keeping the bucket's key
// layout.
type Fetcher struct {
	source          ObjectSource
	dataDir         string
	streamThreshold int64
	parallelism     int
}

// NewFetcherParams configures a Fetcher.
//
// Objects smaller than StreamThreshold are read into memory before they are
// written, larger ones are streamed to a temporary file.
type NewFetcherParams struct {
	Source          ObjectSource
	DataDir         string
	StreamThreshold int64
	Parallelism     int
}

func NewFetcher(params NewFetcherParams) *Fetcher {
	threshold := params.StreamThreshold
	if threshold <= 0 {
		threshold = DefaultStreamThreshold
	}
	parallelism := params.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	return &Fetcher{
		source:          params.Source,
		dataDir:         dataDir,
		streamThreshold: threshold,
		parallelism:     parallelism,
	}
}

// Result counts what a Fetch did.
type Result struct {
	Downloaded int
	Skipped    int
}

// LocalPath maps an object key to its path below the data directory.
func (f *Fetcher) LocalPath(key string) (string, error) {
	if !filepath.IsLocal(filepath.FromSlash(key)) {
		return "", fmt.Errorf("object key %q escapes the data directory", key)
	}
	return filepath.Join(f.dataDir, filepath.FromSlash(key)), nil
}

// Fetch mirrors every object below kind's prefix. Files that already exist
// locally are skipped, except for the manifest which is always replaced.
// The first error cancels the remaining downloads and is returned.
func (f *Fetcher) Fetch(ctx context.Context, kind openalex.EntityKind) (Result, error) {
	objects, err := f.source.List(ctx, kind.Prefix())
	if err != nil {
		return Result{}, err
	}

	var downloaded, skipped atomic.Int64
	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(f.parallelism)
	for _, obj := range objects {
		local, err := f.LocalPath(obj.Key)
		if err != nil {
			return Result{}, err
		}
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return Result{}, fmt.Errorf("failed to create directory for %s: %w", local, err)
		}

		isManifest := obj.Key == kind.ManifestKey()
		if !isManifest && exists(local) {
			skipped.Add(1)
			continue
		}

		eg.Go(func() error {
			logger.Info("Downloading file", "key", obj.Key, "size", obj.Size)
			if err := f.download(gCtx, obj, local); err != nil {
				return err
			}
			downloaded.Add(1)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return Result{Downloaded: int(downloaded.Load()), Skipped: int(skipped.Load())}, err
	}

	return Result{Downloaded: int(downloaded.Load()), Skipped: int(skipped.Load())}, nil
}

func (f *Fetcher) download(ctx context.Context, obj storage.Object, local string) error {
	body, err := f.source.Open(ctx, obj.Key)
	if err != nil {
		return err
	}
	defer body.Close()

	var src io.Reader = body
	if obj.Size < f.streamThreshold {
		data, err := io.ReadAll(body)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", obj.Key, err)
		}
		src = bytes.NewReader(data)
	}
	if err := writeAtomic(local, src); err != nil {
		return fmt.Errorf("failed to write %s: %w", obj.Key, err)
	}
	return nil
}

// writeAtomic writes r to a temporary sibling of path and renames it into
// place once complete. Only the temporary file can ever be partial.
func writeAtomic(path string, r io.Reader) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".part-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = io.Copy(tmp, r); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
