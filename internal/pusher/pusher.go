// Package pusher batches edits and submits them to the store with at most
// one batch in flight.
package pusher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"golang.org/x/sync/semaphore"

	"github.com/OFFIS-RIT/openalex-import/pkg/edit"
	"github.com/OFFIS-RIT/openalex-import/pkg/logger"
	"github.com/OFFIS-RIT/openalex-import/pkg/neolace"
)

const DefaultBatchSize = 500

// ErrSubmissionFailed is returned once the store failed to apply a batch.
var ErrSubmissionFailed = errors.New("submission failed")

// SubmissionError is a failed batch. The batch was written to RecoveryPath
// unless RecoveryPath is empty.
type SubmissionError struct {
	RecoveryPath string
	Err          error
}

func (e *SubmissionError) Error() string {
	if e.RecoveryPath == "" {
		return fmt.Sprintf("submission failed: %v", e.Err)
	}
	return fmt.Sprintf("submission failed, edits saved to %s: %v", e.RecoveryPath, e.Err)
}

func (e *SubmissionError) Unwrap() []error {
	return []error{ErrSubmissionFailed, e.Err}
}

// Stats counts the batches and edits that the store accepted.
type Stats struct {
	Batches int
	Edits   int
}

// Pusher accumulates edits and submits them in batches. Add, Flush and
// Submit are meant to be called from a single producer goroutine; the
// submission itself runs concurrently with the producer.
type Pusher struct {
	client      neolace.BulkPusher
	opts        neolace.BulkOptions
	batchSize   int
	recoveryDir string

	slot    *semaphore.Weighted
	pending []edit.Edit

	mu    sync.Mutex
	err   error
	stats Stats
}

// NewPusherParams configures a Pusher.
//
// A batch is submitted as soon as more than BatchSize edits are pending.
// Failed batches are written to RecoveryDir.
type NewPusherParams struct {
	Client      neolace.BulkPusher
	Options     neolace.BulkOptions
	BatchSize   int
	RecoveryDir string
}

func NewPusher(params NewPusherParams) *Pusher {
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	recoveryDir := params.RecoveryDir
	if recoveryDir == "" {
		recoveryDir = "."
	}
	return &Pusher{
		client:      params.Client,
		opts:        params.Options,
		batchSize:   batchSize,
		recoveryDir: recoveryDir,
		slot:        semaphore.NewWeighted(1),
	}
}

// BatchSize returns the flush threshold.
func (p *Pusher) BatchSize() int {
	return p.batchSize
}

// Add queues edits and submits the queue once it exceeds the batch size.
func (p *Pusher) Add(ctx context.Context, edits ...edit.Edit) error {
	p.pending = append(p.pending, edits...)
	if len(p.pending) > p.batchSize {
		return p.Flush(ctx)
	}
	return nil
}

// Pending returns the number of queued edits.
func (p *Pusher) Pending() int {
	return len(p.pending)
}

// Flush submits whatever is queued.
func (p *Pusher) Flush(ctx context.Context) error {
	batch := p.pending
	p.pending = nil
	return p.Submit(ctx, batch)
}

// Submit waits until the previous batch has settled, then starts submitting
// batch and returns without waiting for it. An empty batch only waits. After
// a failed submission every call returns that failure.
func (p *Pusher) Submit(ctx context.Context, batch []edit.Edit) error {
	if err := p.failure(); err != nil {
		return err
	}
	if !p.slot.TryAcquire(1) {
		logger.Info("Waiting for last bulk edit to complete")
		if err := p.slot.Acquire(ctx, 1); err != nil {
			return err
		}
	}
	if err := p.failure(); err != nil {
		p.slot.Release(1)
		return err
	}
	if len(batch) == 0 {
		p.slot.Release(1)
		return nil
	}

	logger.Info("Submitting edits", "count", len(batch))
	go func() {
		defer p.slot.Release(1)
		err := p.client.PushBulkEdits(ctx, batch, p.opts)
		p.settle(batch, err)
	}()
	return nil
}

// Wait blocks until the last submitted batch has settled and returns the
// first submission failure, if any.
func (p *Pusher) Wait(ctx context.Context) error {
	if err := p.slot.Acquire(ctx, 1); err != nil {
		return err
	}
	p.slot.Release(1)
	return p.failure()
}

// Close flushes the queue and waits for it to settle.
func (p *Pusher) Close(ctx context.Context) error {
	if err := p.Flush(ctx); err != nil {
		return err
	}
	return p.Wait(ctx)
}

func (p *Pusher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Pusher) failure() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *Pusher) settle(batch []edit.Edit, err error) {
	if err == nil {
		p.mu.Lock()
		p.stats.Batches++
		p.stats.Edits += len(batch)
		p.mu.Unlock()
		return
	}

	path, writeErr := writeRecovery(p.recoveryDir, batch)
	if writeErr != nil {
		logger.Error("Failed to write recovery file", "err", writeErr)
		err = errors.Join(err, writeErr)
	}
	logger.Error("Bulk edit failed", "edits", len(batch), "recovery", path, "err", err)

	p.mu.Lock()
	if p.err == nil {
		p.err = &SubmissionError{RecoveryPath: path, Err: err}
	}
	p.mu.Unlock()
}

// writeRecovery stores batch as an indented JSON array that edit.DecodeList
// reads back.
func writeRecovery(dir string, batch []edit.Edit) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, "failed-edits-"+id+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
