package util

import (
	"fmt"
	"time"
)

// RecordProgress tracks how many records of a manifest derived total have
// been processed.
type RecordProgress struct {
	Total     int64
	Processed int64

	lastReported int32
}

func NewRecordProgress(total int64) *RecordProgress {
	return &RecordProgress{Total: total, lastReported: -1}
}

// Add counts n more processed records.
func (p *RecordProgress) Add(n int64) {
	p.Processed += n
}

// Percentage returns the processed share in whole percent, capped at 100.
// Manifest counts can lag behind the files, so Processed may exceed Total.
func (p *RecordProgress) Percentage() int32 {
	if p.Total <= 0 {
		return 0
	}
	pct := min(p.Processed*100/p.Total, 100)
	return int32(pct)
}

// ShouldReport returns true once per whole percent step.
func (p *RecordProgress) ShouldReport() bool {
	pct := p.Percentage()
	if pct == p.lastReported {
		return false
	}
	p.lastReported = pct
	return true
}

// FormatDuration renders d as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}
