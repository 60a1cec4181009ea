package pipeline

import (
	"fmt"
	"time"

	"github.com/go-playground/validator"

	"github.com/OFFIS-RIT/openalex-import/internal/pusher"
	"github.com/OFFIS-RIT/openalex-import/pkg/openalex"
)

// Config selects what a run does.
//
// An empty Watermark imports every file unless a ledger knows the last
// imported date of the kind. BatchSizes overrides BatchSize per kind.
type Config struct {
	Kinds    []openalex.EntityKind `validate:"required,min=1,dive,oneof=concepts institutions venues authors works"`
	DataDir  string                `validate:"required"`
	Download bool
	Import   bool

	Watermark  string                      `validate:"omitempty,len=10"`
	BatchSize  int                         `validate:"gte=0"`
	BatchSizes map[openalex.EntityKind]int `validate:"omitempty,dive,gt=0"`

	ConnectionID string `validate:"required"`
	RecoveryDir  string

	StreamThreshold int64 `validate:"gte=0"`
	Parallelism     int   `validate:"gte=0"`
}

var validate = validator.New()

// Validate checks cfg and returns the first violation.
func (cfg Config) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Watermark != "" {
		if _, err := time.Parse(time.DateOnly, cfg.Watermark); err != nil {
			return fmt.Errorf("invalid config: watermark %q is not a YYYY-MM-DD date", cfg.Watermark)
		}
	}
	if !cfg.Download && !cfg.Import {
		return fmt.Errorf("invalid config: neither download nor import is enabled")
	}
	return nil
}

// BatchSizeFor returns the batch size used for kind.
func (cfg Config) BatchSizeFor(kind openalex.EntityKind) int {
	if n, ok := cfg.BatchSizes[kind]; ok && n > 0 {
		return n
	}
	if cfg.BatchSize > 0 {
		return cfg.BatchSize
	}
	return pusher.DefaultBatchSize
}
