package linestream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/OFFIS-RIT/openalex-import/internal/util"
)

// ErrMalformedRecord is returned for a line that is not valid JSON, even after
// the backslash fallback.
var ErrMalformedRecord = errors.New("malformed record")

// RecordError carries the raw line a record failed on.
type RecordError struct {
	Line string
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, util.Abbreviate(e.Line, 512))
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

// DecodeRecord unmarshals line into v. Some snapshot lines contain doubled
// backslashes that break JSON string escapes; if the first attempt fails the
// line is decoded once more with every `\\` collapsed to `\`. If that fails as
// well, the error of the first attempt is returned together with the line.
func DecodeRecord(line string, v any) error {
	err := json.Unmarshal([]byte(line), v)
	if err == nil {
		return nil
	}
	if fixed := strings.ReplaceAll(line, `\\`, `\`); fixed != line {
		if json.Unmarshal([]byte(fixed), v) == nil {
			return nil
		}
	}
	return &RecordError{Line: line, Err: fmt.Errorf("%w: %w", ErrMalformedRecord, err)}
}
