package ohlcv

import (
	"fmt"
	"strings"
)

// SchemaError reports a frame or series that does not satisfy the OHLCV schema.
type SchemaError struct {
	Missing []string // required fields that could not be located
	Column  string   // offending column for cell-level failures
	Row     int      // zero-based data row for cell-level failures
	Reason  string
}

func (e *SchemaError) Error() string {
	switch {
	case len(e.Missing) > 0:
		return fmt.Sprintf("schema error: missing required fields: %s", strings.Join(e.Missing, ","))
	case e.Column != "":
		return fmt.Sprintf("schema error: column %q row %d: %s", e.Column, e.Row, e.Reason)
	default:
		return fmt.Sprintf("schema error: %s", e.Reason)
	}
}
