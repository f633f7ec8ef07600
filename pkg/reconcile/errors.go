package reconcile

import "github.com/pkg/errors"

// ErrMissingColumn is returned when a table has none of the accepted date or
// time column names
var ErrMissingColumn = errors.New("required column not found")
