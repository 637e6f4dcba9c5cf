package analysis

import "github.com/tphakala/ambient-go/internal/errors"

// ErrInvalidPeriod is returned for capture periods outside 1..10 seconds.
var ErrInvalidPeriod = errors.NewStd("capture period must be between 1 and 10 seconds")
