package esclient

import "errors"

// ErrNotFound is returned by Get when no document exists under the
// requested id.
var ErrNotFound = errors.New("esclient: document not found")
