package fifo

import (
	"github.com/tphakala/audiostream/internal/errors"
)

// ErrClosed is returned by blocking transfers once the FIFO is closed.
var ErrClosed = errors.New(errors.NewStd("fifo closed")).
	Component("fifo").
	Category(errors.CategoryState).
	Build()
