package stream

import (
	"sync"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/errors"
	"github.com/tphakala/audiostream/internal/logger"
)

// MaxStreams is the capacity of a Table.
const MaxStreams = 8

// Table owns open streams by small integer handle. A handle becomes
// reachable only once its stream opened successfully.
type Table struct {
	opener *Opener

	mu       sync.Mutex
	streams  [MaxStreams]audiocore.Stream
	reserved [MaxStreams]bool
}

// NewTable creates an empty table opening streams through opener.
func NewTable(opener *Opener) *Table {
	return &Table{opener: opener}
}

// Opener returns the opener used by Open.
func (t *Table) Opener() *Opener { return t.opener }

// Open validates cfg, allocates a handle and opens the stream. Validation
// errors never consume a handle and a failed open releases it.
func (t *Table) Open(cfg audiocore.StreamConfig, cb audiocore.DataCallback) (int, audiocore.Stream, error) {
	if err := cfg.Validate(); err != nil {
		return -1, nil, err
	}

	handle, err := t.reserve()
	if err != nil {
		return -1, nil, err
	}

	s, err := t.opener.Open(cfg, cb)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.reserved[handle] = false
		return -1, nil, err
	}
	t.streams[handle] = s
	GetLogger().Debug("handle allocated", logger.Int("handle", handle))
	return handle, s, nil
}

func (t *Table) reserve() (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.reserved {
		if !t.reserved[i] {
			t.reserved[i] = true
			return i, nil
		}
	}
	return -1, errors.New(audiocore.ErrNoFreeHandles).
		Component("stream").
		Context("max_streams", MaxStreams).
		Build()
}

// Get returns the stream for handle.
func (t *Table) Get(handle int) (audiocore.Stream, error) {
	if handle < 0 || handle >= MaxStreams {
		return nil, errors.New(audiocore.ErrOutOfRange).
			Component("stream").
			Context("handle", handle).
			Build()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if s := t.streams[handle]; s != nil {
		return s, nil
	}
	return nil, errors.New(audiocore.ErrNull).
		Component("stream").
		Context("handle", handle).
		Build()
}

// Close closes the stream and frees its handle, even if the backend
// reported an error while closing.
func (t *Table) Close(handle int) error {
	s, err := t.Get(handle)
	if err != nil {
		return err
	}
	closeErr := s.Close()

	t.mu.Lock()
	t.streams[handle] = nil
	t.reserved[handle] = false
	t.mu.Unlock()
	GetLogger().Debug("handle released", logger.Int("handle", handle))
	return closeErr
}

// CloseAll closes every open stream.
func (t *Table) CloseAll() error {
	var errs []error
	for _, h := range t.Handles() {
		if err := t.Close(h); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Handles returns the handles of open streams in ascending order.
func (t *Table) Handles() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []int
	for i, s := range t.streams {
		if s != nil {
			out = append(out, i)
		}
	}
	return out
}

// Len returns the number of open streams.
func (t *Table) Len() int {
	return len(t.Handles())
}
