package audiocore

import (
	"github.com/tphakala/audiostream/internal/errors"
)

// ComponentAudioCore identifies audiocore errors
const ComponentAudioCore = "audiocore"

// Stream error kinds. Wrap these with errors.New(...).Context(...) at the call
// site; errors.Is matches the kind through any wrapping.
var (
	// ErrOutOfRange is returned for an invalid channel count, backend
	// selector or other out-of-range parameter
	ErrOutOfRange = errors.New(errors.NewStd("parameter out of range")).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Build()

	// ErrNoFreeHandles is returned when the stream table is full
	ErrNoFreeHandles = errors.New(errors.NewStd("no free stream handles")).
				Component(ComponentAudioCore).
				Category(errors.CategoryLimit).
				Build()

	// ErrInvalidState is returned when the current state forbids the operation
	ErrInvalidState = errors.New(errors.NewStd("invalid stream state")).
			Component(ComponentAudioCore).
			Category(errors.CategoryState).
			Build()

	// ErrNull is returned for a handle or backend object that is not valid
	ErrNull = errors.New(errors.NewStd("null stream or backend")).
		Component(ComponentAudioCore).
		Category(errors.CategoryNotFound).
		Build()

	// ErrDisconnected is returned once the backend reported the device gone
	ErrDisconnected = errors.New(errors.NewStd("stream disconnected")).
			Component(ComponentAudioCore).
			Category(errors.CategoryDisconnected).
			Build()

	// ErrTimeout is returned when a blocking operation moved no data in time
	ErrTimeout = errors.New(errors.NewStd("operation timed out")).
			Component(ComponentAudioCore).
			Category(errors.CategoryTimeout).
			Build()

	// ErrUnimplemented is returned when a backend lacks the requested mode,
	// such as blocking I/O on a callback-only backend
	ErrUnimplemented = errors.New(errors.NewStd("unimplemented by backend")).
				Component(ComponentAudioCore).
				Category(errors.CategoryUnimplemented).
				Build()
)
