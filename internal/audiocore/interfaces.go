package audiocore

import "time"

// DataCallback receives audio on the backend's real-time thread. For output
// streams the callback fills data; for input streams it consumes data. It
// must not block, allocate or log.
type DataCallback interface {
	OnAudioReady(s Stream, data []byte, numFrames int) CallbackResult
}

// DataCallbackFunc adapts a function to DataCallback
type DataCallbackFunc func(s Stream, data []byte, numFrames int) CallbackResult

// OnAudioReady calls f
func (f DataCallbackFunc) OnAudioReady(s Stream, data []byte, numFrames int) CallbackResult {
	return f(s, data, numFrames)
}

// Stream is the uniform stream contract over every backend.
type Stream interface {
	// Config returns the negotiated configuration.
	Config() StreamConfig
	API() API
	State() State
	FramesPerBurst() int

	BufferSizeInFrames() int
	// SetBufferSizeInFrames clamps n to [burst, capacity] and returns the
	// value actually used.
	SetBufferSizeInFrames(n int) (int, error)
	BufferCapacityInFrames() int

	FramesWritten() int64
	FramesRead() int64
	XRunCount() int64
	CallbackCount() int64

	UsesCallback() bool
	UsesConversion() bool

	RequestStart() error
	RequestPause() error
	RequestStop() error

	// Start, Pause and Stop issue the request and wait for it to settle.
	Start(timeout time.Duration) error
	Pause(timeout time.Duration) error
	Stop(timeout time.Duration) error

	// WaitForStateChange blocks until the state differs from current or the
	// timeout elapses.
	WaitForStateChange(current State, timeout time.Duration) (State, error)

	// Read and Write transfer up to numFrames frames. A timeout of zero never
	// blocks. A partial count is returned without error; ErrTimeout is
	// returned only when nothing moved.
	Read(buf []byte, numFrames int, timeout time.Duration) (int, error)
	Write(buf []byte, numFrames int, timeout time.Duration) (int, error)

	// Close releases every backend resource. It is idempotent.
	Close() error
}

// NativeCallback is the callback a driver invokes on its audio thread.
type NativeCallback func(data []byte, numFrames int) CallbackResult

// NativeRequest asks a driver for a stream. A nil Callback requests
// blocking mode.
type NativeRequest struct {
	Config   StreamConfig
	Callback NativeCallback
}

// Capabilities describes what a driver can do.
type Capabilities struct {
	BlockingIO bool
	Callbacks  bool
}

// Driver is the platform-binding boundary for one native backend.
type Driver interface {
	API() API
	Capabilities() Capabilities
	Open(req NativeRequest) (NativeStream, error)
}

// NativeStream is a stream owned by a driver. Requests may complete
// asynchronously; State reports the backend's view. When the callback
// returns CallbackStop the driver stops the stream within one period.
type NativeStream interface {
	Config() StreamConfig
	FramesPerBurst() int
	BufferCapacityInFrames() int
	State() State

	RequestStart() error
	RequestPause() error
	RequestStop() error

	Read(buf []byte, numFrames int, timeout time.Duration) (int, error)
	Write(buf []byte, numFrames int, timeout time.Duration) (int, error)

	XRunCount() int64
	Close() error
}

// BufferSizer is implemented by native streams that can bound how much of
// their buffer blocking writes fill. n is already clamped to [burst,
// capacity]; the applied size is returned.
type BufferSizer interface {
	SetBufferSizeInFrames(n int) (int, error)
}

// DeviceInfo describes a backend device
type DeviceInfo struct {
	ID        int
	Name      string
	Input     bool
	Output    bool
	IsDefault bool
}

// DeviceLister is implemented by drivers able to enumerate devices.
type DeviceLister interface {
	Devices() ([]DeviceInfo, error)
}
