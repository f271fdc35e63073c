// Package simulated is an in-memory audio backend. It negotiates configs
// like a real device, acknowledges state requests one period late, and
// either runs on a manual clock driven by Tick or on a real-time ticker.
//
// Output is captured for inspection; input is synthesized by a generator.
package simulated

import (
	"math"
	"sync"
	"time"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/errors"
)

// Defaults used when Options leave a field zero.
const (
	DefaultSampleRate     = 48000
	DefaultChannelCount   = 2
	DefaultFramesPerBurst = 192
	DefaultCaptureFrames  = 48000
)

// InputFunc produces the captured sample for a frame index and channel.
type InputFunc func(frame int64, channel int) float32

// Options configure a simulated driver.
type Options struct {
	API            audiocore.API
	SampleRate     int
	ChannelCount   int
	Format         audiocore.Format
	FramesPerBurst int

	// Callbacks and BlockingIO select the capabilities advertised.
	Callbacks  bool
	BlockingIO bool

	// Realtime runs each open stream on a ticker with the burst period.
	// Otherwise the stream only advances on Tick.
	Realtime bool

	// Input synthesizes capture data. Nil produces a 1 kHz sine at half scale.
	Input InputFunc

	// CaptureFrames bounds how much output each stream retains.
	CaptureFrames int

	// Devices is returned by Devices.
	Devices []audiocore.DeviceInfo
}

func (o *Options) applyDefaults() {
	if o.API == audiocore.APIUnspecified {
		o.API = audiocore.APILowLatency
	}
	if o.SampleRate <= 0 {
		o.SampleRate = DefaultSampleRate
	}
	if o.ChannelCount <= 0 {
		o.ChannelCount = DefaultChannelCount
	}
	if o.Format == audiocore.FormatUnspecified {
		o.Format = audiocore.FormatFloat
	}
	if o.FramesPerBurst <= 0 {
		o.FramesPerBurst = DefaultFramesPerBurst
	}
	if !o.Callbacks && !o.BlockingIO {
		o.Callbacks = true
		o.BlockingIO = true
	}
	if o.CaptureFrames <= 0 {
		o.CaptureFrames = DefaultCaptureFrames
	}
	if len(o.Devices) == 0 {
		o.Devices = []audiocore.DeviceInfo{
			{ID: 0, Name: "Simulated Speaker", Output: true, IsDefault: true},
			{ID: 1, Name: "Simulated Microphone", Input: true, IsDefault: true},
		}
	}
}

// SineInput returns an InputFunc producing a sine of frequency Hz at amp.
func SineInput(frequency float64, sampleRate int, amp float32) InputFunc {
	step := 2 * math.Pi * frequency / float64(sampleRate)
	return func(frame int64, _ int) float32 {
		return amp * float32(math.Sin(step*float64(frame)))
	}
}

// Driver is a simulated backend.
type Driver struct {
	opts Options

	mu      sync.Mutex
	streams []*Stream
}

// New creates a simulated driver.
func New(opts Options) *Driver {
	opts.applyDefaults()
	if opts.Input == nil {
		opts.Input = SineInput(1000, opts.SampleRate, 0.5)
	}
	return &Driver{opts: opts}
}

// API returns the backend selector this driver serves.
func (d *Driver) API() audiocore.API { return d.opts.API }

// Capabilities returns the advertised modes.
func (d *Driver) Capabilities() audiocore.Capabilities {
	return audiocore.Capabilities{BlockingIO: d.opts.BlockingIO, Callbacks: d.opts.Callbacks}
}

// Devices lists the simulated devices.
func (d *Driver) Devices() ([]audiocore.DeviceInfo, error) {
	out := make([]audiocore.DeviceInfo, len(d.opts.Devices))
	copy(out, d.opts.Devices)
	return out, nil
}

// Open negotiates the request and returns a stream in the Open state.
func (d *Driver) Open(req audiocore.NativeRequest) (audiocore.NativeStream, error) {
	if req.Callback != nil && !d.opts.Callbacks {
		return nil, errors.New(audiocore.ErrUnimplemented).
			Component("simulated").
			Context("mode", "callback").
			Build()
	}
	if req.Callback == nil && !d.opts.BlockingIO {
		return nil, errors.New(audiocore.ErrUnimplemented).
			Component("simulated").
			Context("mode", "blocking").
			Build()
	}

	cfg := req.Config
	cfg.API = d.opts.API
	if cfg.SampleRate == audiocore.Unspecified {
		cfg.SampleRate = d.opts.SampleRate
	}
	if cfg.ChannelCount == audiocore.Unspecified {
		cfg.ChannelCount = d.opts.ChannelCount
	}
	if cfg.Format == audiocore.FormatUnspecified {
		cfg.Format = d.opts.Format
	}
	if cfg.SessionID == audiocore.SessionIDAllocate {
		cfg.SessionID = 1
	}

	s, err := newStream(cfg, d.opts, req.Callback)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.mu.Unlock()
	return s, nil
}

// Streams returns every stream opened so far, oldest first.
func (d *Driver) Streams() []*Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Stream, len(d.streams))
	copy(out, d.streams)
	return out
}

// Last returns the most recently opened stream, or nil.
func (d *Driver) Last() *Stream {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

// burstPeriod is the wall-clock duration of one burst.
func burstPeriod(burst, sampleRate int) time.Duration {
	return time.Duration(burst) * time.Second / time.Duration(sampleRate)
}
