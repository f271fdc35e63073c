// Package portaudio binds the low-latency backend to PortAudio. It supports
// both callback streams and blocking Read/Write streams.
//
// PortAudio has no pause: a pause request stops the stream and reports
// Paused. Linking requires libportaudio (pkg-config portaudio-2.0).
package portaudio

import (
	"sync"
	"time"

	pa "github.com/gordonklaus/portaudio"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/errors"
	"github.com/tphakala/audiostream/internal/logger"
)

const (
	// DefaultFramesPerBuffer is the burst used when the request leaves the
	// callback size to the backend.
	DefaultFramesPerBuffer = 192

	deviceCacheTTL = 30 * time.Second
	deviceCacheKey = "devices"
)

// Options configure the driver.
type Options struct {
	FramesPerBuffer int
	// PollInterval is how often blocking transfers check for buffer space.
	PollInterval time.Duration
}

// Driver opens PortAudio streams. PortAudio is initialized on first use
// and terminated by Terminate.
type Driver struct {
	opts Options

	mu          sync.Mutex
	initialized bool
	devices     *cache.Cache
}

// New creates a driver. It does not touch the audio system yet.
func New(opts Options) *Driver {
	if opts.FramesPerBuffer <= 0 {
		opts.FramesPerBuffer = DefaultFramesPerBuffer
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Millisecond
	}
	return &Driver{
		opts: opts,
		// no janitor goroutine; expired entries are ignored by Get
		devices: cache.New(deviceCacheTTL, 0),
	}
}

func (d *Driver) API() audiocore.API { return audiocore.APILowLatency }

func (d *Driver) Capabilities() audiocore.Capabilities {
	return audiocore.Capabilities{BlockingIO: true, Callbacks: true}
}

func (d *Driver) ensureInitialized() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialized {
		return nil
	}
	if err := pa.Initialize(); err != nil {
		return errors.New(err).
			Component("portaudio").
			Category(errors.CategoryAudioBackend).
			Context("operation", "initialize").
			Build()
	}
	d.initialized = true
	GetLogger().Debug("portaudio initialized", logger.String("version", pa.VersionText()))
	return nil
}

// Terminate releases PortAudio. Streams must be closed first.
func (d *Driver) Terminate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.initialized {
		return nil
	}
	d.initialized = false
	d.devices.Flush()
	if err := pa.Terminate(); err != nil {
		return errors.New(err).
			Component("portaudio").
			Category(errors.CategoryAudioBackend).
			Context("operation", "terminate").
			Build()
	}
	return nil
}

func (d *Driver) paDevices() ([]*pa.DeviceInfo, error) {
	if v, ok := d.devices.Get(deviceCacheKey); ok {
		return v.([]*pa.DeviceInfo), nil
	}
	if err := d.ensureInitialized(); err != nil {
		return nil, err
	}
	infos, err := pa.Devices()
	if err != nil {
		return nil, errors.New(err).
			Component("portaudio").
			Category(errors.CategoryAudioBackend).
			Context("operation", "enumerate_devices").
			Build()
	}
	d.devices.Set(deviceCacheKey, infos, cache.DefaultExpiration)
	return infos, nil
}

// Devices lists PortAudio devices. IDs are the device index plus one, so
// that zero keeps meaning the default device.
func (d *Driver) Devices() ([]audiocore.DeviceInfo, error) {
	infos, err := d.paDevices()
	if err != nil {
		return nil, err
	}
	defIn, _ := pa.DefaultInputDevice()
	defOut, _ := pa.DefaultOutputDevice()
	return describeDevices(infos, defIn, defOut), nil
}

func describeDevices(infos []*pa.DeviceInfo, defIn, defOut *pa.DeviceInfo) []audiocore.DeviceInfo {
	out := make([]audiocore.DeviceInfo, 0, len(infos))
	for i, info := range infos {
		out = append(out, audiocore.DeviceInfo{
			ID:        i + 1,
			Name:      info.Name,
			Input:     info.MaxInputChannels > 0,
			Output:    info.MaxOutputChannels > 0,
			IsDefault: info == defIn || info == defOut,
		})
	}
	return out
}

func (d *Driver) device(cfg audiocore.StreamConfig) (*pa.DeviceInfo, error) {
	if cfg.DeviceID == audiocore.Unspecified {
		var (
			dev *pa.DeviceInfo
			err error
		)
		if cfg.IsInput() {
			dev, err = pa.DefaultInputDevice()
		} else {
			dev, err = pa.DefaultOutputDevice()
		}
		if err != nil {
			return nil, errors.New(audiocore.ErrNull).
				Component("portaudio").
				Context("direction", cfg.Direction.String()).
				Context("cause", err.Error()).
				Build()
		}
		return dev, nil
	}

	infos, err := d.paDevices()
	if err != nil {
		return nil, err
	}
	if cfg.DeviceID < 1 || cfg.DeviceID > len(infos) {
		return nil, errors.New(audiocore.ErrOutOfRange).
			Component("portaudio").
			Context("device_id", cfg.DeviceID).
			Context("devices", len(infos)).
			Build()
	}
	return infos[cfg.DeviceID-1], nil
}

// negotiate fills the unspecified fields of cfg from the device.
func negotiate(cfg audiocore.StreamConfig, dev *pa.DeviceInfo, defaultBurst int) (audiocore.StreamConfig, int, error) {
	maxCh := dev.MaxOutputChannels
	if cfg.IsInput() {
		maxCh = dev.MaxInputChannels
	}
	if maxCh <= 0 {
		return cfg, 0, errors.New(audiocore.ErrInvalidState).
			Component("portaudio").
			Context("device", dev.Name).
			Context("direction", cfg.Direction.String()).
			Build()
	}

	cfg.API = audiocore.APILowLatency
	if cfg.ChannelCount == audiocore.Unspecified {
		cfg.ChannelCount = min(2, maxCh)
	}
	if cfg.ChannelCount > maxCh {
		return cfg, 0, errors.New(audiocore.ErrOutOfRange).
			Component("portaudio").
			Context("channel_count", cfg.ChannelCount).
			Context("max_channels", maxCh).
			Build()
	}
	if cfg.SampleRate == audiocore.Unspecified {
		cfg.SampleRate = int(dev.DefaultSampleRate)
	}
	if cfg.Format == audiocore.FormatUnspecified {
		cfg.Format = audiocore.FormatFloat
	}
	if cfg.SessionID == audiocore.SessionIDAllocate {
		cfg.SessionID = audiocore.SessionIDNone
	}
	burst := defaultBurst
	if cfg.FramesPerCallback > 0 {
		burst = cfg.FramesPerCallback
	}
	return cfg, burst, nil
}

func streamParameters(cfg audiocore.StreamConfig, dev *pa.DeviceInfo, burst int) pa.StreamParameters {
	var in, out *pa.DeviceInfo
	if cfg.IsInput() {
		in = dev
	} else {
		out = dev
	}

	var p pa.StreamParameters
	if cfg.IsLowLatency() {
		p = pa.LowLatencyParameters(in, out)
	} else {
		p = pa.HighLatencyParameters(in, out)
	}
	if cfg.IsInput() {
		p.Input.Channels = cfg.ChannelCount
	} else {
		p.Output.Channels = cfg.ChannelCount
	}
	p.SampleRate = float64(cfg.SampleRate)
	p.FramesPerBuffer = burst
	return p
}

// Open opens a PortAudio stream in the Open state.
func (d *Driver) Open(req audiocore.NativeRequest) (audiocore.NativeStream, error) {
	if err := d.ensureInitialized(); err != nil {
		return nil, err
	}
	dev, err := d.device(req.Config)
	if err != nil {
		return nil, err
	}
	cfg, burst, err := negotiate(req.Config, dev, d.opts.FramesPerBuffer)
	if err != nil {
		return nil, err
	}

	s := newStream(cfg, burst, req.Callback, d.opts.PollInterval)
	params := streamParameters(cfg, dev, burst)

	var native *pa.Stream
	if req.Callback != nil {
		native, err = pa.OpenStream(params, s.process)
	} else {
		native, err = pa.OpenStream(params, s.device)
	}
	if err != nil {
		return nil, errors.New(err).
			Component("portaudio").
			Category(errors.CategoryAudioBackend).
			Context("operation", "open_stream").
			Context("device", dev.Name).
			Context("request", cfg.String()).
			Build()
	}
	s.attach(native)

	GetLogger().Debug("stream opened",
		logger.String("device", dev.Name),
		logger.String("config", cfg.String()),
		logger.Int("frames_per_buffer", burst),
		logger.Bool("callback", req.Callback != nil))
	return s, nil
}
