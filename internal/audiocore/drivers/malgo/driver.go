// Package malgo binds the buffer-queue backend to miniaudio through malgo.
// It only offers callback streams; the stream layer emulates blocking I/O
// on top of it.
package malgo

import (
	"runtime"
	"sync"
	"time"

	ma "github.com/gen2brain/malgo"
	"github.com/patrickmn/go-cache"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/errors"
	"github.com/tphakala/audiostream/internal/logger"
)

// DefaultPeriodFrames is the period requested when the stream leaves the
// callback size to the backend.
const DefaultPeriodFrames = 480

const (
	deviceCacheTTL = 30 * time.Second
	deviceCacheKey = "devices"
)

// Options configure the driver.
type Options struct {
	// Backends restricts miniaudio to these backends. Empty picks the
	// platform default.
	Backends     []ma.Backend
	PeriodFrames int
	// Debug forwards miniaudio log messages to the debug log.
	Debug bool
}

// BackendsFor returns the miniaudio backend used on goos.
func BackendsFor(goos string) []ma.Backend {
	switch goos {
	case "linux":
		return []ma.Backend{ma.BackendAlsa}
	case "windows":
		return []ma.Backend{ma.BackendWasapi}
	case "darwin":
		return []ma.Backend{ma.BackendCoreaudio}
	default:
		return nil
	}
}

type deviceEntry struct {
	kind ma.DeviceType
	info ma.DeviceInfo
}

// Driver opens miniaudio devices. The context is created on first use and
// released by Close.
type Driver struct {
	opts Options

	mu      sync.Mutex
	ctx     *ma.AllocatedContext
	devices *cache.Cache
}

// New creates a driver without touching the audio system.
func New(opts Options) *Driver {
	if len(opts.Backends) == 0 {
		opts.Backends = BackendsFor(runtime.GOOS)
	}
	if opts.PeriodFrames <= 0 {
		opts.PeriodFrames = DefaultPeriodFrames
	}
	return &Driver{opts: opts, devices: cache.New(deviceCacheTTL, 0)}
}

func (d *Driver) API() audiocore.API { return audiocore.APIBufferQueue }

func (d *Driver) Capabilities() audiocore.Capabilities {
	return audiocore.Capabilities{Callbacks: true}
}

func (d *Driver) context() (*ma.AllocatedContext, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx != nil {
		return d.ctx, nil
	}
	ctx, err := ma.InitContext(d.opts.Backends, ma.ContextConfig{}, func(message string) {
		if d.opts.Debug {
			GetLogger().Debug("miniaudio", logger.String("message", message))
		}
	})
	if err != nil {
		return nil, errors.New(err).
			Component("malgo").
			Category(errors.CategoryAudioBackend).
			Context("operation", "init_context").
			Context("os", runtime.GOOS).
			Build()
	}
	d.ctx = ctx
	return ctx, nil
}

// Close releases the miniaudio context. Streams must be closed first.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return nil
	}
	d.devices.Flush()
	err := d.ctx.Uninit()
	d.ctx.Free()
	d.ctx = nil
	if err != nil {
		return errors.New(err).
			Component("malgo").
			Category(errors.CategoryAudioBackend).
			Context("operation", "uninit_context").
			Build()
	}
	return nil
}

func (d *Driver) entries() ([]deviceEntry, error) {
	if v, ok := d.devices.Get(deviceCacheKey); ok {
		return v.([]deviceEntry), nil
	}
	ctx, err := d.context()
	if err != nil {
		return nil, err
	}
	var entries []deviceEntry
	for _, kind := range []ma.DeviceType{ma.Playback, ma.Capture} {
		infos, err := ctx.Devices(kind)
		if err != nil {
			return nil, errors.New(err).
				Component("malgo").
				Category(errors.CategoryAudioBackend).
				Context("operation", "enumerate_devices").
				Build()
		}
		for i := range infos {
			entries = append(entries, deviceEntry{kind: kind, info: infos[i]})
		}
	}
	d.devices.Set(deviceCacheKey, entries, cache.DefaultExpiration)
	return entries, nil
}

// Devices lists playback devices followed by capture devices. IDs start at
// one; zero selects the default device.
func (d *Driver) Devices() ([]audiocore.DeviceInfo, error) {
	entries, err := d.entries()
	if err != nil {
		return nil, err
	}
	out := make([]audiocore.DeviceInfo, 0, len(entries))
	for i := range entries {
		e := &entries[i]
		out = append(out, audiocore.DeviceInfo{
			ID:        i + 1,
			Name:      e.info.Name(),
			Input:     e.kind == ma.Capture,
			Output:    e.kind == ma.Playback,
			IsDefault: e.info.IsDefault == 1,
		})
	}
	return out, nil
}

// deviceConfig translates a request into a miniaudio device config.
func deviceConfig(cfg audiocore.StreamConfig, periodFrames int) ma.DeviceConfig {
	kind := ma.Playback
	if cfg.IsInput() {
		kind = ma.Capture
	}
	dc := ma.DefaultDeviceConfig(kind)

	format := ma.FormatF32
	if cfg.Format == audiocore.FormatI16 {
		format = ma.FormatS16
	}
	sub := &dc.Playback
	if cfg.IsInput() {
		sub = &dc.Capture
	}
	sub.Format = format
	sub.Channels = uint32(cfg.ChannelCount)

	dc.SampleRate = uint32(cfg.SampleRate)
	if cfg.FramesPerCallback > 0 {
		periodFrames = cfg.FramesPerCallback
	}
	dc.PeriodSizeInFrames = uint32(periodFrames)
	dc.Alsa.NoMMap = 1
	return dc
}

// Open initializes a miniaudio device in the Open state.
func (d *Driver) Open(req audiocore.NativeRequest) (audiocore.NativeStream, error) {
	if req.Callback == nil {
		return nil, errors.New(audiocore.ErrUnimplemented).
			Component("malgo").
			Context("mode", "blocking").
			Build()
	}
	ctx, err := d.context()
	if err != nil {
		return nil, err
	}

	cfg := req.Config
	dc := deviceConfig(cfg, d.opts.PeriodFrames)
	if cfg.DeviceID != audiocore.Unspecified {
		entries, err := d.entries()
		if err != nil {
			return nil, err
		}
		if cfg.DeviceID < 1 || cfg.DeviceID > len(entries) {
			return nil, errors.New(audiocore.ErrOutOfRange).
				Component("malgo").
				Context("device_id", cfg.DeviceID).
				Context("devices", len(entries)).
				Build()
		}
		e := &entries[cfg.DeviceID-1]
		if (e.kind == ma.Capture) != cfg.IsInput() {
			return nil, errors.New(audiocore.ErrInvalidState).
				Component("malgo").
				Context("device", e.info.Name()).
				Context("direction", cfg.Direction.String()).
				Build()
		}
		if cfg.IsInput() {
			dc.Capture.DeviceID = e.info.ID.Pointer()
		} else {
			dc.Playback.DeviceID = e.info.ID.Pointer()
		}
	}

	s := newStream(req.Callback)
	device, err := ma.InitDevice(ctx.Context, dc, ma.DeviceCallbacks{
		Data: s.onData,
		Stop: s.onStop,
	})
	if err != nil {
		return nil, errors.New(err).
			Component("malgo").
			Category(errors.CategoryAudioBackend).
			Context("operation", "init_device").
			Context("request", cfg.String()).
			Build()
	}

	// Read back what the device negotiated
	cfg.API = audiocore.APIBufferQueue
	cfg.SampleRate = int(device.SampleRate())
	if cfg.IsInput() {
		cfg.ChannelCount = int(device.CaptureChannels())
		cfg.Format = formatOf(device.CaptureFormat())
	} else {
		cfg.ChannelCount = int(device.PlaybackChannels())
		cfg.Format = formatOf(device.PlaybackFormat())
	}
	if cfg.SessionID == audiocore.SessionIDAllocate {
		cfg.SessionID = audiocore.SessionIDNone
	}
	s.attach(cfg, int(dc.PeriodSizeInFrames), device)

	GetLogger().Debug("device opened",
		logger.String("config", cfg.String()),
		logger.Int("period_frames", int(dc.PeriodSizeInFrames)))
	return s, nil
}

func formatOf(f ma.FormatType) audiocore.Format {
	if f == ma.FormatS16 {
		return audiocore.FormatI16
	}
	return audiocore.FormatFloat
}
