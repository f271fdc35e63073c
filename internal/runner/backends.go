package runner

import (
	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/audiocore/drivers/malgo"
	"github.com/tphakala/audiostream/internal/audiocore/drivers/portaudio"
	"github.com/tphakala/audiostream/internal/audiocore/drivers/simulated"
	"github.com/tphakala/audiostream/internal/conf"
	"github.com/tphakala/audiostream/internal/errors"
)

// Backends owns the drivers streams are opened on: one per backend
// selector.
type Backends struct {
	drivers []audiocore.Driver
	closers []func() error
}

// NewBackends returns the device backends, or in-memory backends when the
// platform is simulated. Simulated backends run in real time and mirror the
// capabilities of the device backends: the low-latency one supports
// callbacks and blocking I/O, the buffer-queue one callbacks only.
func NewBackends(settings *conf.Settings) *Backends {
	if settings.Platform.Simulated {
		return &Backends{drivers: []audiocore.Driver{
			simulated.New(simulated.Options{API: audiocore.APILowLatency, Realtime: true}),
			simulated.New(simulated.Options{API: audiocore.APIBufferQueue, Callbacks: true, Realtime: true}),
		}}
	}

	pa := portaudio.New(portaudio.Options{})
	ma := malgo.New(malgo.Options{Debug: settings.Debug})
	return &Backends{
		drivers: []audiocore.Driver{pa, ma},
		closers: []func() error{pa.Terminate, ma.Close},
	}
}

// Drivers returns the drivers in selector order.
func (b *Backends) Drivers() []audiocore.Driver {
	return b.drivers
}

// Devices lists the devices of every backend that can enumerate them.
func (b *Backends) Devices() (map[audiocore.API][]audiocore.DeviceInfo, error) {
	out := make(map[audiocore.API][]audiocore.DeviceInfo, len(b.drivers))
	var errs []error
	for _, d := range b.drivers {
		lister, ok := d.(audiocore.DeviceLister)
		if !ok {
			continue
		}
		devices, err := lister.Devices()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out[d.API()] = devices
	}
	return out, errors.Join(errs...)
}

// Close releases the audio systems. Streams must be closed first.
func (b *Backends) Close() error {
	var errs []error
	for _, closeFn := range b.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
