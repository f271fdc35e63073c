package stream

import (
	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/audiocore/quirks"
	"github.com/tphakala/audiostream/internal/errors"
	"github.com/tphakala/audiostream/internal/logger"
)

// Opener builds streams from requests. It resolves the backend, consults
// the quirks rules and picks the stream variant.
type Opener struct {
	drivers  map[audiocore.API]audiocore.Driver
	platform quirks.Platform
	rules    []quirks.Rule
	observer Observer
}

// Option configures an Opener.
type Option func(*Opener)

// WithRules replaces the quirks rule table.
func WithRules(rules []quirks.Rule) Option {
	return func(o *Opener) { o.rules = rules }
}

// WithObserver reports lifecycle events to obs.
func WithObserver(obs Observer) Option {
	return func(o *Opener) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// NewOpener creates an opener over drivers, keyed by their API.
func NewOpener(platform quirks.Platform, drivers []audiocore.Driver, opts ...Option) *Opener {
	o := &Opener{
		drivers:  make(map[audiocore.API]audiocore.Driver, len(drivers)),
		platform: platform,
		rules:    quirks.DefaultRules,
		observer: nopObserver{},
	}
	for _, d := range drivers {
		o.drivers[d.API()] = d
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Platform returns the platform facts used for decisions.
func (o *Opener) Platform() quirks.Platform { return o.platform }

// Driver returns the driver registered for api.
func (o *Opener) Driver(api audiocore.API) (audiocore.Driver, bool) {
	d, ok := o.drivers[api]
	return d, ok
}

// Decide returns the quirks decision Open would act on for cfg.
func (o *Opener) Decide(cfg audiocore.StreamConfig) quirks.Decision {
	api := quirks.ResolveAPI(cfg.API, o.platform)
	return quirks.DecideWith(o.rules, quirks.Request{Config: cfg, API: api, Platform: o.platform})
}

// Open validates cfg and opens a stream. A nil callback opens the stream in
// blocking mode. On failure nothing is left open.
func (o *Opener) Open(cfg audiocore.StreamConfig, cb audiocore.DataCallback) (audiocore.Stream, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	api := quirks.ResolveAPI(cfg.API, o.platform)

	s, err := o.open(api, cfg, cb)
	o.observer.StreamOpened(api, cfg.Direction, err)

	log := GetLogger()
	if err != nil {
		log.Warn("stream open failed",
			logger.String("request", cfg.String()),
			logger.String("api", api.String()),
			logger.Error(err))
		return nil, err
	}
	log.Debug("stream opened",
		logger.String("request", cfg.String()),
		logger.String("negotiated", s.Config().String()),
		logger.Int("frames_per_burst", s.FramesPerBurst()),
		logger.Bool("conversion", s.UsesConversion()),
		logger.Bool("callback", s.UsesCallback()))
	return s, nil
}

func (o *Opener) open(api audiocore.API, cfg audiocore.StreamConfig, cb audiocore.DataCallback) (audiocore.Stream, error) {
	driver, ok := o.drivers[api]
	if !ok {
		return nil, errors.New(audiocore.ErrNull).
			Component("stream").
			Context("api", api.String()).
			Context("reason", "no driver registered").
			Build()
	}

	requested := cfg
	requested.API = api
	decision := quirks.DecideWith(o.rules, quirks.Request{Config: requested, API: api, Platform: o.platform})
	for _, rule := range decision.FiredRules {
		o.observer.QuirkFired(rule)
	}
	if !decision.ConversionNeeded {
		return o.openDirect(driver, requested, cb)
	}

	GetLogger().Debug("quirks require conversion",
		logger.Any("rules", decision.FiredRules),
		logger.String("adjusted", decision.Adjusted.String()))
	adjusted := decision.Adjusted
	adjusted.API = api
	f, err := newFilterStream(requested, adjusted, cb, func(c audiocore.StreamConfig, ccb audiocore.DataCallback) (audiocore.Stream, error) {
		return o.openDirect(driver, c, ccb)
	}, o.observer)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// openDirect opens a stream without conversion, choosing between the
// native and the buffered variant from the driver's capabilities.
func (o *Opener) openDirect(driver audiocore.Driver, cfg audiocore.StreamConfig, cb audiocore.DataCallback) (audiocore.Stream, error) {
	caps := driver.Capabilities()
	switch {
	case cb != nil && caps.Callbacks, cb == nil && caps.BlockingIO:
		s, err := newNativeStream(driver, cfg, cb, o.observer)
		if err != nil {
			return nil, err
		}
		return s, nil
	case cb == nil && caps.Callbacks:
		s, err := newBufferedStream(driver, cfg, o.observer)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.New(audiocore.ErrUnimplemented).
			Component("stream").
			Context("api", driver.API().String()).
			Context("callback", cb != nil).
			Build()
	}
}
