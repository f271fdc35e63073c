// Package quirks decides at open time whether a stream request must be
// converted to work around backend and OS-version limitations.
//
// Decide is a pure function of the request and the platform facts. Each
// workaround is a named Rule in a table; every rule is evaluated on the
// original request and the adjustments of all firing rules compound into one
// child configuration.
package quirks

import (
	"github.com/tphakala/audiostream/internal/audiocore"
)

// OS API levels referenced by the rules.
const (
	APILevelO    = 26
	APILevelOMR1 = 27
	APILevelP    = 28
)

// Platform carries the facts the rules depend on.
type Platform struct {
	// APILevel is the OS API level the backends run on.
	APILevel int
	// LowLatencyAvailable reports whether the low-latency backend exists.
	LowLatencyAvailable bool
}

// ResolveAPI returns the backend that will service a request for api.
// Unspecified picks the low-latency backend when it is available on OMR1 or
// later; a low-latency request on a platform without it falls back to the
// buffer-queue backend.
func ResolveAPI(api audiocore.API, p Platform) audiocore.API {
	lowLatencyUsable := p.LowLatencyAvailable && p.APILevel >= APILevelOMR1
	switch api {
	case audiocore.APIUnspecified:
		if lowLatencyUsable {
			return audiocore.APILowLatency
		}
		return audiocore.APIBufferQueue
	case audiocore.APILowLatency:
		if !p.LowLatencyAvailable {
			return audiocore.APIBufferQueue
		}
		return audiocore.APILowLatency
	default:
		return api
	}
}

// Request is what a rule inspects: the caller's configuration, the backend
// chosen for it and the platform.
type Request struct {
	Config   audiocore.StreamConfig
	API      audiocore.API
	Platform Platform
}

// UsesLowLatencyBackend reports whether the request resolved to the
// low-latency backend.
func (r Request) UsesLowLatencyBackend() bool {
	return r.API == audiocore.APILowLatency
}

// Rule is one named workaround.
type Rule struct {
	Name    string
	Applies func(Request) bool
	Adjust  func(*audiocore.StreamConfig)
}

// Decision is the outcome for one request.
type Decision struct {
	// ConversionNeeded is true when Adjusted differs from the request and a
	// conversion stage must sit between the backend and the caller.
	ConversionNeeded bool
	// Adjusted is the configuration to open the backend with.
	Adjusted audiocore.StreamConfig
	// FiredRules lists the names of the rules that applied, in table order.
	FiredRules []string
}

// Rule names
const (
	RuleNativeSampleRate = "native-sample-rate"
	RuleFloatCaptureI16  = "float-capture-i16"
	RuleStereoCaptureO   = "stereo-capture-mono-o"
	RuleMonoOutputMMap   = "mono-output-stereo-mmap"
)

// DefaultRules is the workaround table.
var DefaultRules = []Rule{
	{
		// Let the backend pick its optimal rate and resample internally
		Name: RuleNativeSampleRate,
		Applies: func(r Request) bool {
			c := r.Config
			return c.SampleRate != audiocore.Unspecified &&
				c.SampleRateConversionQuality != audiocore.SRCQualityNone &&
				c.IsLowLatency()
		},
		Adjust: func(c *audiocore.StreamConfig) { c.SampleRate = audiocore.Unspecified },
	},
	{
		// Fast float capture needs the low-latency backend on P or later
		Name: RuleFloatCaptureI16,
		Applies: func(r Request) bool {
			c := r.Config
			return c.Format != audiocore.FormatUnspecified &&
				c.FormatConversionAllowed &&
				c.IsInput() &&
				(!r.UsesLowLatencyBackend() || r.Platform.APILevel < APILevelP) &&
				c.IsLowLatency() &&
				c.Format == audiocore.FormatFloat
		},
		Adjust: func(c *audiocore.StreamConfig) { c.Format = audiocore.FormatI16 },
	},
	{
		// Stereo fast capture regressed on the buffer-queue backend in O
		Name: RuleStereoCaptureO,
		Applies: func(r Request) bool {
			c := r.Config
			return c.ChannelConversionAllowed &&
				c.ChannelCount == 2 &&
				c.IsInput() &&
				c.IsLowLatency() &&
				!r.UsesLowLatencyBackend() &&
				r.Platform.APILevel == APILevelO
		},
		Adjust: func(c *audiocore.StreamConfig) { c.ChannelCount = 1 },
	},
	{
		// Mono output is not supported by the low-latency backend's
		// memory-mapped path before P
		Name: RuleMonoOutputMMap,
		Applies: func(r Request) bool {
			c := r.Config
			return c.ChannelConversionAllowed &&
				c.ChannelCount == 1 &&
				!c.IsInput() &&
				c.IsLowLatency() &&
				r.UsesLowLatencyBackend() &&
				r.Platform.APILevel < APILevelP
		},
		Adjust: func(c *audiocore.StreamConfig) { c.ChannelCount = 2 },
	},
}

// Decide evaluates DefaultRules against cfg. The backend is resolved from
// cfg.API and p.
func Decide(cfg audiocore.StreamConfig, p Platform) Decision {
	return DecideWith(DefaultRules, Request{
		Config:   cfg,
		API:      ResolveAPI(cfg.API, p),
		Platform: p,
	})
}

// DecideWith evaluates rules against req. Every rule sees the original
// request, so the outcome does not depend on table order.
func DecideWith(rules []Rule, req Request) Decision {
	d := Decision{Adjusted: req.Config}
	for _, rule := range rules {
		if !rule.Applies(req) {
			continue
		}
		rule.Adjust(&d.Adjusted)
		d.FiredRules = append(d.FiredRules, rule.Name)
		d.ConversionNeeded = true
	}
	return d
}
