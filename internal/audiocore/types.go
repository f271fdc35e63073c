package audiocore

import (
	"fmt"
	"strings"
)

// Unspecified lets the backend choose a value.
const Unspecified = 0

// Channel count limits accepted by Open.
const (
	MinChannelCount = 1
	MaxChannelCount = 256
)

// Direction of a stream
type Direction int

const (
	DirectionOutput Direction = 0
	DirectionInput  Direction = 1
)

func (d Direction) String() string {
	switch d {
	case DirectionOutput:
		return "output"
	case DirectionInput:
		return "input"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Format is the sample format of PCM data
type Format int

const (
	FormatUnspecified Format = 0
	FormatI16         Format = 1
	FormatFloat       Format = 2
)

func (f Format) String() string {
	switch f {
	case FormatUnspecified:
		return "unspecified"
	case FormatI16:
		return "i16"
	case FormatFloat:
		return "float"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// BytesPerSample returns the size of one sample, or 0 when unspecified.
func (f Format) BytesPerSample() int {
	switch f {
	case FormatI16:
		return 2
	case FormatFloat:
		return 4
	default:
		return 0
	}
}

// SharingMode selects exclusive or shared device access
type SharingMode int

const (
	SharingExclusive SharingMode = 0
	SharingShared    SharingMode = 1
)

func (s SharingMode) String() string {
	switch s {
	case SharingExclusive:
		return "exclusive"
	case SharingShared:
		return "shared"
	default:
		return fmt.Sprintf("sharing(%d)", int(s))
	}
}

// PerformanceMode is a latency/power hint
type PerformanceMode int

const (
	PerformanceNone        PerformanceMode = 10
	PerformancePowerSaving PerformanceMode = 11
	PerformanceLowLatency  PerformanceMode = 12
)

func (p PerformanceMode) String() string {
	switch p {
	case PerformanceNone:
		return "none"
	case PerformancePowerSaving:
		return "power-saving"
	case PerformanceLowLatency:
		return "low-latency"
	default:
		return fmt.Sprintf("performance(%d)", int(p))
	}
}

// API selects the native backend servicing a stream
type API int

const (
	APIUnspecified API = 0
	// APILowLatency is the callback-driven low-latency backend. It also
	// offers blocking reads and writes.
	APILowLatency API = 1
	// APIBufferQueue is the legacy buffer-queue backend. It only delivers
	// audio through callbacks.
	APIBufferQueue API = 2

	apiMax = APIBufferQueue
)

func (a API) String() string {
	switch a {
	case APIUnspecified:
		return "unspecified"
	case APILowLatency:
		return "low-latency"
	case APIBufferQueue:
		return "buffer-queue"
	default:
		return fmt.Sprintf("api(%d)", int(a))
	}
}

// Valid reports whether a is within the selector range.
func (a API) Valid() bool {
	return a >= APIUnspecified && a <= apiMax
}

// SampleRateConversionQuality controls whether and how well the stream
// layer may resample.
type SampleRateConversionQuality int

const (
	SRCQualityNone SampleRateConversionQuality = iota
	SRCQualityFastest
	SRCQualityLow
	SRCQualityMedium
	SRCQualityHigh
	SRCQualityBest
)

func (q SampleRateConversionQuality) String() string {
	switch q {
	case SRCQualityNone:
		return "none"
	case SRCQualityFastest:
		return "fastest"
	case SRCQualityLow:
		return "low"
	case SRCQualityMedium:
		return "medium"
	case SRCQualityHigh:
		return "high"
	case SRCQualityBest:
		return "best"
	default:
		return fmt.Sprintf("src(%d)", int(q))
	}
}

// Session ids
const (
	SessionIDNone     = -1
	SessionIDAllocate = 0
)

// CallbackResult tells the backend whether to keep calling the data callback
type CallbackResult int

const (
	CallbackContinue CallbackResult = 0
	CallbackStop     CallbackResult = 1
)

func (r CallbackResult) String() string {
	if r == CallbackStop {
		return "stop"
	}
	return "continue"
}

// ParseDirection parses "input" or "output"
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "output", "out", "":
		return DirectionOutput, nil
	case "input", "in":
		return DirectionInput, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

// ParseFormat parses "i16", "float" or "unspecified"
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "unspecified":
		return FormatUnspecified, nil
	case "i16", "pcm16", "s16":
		return FormatI16, nil
	case "float", "f32":
		return FormatFloat, nil
	}
	return 0, fmt.Errorf("unknown format %q", s)
}

// ParseSharingMode parses "shared" or "exclusive"
func ParseSharingMode(s string) (SharingMode, error) {
	switch strings.ToLower(s) {
	case "", "shared":
		return SharingShared, nil
	case "exclusive":
		return SharingExclusive, nil
	}
	return 0, fmt.Errorf("unknown sharing mode %q", s)
}

// ParsePerformanceMode parses "none", "power-saving" or "low-latency"
func ParsePerformanceMode(s string) (PerformanceMode, error) {
	switch strings.ToLower(s) {
	case "none", "":
		return PerformanceNone, nil
	case "power-saving", "powersaving":
		return PerformancePowerSaving, nil
	case "low-latency", "lowlatency":
		return PerformanceLowLatency, nil
	}
	return 0, fmt.Errorf("unknown performance mode %q", s)
}

// ParseAPI parses "unspecified", "low-latency" or "buffer-queue"
func ParseAPI(s string) (API, error) {
	switch strings.ToLower(s) {
	case "", "unspecified":
		return APIUnspecified, nil
	case "low-latency", "lowlatency", "portaudio":
		return APILowLatency, nil
	case "buffer-queue", "bufferqueue", "malgo":
		return APIBufferQueue, nil
	}
	return 0, fmt.Errorf("unknown api %q", s)
}

// ParseSRCQuality parses a sample rate conversion quality name
func ParseSRCQuality(s string) (SampleRateConversionQuality, error) {
	for q := SRCQualityNone; q <= SRCQualityBest; q++ {
		if strings.EqualFold(q.String(), s) {
			return q, nil
		}
	}
	if s == "" {
		return SRCQualityNone, nil
	}
	return 0, fmt.Errorf("unknown sample rate conversion quality %q", s)
}
