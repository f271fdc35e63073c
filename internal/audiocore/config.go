package audiocore

import (
	"fmt"

	"github.com/tphakala/audiostream/internal/errors"
)

// StreamConfig describes a stream request or a negotiated stream. Once a
// stream is open its config never changes.
type StreamConfig struct {
	Direction       Direction
	Format          Format
	ChannelCount    int // 0 = Unspecified
	SampleRate      int // 0 = Unspecified
	SharingMode     SharingMode
	PerformanceMode PerformanceMode
	API             API
	DeviceID        int // 0 = default device
	SessionID       int

	// FramesPerCallback fixes the callback or blocking block size; 0 lets the
	// backend choose.
	FramesPerCallback int

	FormatConversionAllowed     bool
	ChannelConversionAllowed    bool
	SampleRateConversionQuality SampleRateConversionQuality
}

// DefaultStreamConfig returns an output request that lets the backend pick
// rate, channel count and format, with every conversion allowed.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Direction:                   DirectionOutput,
		SharingMode:                 SharingShared,
		PerformanceMode:             PerformanceLowLatency,
		SessionID:                   SessionIDNone,
		FormatConversionAllowed:     true,
		ChannelConversionAllowed:    true,
		SampleRateConversionQuality: SRCQualityMedium,
	}
}

// IsInput reports whether the config describes a capture stream.
func (c StreamConfig) IsInput() bool {
	return c.Direction == DirectionInput
}

// IsLowLatency reports whether the low-latency performance mode was requested.
func (c StreamConfig) IsLowLatency() bool {
	return c.PerformanceMode == PerformanceLowLatency
}

// BytesPerFrame returns the size of one interleaved frame, or 0 if the
// format or channel count is unspecified.
func (c StreamConfig) BytesPerFrame() int {
	return c.Format.BytesPerSample() * c.ChannelCount
}

// Validate checks the ranges enforced by Open.
func (c StreamConfig) Validate() error {
	if c.ChannelCount < 0 || c.ChannelCount > MaxChannelCount {
		return errors.New(ErrOutOfRange).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Context("channel_count", c.ChannelCount).
			Context("max", MaxChannelCount).
			Build()
	}
	if !c.API.Valid() {
		return errors.New(ErrOutOfRange).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Context("api", int(c.API)).
			Build()
	}
	if c.SampleRate < 0 || c.FramesPerCallback < 0 {
		return errors.New(ErrOutOfRange).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Context("sample_rate", c.SampleRate).
			Context("frames_per_callback", c.FramesPerCallback).
			Build()
	}
	switch c.Format {
	case FormatUnspecified, FormatI16, FormatFloat:
	default:
		return errors.New(ErrOutOfRange).
			Component(ComponentAudioCore).
			Category(errors.CategoryValidation).
			Context("format", int(c.Format)).
			Build()
	}
	return nil
}

func (c StreamConfig) String() string {
	return fmt.Sprintf("%s %s api=%s rate=%d ch=%d fmt=%s perf=%s",
		c.Direction, c.SharingMode, c.API, c.SampleRate, c.ChannelCount, c.Format, c.PerformanceMode)
}
