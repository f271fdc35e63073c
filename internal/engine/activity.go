package engine

import (
	"fmt"
	"strings"
)

// Activity selects how the engine wires its graph when started.
type Activity int

const (
	ActivityTestOutput Activity = 0
	ActivityTestInput  Activity = 1
	ActivityTapToTone  Activity = 2
	ActivityRecordPlay Activity = 3
	ActivityEcho       Activity = 4
	ActivityRTLatency  Activity = 5
	ActivityGlitches   Activity = 6
)

func (a Activity) String() string {
	switch a {
	case ActivityTestOutput:
		return "test-output"
	case ActivityTestInput:
		return "test-input"
	case ActivityTapToTone:
		return "tap-to-tone"
	case ActivityRecordPlay:
		return "record-play"
	case ActivityEcho:
		return "echo"
	case ActivityRTLatency:
		return "rt-latency"
	case ActivityGlitches:
		return "glitches"
	default:
		return fmt.Sprintf("activity(%d)", int(a))
	}
}

// Valid reports whether a is a known activity.
func (a Activity) Valid() bool {
	return a >= ActivityTestOutput && a <= ActivityGlitches
}

// configuredAs maps the analyzer activities onto the activity whose wiring
// they share.
func (a Activity) configuredAs() Activity {
	switch a {
	case ActivityRTLatency:
		return ActivityTestOutput
	case ActivityGlitches:
		return ActivityEcho
	default:
		return a
	}
}

// IsFullDuplex reports whether the activity runs an input and an output
// stream together.
func (a Activity) IsFullDuplex() bool {
	return a.configuredAs() == ActivityEcho
}

// IsInput reports whether the activity is driven by its input stream.
func (a Activity) IsInput() bool {
	switch a.configuredAs() {
	case ActivityTestInput, ActivityRecordPlay:
		return true
	default:
		return false
	}
}

// ParseActivity parses an activity name such as "test-output" or "echo".
func ParseActivity(s string) (Activity, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "-")) {
	case "", "test-output", "output", "tone":
		return ActivityTestOutput, nil
	case "test-input", "input":
		return ActivityTestInput, nil
	case "tap-to-tone", "tap":
		return ActivityTapToTone, nil
	case "record-play", "record":
		return ActivityRecordPlay, nil
	case "echo":
		return ActivityEcho, nil
	case "rt-latency", "latency":
		return ActivityRTLatency, nil
	case "glitches":
		return ActivityGlitches, nil
	}
	return 0, fmt.Errorf("unknown activity %q", s)
}

// ToneType selects the generator used by the output activities.
type ToneType int

const (
	ToneSine     ToneType = 0
	ToneSawtooth ToneType = 1
	ToneSawPing  ToneType = 2
	ToneImpulse  ToneType = 3
)

func (t ToneType) String() string {
	switch t {
	case ToneSine:
		return "sine"
	case ToneSawtooth:
		return "sawtooth"
	case ToneSawPing:
		return "saw-ping"
	case ToneImpulse:
		return "impulse"
	default:
		return fmt.Sprintf("tone(%d)", int(t))
	}
}

// Valid reports whether t is a known tone type.
func (t ToneType) Valid() bool {
	return t >= ToneSine && t <= ToneImpulse
}

// ParseToneType parses "sine", "sawtooth", "saw-ping" or "impulse".
func ParseToneType(s string) (ToneType, error) {
	switch strings.ToLower(strings.ReplaceAll(s, "_", "-")) {
	case "", "sine":
		return ToneSine, nil
	case "sawtooth", "saw":
		return ToneSawtooth, nil
	case "saw-ping", "sawping", "ping":
		return ToneSawPing, nil
	case "impulse":
		return ToneImpulse, nil
	}
	return 0, fmt.Errorf("unknown tone type %q", s)
}
