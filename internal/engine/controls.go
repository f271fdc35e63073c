package engine

import (
	"time"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/audiocore/processors"
	"github.com/tphakala/audiostream/internal/logger"
)

// Activity returns the current activity.
func (e *Engine) Activity() Activity {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activity
}

// SetActivity selects the activity. It takes effect for streams opened and
// activities started afterwards.
func (e *Engine) SetActivity(a Activity) error {
	if !a.Valid() {
		return engineError(audiocore.ErrOutOfRange, "set_activity").Context("activity", int(a)).Build()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activity = a
	return nil
}

// SetUseCallback selects callback or blocking I/O for streams opened
// afterwards.
func (e *Engine) SetUseCallback(use bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.useCallback = use
}

// SetCallbackSize sets the frames per callback or blocking transfer. Zero
// uses the burst.
func (e *Engine) SetCallbackSize(frames int) error {
	if frames < 0 {
		return engineError(audiocore.ErrOutOfRange, "set_callback_size").Context("frames", frames).Build()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.callbackSize = frames
	return nil
}

// SetCallbackReturnStop makes the next callback of each stream return Stop.
func (e *Engine) SetCallbackReturnStop(stop bool) {
	e.inputProxy.setReturnStop(stop)
	e.outputProxy.setReturnStop(stop)
}

// CallbackCount returns how many callbacks and blocking blocks ran.
func (e *Engine) CallbackCount() int64 {
	return e.inputProxy.callbacks() + e.outputProxy.callbacks()
}

// SetAmplitude sets the tone amplitude.
func (e *Engine) SetAmplitude(amplitude float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.amplitude = amplitude
	if e.tones != nil && e.toneEnabled {
		e.tones.setAmplitude(amplitude)
	}
}

// SetFrequency sets the base tone frequency. Channel i plays
// frequency * (4/3)^i.
func (e *Engine) SetFrequency(hz float64) error {
	if hz <= 0 {
		return engineError(audiocore.ErrOutOfRange, "set_frequency").Context("frequency", hz).Build()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.frequency = hz
	if e.tones != nil {
		e.tones.setFrequency(hz)
	}
	return nil
}

// SetChannelEnabled connects or disconnects the oscillator of one channel.
func (e *Engine) SetChannelEnabled(channel int, enabled bool) error {
	if channel < 0 || channel >= MaxOscillators {
		return engineError(audiocore.ErrOutOfRange, "set_channel_enabled").Context("channel", channel).Build()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.muted[channel] = !enabled
	if e.tones != nil {
		e.tones.setChannelEnabled(channel, enabled)
	}
	return nil
}

// SetToneType selects the generator and rewires a running tone graph.
func (e *Engine) SetToneType(t ToneType) error {
	if !t.Valid() {
		return engineError(audiocore.ErrOutOfRange, "set_tone_type").Context("tone", int(t)).Build()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.toneType = t
	if e.tones != nil && e.activity != ActivityTapToTone {
		e.tones.connect(t)
	}
	return nil
}

// SetToneEnabled arms the saw ping in TapToTone, where enabling fires a
// ping. In the other output activities it mutes or restores the tone.
func (e *Engine) SetToneEnabled(enabled bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.activity == ActivityTapToTone {
		if e.tones != nil {
			e.tones.sawPing.SetEnabled(enabled)
		}
		return
	}
	e.toneEnabled = enabled
	if e.tones == nil {
		return
	}
	if enabled {
		e.tones.setAmplitude(e.amplitude)
	} else {
		e.tones.setAmplitude(0)
	}
}

// Tap fires one saw ping.
func (e *Engine) Tap() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tones == nil {
		return engineError(audiocore.ErrInvalidState, "tap").Context("activity", e.activity.String()).Build()
	}
	e.tones.sawPing.Trigger()
	return nil
}

// SetEchoDelay sets the echo delay, clamped to MaxEchoDelay.
func (e *Engine) SetEchoDelay(d time.Duration) error {
	if d < 0 {
		return engineError(audiocore.ErrOutOfRange, "set_echo_delay").Context("delay", d.String()).Build()
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.echoDelay = min(d, MaxEchoDelay)
	if e.echo != nil {
		if out := e.streamFor(audiocore.DirectionOutput); out != nil {
			e.echo.setDelay(e.echoDelay, out.Config().SampleRate)
		}
	}
	return nil
}

// Peaks returns the per-channel input peak levels.
func (e *Engine) Peaks() []float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.analyzer == nil {
		return nil
	}
	return e.analyzer.Peaks()
}

// Recording returns the input recording of the last input activity.
func (e *Engine) Recording() *processors.Recording {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recording
}

// StartPlayback stops recording and plays the recording on the output
// stream.
func (e *Engine) StartPlayback() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.recording == nil {
		return engineError(audiocore.ErrInvalidState, "start_playback").Context("reason", "nothing recorded").Build()
	}
	out := e.streamFor(audiocore.DirectionOutput)
	if out == nil {
		return e.missingStream(audiocore.DirectionOutput)
	}

	e.stopLoopLocked()
	if in := e.streamFor(audiocore.DirectionInput); in != nil {
		if err := in.RequestStop(); err != nil {
			e.log.Debug("stop input before playback failed", logger.Error(err))
		}
	}
	e.analyzer.SetRecording(nil)

	player, gateway, err := newPlayback(e.recording, out.Config())
	if err != nil {
		return err
	}
	e.player = player
	e.outputProxy.setTarget(gateway)
	e.sizeOutputBuffer(out)
	if err := out.RequestStart(); err != nil {
		return err
	}
	if !out.UsesCallback() {
		e.startLoopLocked(out)
	}
	e.log.Info("playback started", logger.Int("frames", e.recording.Frames()))
	return nil
}

// PlaybackDone reports whether the whole recording was played.
func (e *Engine) PlaybackDone() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.player != nil && e.player.Done()
}
