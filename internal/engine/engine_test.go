package engine

import (
	"context"
	"math"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/audiocore/drivers/simulated"
	"github.com/tphakala/audiostream/internal/audiocore/processors"
	"github.com/tphakala/audiostream/internal/audiocore/quirks"
	"github.com/tphakala/audiostream/internal/audiocore/stream"
)

var testPlatform = quirks.Platform{APILevel: 30, LowLatencyAvailable: true}

// fakeRecorder collects what the engine reports.
type fakeRecorder struct {
	mu        sync.Mutex
	exits     []string
	xruns     map[string]int64
	frames    map[string]int64
	callbacks int64
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{xruns: map[string]int64{}, frames: map[string]int64{}}
}

func (r *fakeRecorder) RecordLoopExit(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.exits = append(r.exits, reason)
}

func (r *fakeRecorder) RecordXRuns(direction string, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.xruns[direction] += delta
}

func (r *fakeRecorder) RecordFrames(direction string, delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[direction] += delta
}

func (r *fakeRecorder) RecordCallbacks(delta int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks += delta
}

func (r *fakeRecorder) exitReasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.exits...)
}

func newTestEngine(t *testing.T, simOpts simulated.Options, opts Options) (*Engine, *simulated.Driver) {
	t.Helper()
	d := simulated.New(simOpts)
	table := stream.NewTable(stream.NewOpener(testPlatform, []audiocore.Driver{d}))
	e := New(table, opts)
	t.Cleanup(func() { _ = e.CloseAll() })
	return e, d
}

func streamConfig(dir audiocore.Direction, channels int) audiocore.StreamConfig {
	cfg := audiocore.DefaultStreamConfig()
	cfg.Direction = dir
	cfg.ChannelCount = channels
	cfg.Format = audiocore.FormatFloat
	return cfg
}

func channelSamples(captured []float32, channels, ch int) []float32 {
	out := make([]float32, 0, len(captured)/channels)
	for i := ch; i < len(captured); i += channels {
		out = append(out, captured[i])
	}
	return out
}

func TestToneOutputMatchesClosedForm(t *testing.T) {
	t.Parallel()

	const sampleRate = 48000
	e, d := newTestEngine(t, simulated.Options{SampleRate: sampleRate, FramesPerBurst: 192}, DefaultOptions())

	_, err := e.Open(streamConfig(audiocore.DirectionOutput, 2))
	require.NoError(t, err)
	require.NoError(t, e.Start())

	native := d.Last()
	native.Tick(1)
	captured := native.Captured()
	require.Len(t, captured, 2*192)

	freqs := []float64{
		float64(float32(DefaultFrequency)),
		float64(float32(DefaultFrequency * FrequencyRatio)),
	}
	for ch, freq := range freqs {
		samples := channelSamples(captured, 2, ch)
		for i, got := range samples {
			phase := processors.WrapPhase(float64(i+1) * freq / sampleRate)
			want := math.Sin(math.Pi * phase)
			require.InDelta(t, want, got, 1e-5, "channel %d frame %d", ch, i)
		}
	}
}

func TestOutputBufferSizedFromCallbackSize(t *testing.T) {
	t.Parallel()

	blocking := simulated.Options{BlockingIO: true}
	callbacksOnly := simulated.Options{Callbacks: true}
	tests := []struct {
		name         string
		backend      simulated.Options
		callbackSize int
		want         int
	}{
		{"burst", blocking, 0, 384},
		{"smaller than burst", blocking, 96, 384},
		{"larger than burst", blocking, 500, 1152},
		// The emulated device runs at the block size
		{"emulated burst", callbacksOnly, 0, 384},
		{"emulated small block", callbacksOnly, 96, 192},
		{"emulated large block", callbacksOnly, 500, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			opts := DefaultOptions()
			opts.UseCallback = false
			opts.CallbackSize = tt.callbackSize
			e, _ := newTestEngine(t, tt.backend, opts)

			handle, err := e.Open(streamConfig(audiocore.DirectionOutput, 2))
			require.NoError(t, err)
			s, err := e.Stream(handle)
			require.NoError(t, err)
			require.False(t, s.UsesCallback())

			e.mu.Lock()
			e.sizeOutputBuffer(s)
			e.mu.Unlock()
			assert.Equal(t, tt.want, s.BufferCapacityInFrames())
			assert.Equal(t, tt.want, s.BufferSizeInFrames())
		})
	}
}

func TestChannelToggle(t *testing.T) {
	t.Parallel()

	e, d := newTestEngine(t, simulated.Options{}, DefaultOptions())
	_, err := e.Open(streamConfig(audiocore.DirectionOutput, 2))
	require.NoError(t, err)
	require.NoError(t, e.Start())
	native := d.Last()
	native.Tick(1)

	require.NoError(t, e.SetChannelEnabled(1, false))
	native.ResetCapture()
	native.Tick(1)
	captured := native.Captured()
	assert.NotZero(t, peak(channelSamples(captured, 2, 0)))
	assert.Zero(t, peak(channelSamples(captured, 2, 1)))

	require.NoError(t, e.SetChannelEnabled(1, true))
	native.ResetCapture()
	native.Tick(1)
	assert.NotZero(t, peak(channelSamples(native.Captured(), 2, 1)))

	require.ErrorIs(t, e.SetChannelEnabled(MaxOscillators, true), audiocore.ErrOutOfRange)
	require.ErrorIs(t, e.SetChannelEnabled(-1, true), audiocore.ErrOutOfRange)
}

func TestChannelMutedBeforeStart(t *testing.T) {
	t.Parallel()

	e, d := newTestEngine(t, simulated.Options{}, DefaultOptions())
	_, err := e.Open(streamConfig(audiocore.DirectionOutput, 2))
	require.NoError(t, err)
	require.NoError(t, e.SetChannelEnabled(0, false))
	require.NoError(t, e.Start())

	native := d.Last()
	native.Tick(1)
	captured := native.Captured()
	assert.Zero(t, peak(channelSamples(captured, 2, 0)))
	assert.NotZero(t, peak(channelSamples(captured, 2, 1)))
}

func TestSetToneTypeRewires(t *testing.T) {
	t.Parallel()

	e, d := newTestEngine(t, simulated.Options{}, DefaultOptions())
	_, err := e.Open(streamConfig(audiocore.DirectionOutput, 2))
	require.NoError(t, err)
	require.NoError(t, e.Start())
	native := d.Last()
	native.Tick(1)

	require.NoError(t, e.SetFrequency(1000))
	require.NoError(t, e.SetToneType(ToneImpulse))
	native.ResetCapture()
	native.Tick(2)
	captured := native.Captured()
	left, right := channelSamples(captured, 2, 0), channelSamples(captured, 2, 1)
	assert.Equal(t, left, right, "impulse is fanned out to every channel")
	assert.InDelta(t, 1.0, peak(left), 1e-6)

	require.ErrorIs(t, e.SetToneType(ToneType(9)), audiocore.ErrOutOfRange)
	require.ErrorIs(t, e.SetFrequency(0), audiocore.ErrOutOfRange)
}

func TestAmplitudeAndToneEnabled(t *testing.T) {
	t.Parallel()

	e, d := newTestEngine(t, simulated.Options{}, DefaultOptions())
	_, err := e.Open(streamConfig(audiocore.DirectionOutput, 1))
	require.NoError(t, err)
	require.NoError(t, e.Start())
	native := d.Last()

	e.SetAmplitude(0.25)
	native.Tick(5)
	assert.InDelta(t, 0.25, peak(native.Captured()), 0.01)

	e.SetToneEnabled(false)
	native.ResetCapture()
	native.Tick(1)
	assert.Zero(t, peak(native.Captured()))

	e.SetToneEnabled(true)
	native.ResetCapture()
	native.Tick(5)
	assert.InDelta(t, 0.25, peak(native.Captured()), 0.01)
}

func TestTapToTone(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Activity = ActivityTapToTone
	e, d := newTestEngine(t, simulated.Options{}, opts)
	_, err := e.Open(streamConfig(audiocore.DirectionOutput, 2))
	require.NoError(t, err)
	require.NoError(t, e.Start())
	native := d.Last()

	native.Tick(1)
	assert.Zero(t, peak(native.Captured()), "silent until tapped")

	require.NoError(t, e.Tap())
	native.ResetCapture()
	native.Tick(1)
	captured := native.Captured()
	assert.Greater(t, peak(captured), float32(0.5))
	assert.Equal(t, channelSamples(captured, 2, 0), channelSamples(captured, 2, 1))

	e.SetToneEnabled(false)
	e.SetToneEnabled(true)
	native.ResetCapture()
	native.Tick(1)
	assert.Greater(t, peak(native.Captured()), float32(0.5), "enabling fires a ping")
}

func TestCallbackReturnStop(t *testing.T) {
	t.Parallel()

	e, d := newTestEngine(t, simulated.Options{}, DefaultOptions())
	handle, err := e.Open(streamConfig(audiocore.DirectionOutput, 2))
	require.NoError(t, err)
	require.NoError(t, e.Start())
	native := d.Last()
	native.Tick(1)

	e.SetCallbackReturnStop(true)
	native.Tick(2)

	s, err := e.Stream(handle)
	require.NoError(t, err)
	assert.Equal(t, audiocore.StateStopped, s.State())
	assert.Equal(t, int64(2), e.CallbackCount())

	// Stop fires once; a restart runs normally
	require.NoError(t, e.Start())
	native.Tick(3)
	assert.Equal(t, audiocore.StateStarted, s.State())
	assert.Equal(t, int64(5), e.CallbackCount())
}

func TestStartRequiresStreams(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, simulated.Options{}, DefaultOptions())
	require.ErrorIs(t, e.Start(), audiocore.ErrInvalidState)

	require.NoError(t, e.SetActivity(ActivityTestInput))
	_, err := e.Open(streamConfig(audiocore.DirectionOutput, 2))
	require.NoError(t, err)
	require.ErrorIs(t, e.Start(), audiocore.ErrInvalidState)

	require.ErrorIs(t, e.SetActivity(Activity(42)), audiocore.ErrOutOfRange)
	require.ErrorIs(t, e.SetCallbackSize(-1), audiocore.ErrOutOfRange)
}

func TestOpenValidatesBeforeAllocating(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, simulated.Options{}, DefaultOptions())
	cfg := streamConfig(audiocore.DirectionOutput, 300)
	handle, err := e.Open(cfg)
	require.ErrorIs(t, err, audiocore.ErrOutOfRange)
	assert.Equal(t, -1, handle)
	assert.Zero(t, e.Table().Len())
}

func TestBlockingOutputLoop(t *testing.T) {
	t.Parallel()

	rec := newFakeRecorder()
	opts := DefaultOptions()
	opts.UseCallback = false
	opts.Recorder = rec
	e, d := newTestEngine(t, simulated.Options{Realtime: true, FramesPerBurst: 96}, opts)

	handle, err := e.Open(streamConfig(audiocore.DirectionOutput, 2))
	require.NoError(t, err)
	s, err := e.Stream(handle)
	require.NoError(t, err)
	require.False(t, s.UsesCallback())

	require.NoError(t, e.Start())
	assert.True(t, e.Status().LoopRunning)

	native := d.Last()
	require.Eventually(t, func() bool {
		return peak(native.Captured()) > 0.9
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, e.Stop())
	assert.False(t, e.Status().LoopRunning)
	assert.Equal(t, []string{ExitStopped}, rec.exitReasons())
	assert.Positive(t, s.FramesWritten())
	assert.Zero(t, s.FramesWritten()%96, "the loop writes whole blocks")
}

func TestBlockingLoopTimeoutClearsLoopRunning(t *testing.T) {
	t.Parallel()

	rec := newFakeRecorder()
	opts := DefaultOptions()
	opts.UseCallback = false
	opts.Recorder = rec
	// The device never advances, so the buffer fills and the next write times out
	e, _ := newTestEngine(t, simulated.Options{BlockingIO: true}, opts)

	_, err := e.Open(streamConfig(audiocore.DirectionOutput, 2))
	require.NoError(t, err)
	require.NoError(t, e.Start())
	assert.True(t, e.Status().LoopRunning)

	require.Eventually(t, func() bool {
		return slices.Contains(rec.exitReasons(), ExitTimeout)
	}, 3*BlockingTimeout, 10*time.Millisecond)
	assert.False(t, e.Status().LoopRunning)

	e.Poll()
	e.mu.Lock()
	assert.Nil(t, e.loop)
	e.mu.Unlock()
	assert.False(t, e.Status().LoopRunning)
	assert.Equal(t, []string{ExitTimeout}, rec.exitReasons())
}

func TestBlockingInputLoopFeedsAnalyzer(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Activity = ActivityTestInput
	opts.UseCallback = false
	e, _ := newTestEngine(t, simulated.Options{Realtime: true, FramesPerBurst: 96}, opts)

	_, err := e.Open(streamConfig(audiocore.DirectionInput, 2))
	require.NoError(t, err)
	require.NoError(t, e.Start())

	require.Eventually(t, func() bool {
		peaks := e.Peaks()
		return len(peaks) == 2 && peaks[0] > 0.4 && peaks[1] > 0.4
	}, 2*time.Second, time.Millisecond)
	require.NoError(t, e.Stop())

	rec := e.Recording()
	require.NotNil(t, rec)
	assert.Positive(t, rec.Frames())
	assert.Equal(t, 10*simulated.DefaultSampleRate, rec.MaxFrames())
}

func TestCallbackFallbackToBlocking(t *testing.T) {
	t.Parallel()

	e, d := newTestEngine(t, simulated.Options{BlockingIO: true, Realtime: true}, DefaultOptions())

	handle, err := e.Open(streamConfig(audiocore.DirectionOutput, 2))
	require.NoError(t, err)
	s, err := e.Stream(handle)
	require.NoError(t, err)
	assert.False(t, s.UsesCallback())
	assert.Equal(t, 1, e.Table().Len())

	require.NoError(t, e.Start())
	assert.True(t, e.Status().LoopRunning)
	native := d.Last()
	require.Eventually(t, func() bool { return peak(native.Captured()) > 0.9 }, 2*time.Second, time.Millisecond)
	require.NoError(t, e.Stop())
}

func TestDisconnectClosesStream(t *testing.T) {
	t.Parallel()

	e, d := newTestEngine(t, simulated.Options{}, DefaultOptions())
	handle, err := e.Open(streamConfig(audiocore.DirectionOutput, 2))
	require.NoError(t, err)
	require.NoError(t, e.Start())
	native := d.Last()
	native.Tick(1)

	s, err := e.Stream(handle)
	require.NoError(t, err)
	native.Disconnect()
	assert.Equal(t, audiocore.StateDisconnected, s.State())
	require.ErrorIs(t, s.RequestStart(), audiocore.ErrDisconnected)

	assert.Equal(t, []int{handle}, e.Poll())
	assert.Equal(t, audiocore.StateClosed, s.State())
	_, err = e.Stream(handle)
	require.ErrorIs(t, err, audiocore.ErrNull)
	assert.Empty(t, e.Poll())
}

func TestRunClosesDisconnectedBlockingStream(t *testing.T) {
	t.Parallel()

	rec := newFakeRecorder()
	opts := DefaultOptions()
	opts.UseCallback = false
	opts.Recorder = rec
	e, d := newTestEngine(t, simulated.Options{Realtime: true}, opts)

	_, err := e.Open(streamConfig(audiocore.DirectionOutput, 2))
	require.NoError(t, err)
	require.NoError(t, e.Start())

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	native := d.Last()
	require.Eventually(t, func() bool { return native.Ticks() > 2 }, 2*time.Second, time.Millisecond)
	native.Disconnect()

	require.Eventually(t, func() bool { return e.Table().Len() == 0 }, 2*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Contains(t, rec.exitReasons(), ExitDisconnected)
	assert.False(t, e.Status().LoopRunning)
}

func TestEchoDelaysInput(t *testing.T) {
	t.Parallel()

	const delay = 10 * time.Millisecond // 480 frames at 48 kHz
	opts := DefaultOptions()
	opts.Activity = ActivityEcho
	opts.EchoDelay = delay
	input := func(int64, int) float32 { return 0.25 }
	e, d := newTestEngine(t, simulated.Options{Input: input}, opts)

	inHandle, err := e.Open(streamConfig(audiocore.DirectionInput, 2))
	require.NoError(t, err)
	_, err = e.Open(streamConfig(audiocore.DirectionOutput, 2))
	require.NoError(t, err)

	in, err := e.Stream(inHandle)
	require.NoError(t, err)
	assert.False(t, in.UsesCallback(), "echo input is polled")

	require.NoError(t, e.Start())
	natives := d.Streams()
	require.Len(t, natives, 2)
	nativeIn, nativeOut := natives[0], natives[1]
	for range 5 {
		nativeIn.Tick(1)
		nativeOut.Tick(1)
	}

	out := channelSamples(nativeOut.Captured(), 2, 0)
	require.Len(t, out, 5*192)
	assert.Zero(t, peak(out[:480]))
	for i, v := range out[480:] {
		require.InDelta(t, 0.25, v, 1e-6, "frame %d", 480+i)
	}
}

func TestRecordThenPlayback(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Activity = ActivityRecordPlay
	e, d := newTestEngine(t, simulated.Options{}, opts)

	_, err := e.Open(streamConfig(audiocore.DirectionInput, 2))
	require.NoError(t, err)
	_, err = e.Open(streamConfig(audiocore.DirectionOutput, 2))
	require.NoError(t, err)

	require.ErrorIs(t, e.StartPlayback(), audiocore.ErrInvalidState, "nothing recorded yet")
	require.NoError(t, e.Start())
	natives := d.Streams()
	nativeIn, nativeOut := natives[0], natives[1]
	nativeIn.Tick(3)

	rec := e.Recording()
	require.NotNil(t, rec)
	require.Equal(t, 3*192, rec.Frames())
	assert.Equal(t, 3*192, e.Status().RecordedFrames)

	require.NoError(t, e.StartPlayback())
	nativeIn.Tick(1)
	assert.Equal(t, 3*192, rec.Frames(), "recording stops when playback starts")

	nativeOut.Tick(1)
	assert.False(t, e.PlaybackDone())
	nativeOut.Tick(2)
	assert.True(t, e.PlaybackDone())

	gen := simulated.SineInput(1000, simulated.DefaultSampleRate, 0.5)
	captured := nativeOut.Captured()
	require.Len(t, captured, 2*3*192)
	for i := range 3 * 192 {
		require.InDelta(t, gen(int64(i), 0), captured[i*2], 1e-6, "frame %d", i)
	}

	buf := rec.Buffer()
	assert.Equal(t, 2, buf.Format.NumChannels)
	assert.Len(t, buf.Data, 2*3*192)
}

func TestStatsReportedAsDeltas(t *testing.T) {
	t.Parallel()

	rec := newFakeRecorder()
	opts := DefaultOptions()
	opts.Recorder = rec
	e, d := newTestEngine(t, simulated.Options{}, opts)

	_, err := e.Open(streamConfig(audiocore.DirectionOutput, 2))
	require.NoError(t, err)
	require.NoError(t, e.Start())
	native := d.Last()

	native.Tick(2)
	e.Poll()
	native.Tick(3)
	e.Poll()
	e.Poll()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, int64(5*192), rec.frames["output"])
	assert.Equal(t, int64(5), rec.callbacks)
	assert.Zero(t, rec.xruns["output"])

	st := e.Status()
	require.Len(t, st.Streams, 1)
	assert.Equal(t, "started", st.Streams[0].State)
	assert.Equal(t, int64(5*192), st.Streams[0].FramesWritten)
	assert.Equal(t, int64(5), st.Callbacks)
}

func TestPauseAndStop(t *testing.T) {
	t.Parallel()

	e, d := newTestEngine(t, simulated.Options{}, DefaultOptions())
	handle, err := e.Open(streamConfig(audiocore.DirectionOutput, 2))
	require.NoError(t, err)
	s, err := e.Stream(handle)
	require.NoError(t, err)

	require.NoError(t, e.Start())
	native := d.Last()
	native.Tick(1)

	require.NoError(t, e.Pause())
	native.Tick(1)
	assert.Equal(t, audiocore.StatePaused, s.State())

	require.NoError(t, e.Stop())
	native.Tick(1)
	assert.Equal(t, audiocore.StateStopped, s.State())
	require.NoError(t, e.Stop(), "stopping a stopped stream is a no-op")

	require.NoError(t, e.Close(handle))
	require.ErrorIs(t, e.Close(handle), audiocore.ErrNull)
}

func peak(samples []float32) float32 {
	var p float32
	for _, v := range samples {
		p = max(p, float32(math.Abs(float64(v))))
	}
	return p
}
