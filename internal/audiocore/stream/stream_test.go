package stream

import (
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/audiocore/drivers/simulated"
	"github.com/tphakala/audiostream/internal/audiocore/quirks"
)

var modernPlatform = quirks.Platform{APILevel: 30, LowLatencyAvailable: true}

func newTestTable(t *testing.T, opts simulated.Options, platform quirks.Platform) (*Table, *simulated.Driver) {
	t.Helper()
	d := simulated.New(opts)
	table := NewTable(NewOpener(platform, []audiocore.Driver{d}))
	t.Cleanup(func() { _ = table.CloseAll() })
	return table, d
}

func outputConfig() audiocore.StreamConfig {
	return audiocore.DefaultStreamConfig()
}

func inputConfig() audiocore.StreamConfig {
	cfg := audiocore.DefaultStreamConfig()
	cfg.Direction = audiocore.DirectionInput
	return cfg
}

func silenceCallback() audiocore.DataCallback {
	return audiocore.DataCallbackFunc(func(audiocore.Stream, []byte, int) audiocore.CallbackResult {
		return audiocore.CallbackContinue
	})
}

func TestCloseFromAnyStateFreesHandle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		setup func(t *testing.T, s audiocore.Stream, native *simulated.Stream)
		want  audiocore.State
	}{
		{"open", func(*testing.T, audiocore.Stream, *simulated.Stream) {}, audiocore.StateOpen},
		{"starting", func(t *testing.T, s audiocore.Stream, _ *simulated.Stream) {
			t.Helper()
			require.NoError(t, s.RequestStart())
		}, audiocore.StateStarting},
		{"started", func(t *testing.T, s audiocore.Stream, n *simulated.Stream) {
			t.Helper()
			require.NoError(t, s.RequestStart())
			n.Tick(1)
		}, audiocore.StateStarted},
		{"pausing", func(t *testing.T, s audiocore.Stream, n *simulated.Stream) {
			t.Helper()
			require.NoError(t, s.RequestStart())
			n.Tick(1)
			require.NoError(t, s.RequestPause())
		}, audiocore.StatePausing},
		{"stopped", func(t *testing.T, s audiocore.Stream, n *simulated.Stream) {
			t.Helper()
			require.NoError(t, s.RequestStart())
			n.Tick(1)
			require.NoError(t, s.RequestStop())
			n.Tick(1)
		}, audiocore.StateStopped},
		{"disconnected", func(t *testing.T, s audiocore.Stream, n *simulated.Stream) {
			t.Helper()
			require.NoError(t, s.RequestStart())
			n.Disconnect()
		}, audiocore.StateDisconnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			table, d := newTestTable(t, simulated.Options{}, modernPlatform)
			handle, s, err := table.Open(outputConfig(), silenceCallback())
			require.NoError(t, err)
			require.Equal(t, 0, handle)

			tt.setup(t, s, d.Last())
			require.Equal(t, tt.want, s.State())

			require.NoError(t, table.Close(handle))
			assert.Equal(t, audiocore.StateClosed, s.State())
			assert.Equal(t, audiocore.StateClosed, d.Last().State())
			require.NoError(t, s.Close(), "close is idempotent")

			_, err = table.Get(handle)
			require.ErrorIs(t, err, audiocore.ErrNull)

			again, _, err := table.Open(outputConfig(), silenceCallback())
			require.NoError(t, err)
			assert.Equal(t, handle, again)
		})
	}
}

func TestTableCapacity(t *testing.T) {
	t.Parallel()

	table, _ := newTestTable(t, simulated.Options{}, modernPlatform)
	for i := range MaxStreams {
		h, _, err := table.Open(outputConfig(), silenceCallback())
		require.NoError(t, err)
		require.Equal(t, i, h)
	}

	_, _, err := table.Open(outputConfig(), silenceCallback())
	require.ErrorIs(t, err, audiocore.ErrNoFreeHandles)
	assert.Equal(t, audiocore.ResultErrorNoFreeHandles, audiocore.ResultOf(err))

	// Range errors are reported before a handle is looked for
	bad := outputConfig()
	bad.ChannelCount = 300
	_, _, err = table.Open(bad, silenceCallback())
	require.ErrorIs(t, err, audiocore.ErrOutOfRange)

	bad = outputConfig()
	bad.API = audiocore.API(7)
	_, _, err = table.Open(bad, silenceCallback())
	require.ErrorIs(t, err, audiocore.ErrOutOfRange)

	require.NoError(t, table.Close(3))
	h, _, err := table.Open(outputConfig(), silenceCallback())
	require.NoError(t, err)
	assert.Equal(t, 3, h)
	assert.Equal(t, MaxStreams, table.Len())
}

func TestFailedOpenReleasesHandle(t *testing.T) {
	t.Parallel()

	table, _ := newTestTable(t, simulated.Options{BlockingIO: true}, modernPlatform)
	_, _, err := table.Open(outputConfig(), silenceCallback())
	require.ErrorIs(t, err, audiocore.ErrUnimplemented)
	assert.Zero(t, table.Len())

	h, s, err := table.Open(outputConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, h)
	assert.False(t, s.UsesCallback())
}

func TestGetValidatesHandle(t *testing.T) {
	t.Parallel()

	table, _ := newTestTable(t, simulated.Options{}, modernPlatform)
	_, err := table.Get(-1)
	require.ErrorIs(t, err, audiocore.ErrOutOfRange)
	_, err = table.Get(MaxStreams)
	require.ErrorIs(t, err, audiocore.ErrOutOfRange)
	require.ErrorIs(t, table.Close(2), audiocore.ErrNull)
}

func TestStateMachine(t *testing.T) {
	t.Parallel()

	table, d := newTestTable(t, simulated.Options{}, modernPlatform)
	_, s, err := table.Open(outputConfig(), silenceCallback())
	require.NoError(t, err)
	native := d.Last()

	// Stopping or pausing an idle stream
	require.NoError(t, s.RequestStop())
	assert.Equal(t, audiocore.StateOpen, s.State())
	require.ErrorIs(t, s.RequestPause(), audiocore.ErrInvalidState)

	require.NoError(t, s.RequestStart())
	assert.Equal(t, audiocore.StateStarting, s.State())
	require.NoError(t, s.RequestStart(), "start while starting is a no-op")
	native.Tick(1)
	assert.Equal(t, audiocore.StateStarted, s.State())

	require.NoError(t, s.RequestPause())
	assert.Equal(t, audiocore.StatePausing, s.State())
	native.Tick(1)
	assert.Equal(t, audiocore.StatePaused, s.State())

	require.NoError(t, s.RequestStart())
	native.Tick(1)
	require.NoError(t, s.RequestStop())
	native.Tick(1)
	assert.Equal(t, audiocore.StateStopped, s.State())
	require.NoError(t, s.RequestStop())
	require.ErrorIs(t, s.RequestPause(), audiocore.ErrInvalidState)

	require.NoError(t, s.Close())
	require.ErrorIs(t, s.RequestStart(), audiocore.ErrInvalidState)
	assert.Equal(t, audiocore.ResultErrorInvalidState, audiocore.ResultOf(s.RequestStop()))
}

func TestWaitForStateChange(t *testing.T) {
	t.Parallel()

	table, d := newTestTable(t, simulated.Options{}, modernPlatform)
	_, s, err := table.Open(outputConfig(), silenceCallback())
	require.NoError(t, err)

	require.NoError(t, s.RequestStart())
	st, err := s.WaitForStateChange(audiocore.StateStarting, 30*time.Millisecond)
	require.ErrorIs(t, err, audiocore.ErrTimeout)
	assert.Equal(t, audiocore.StateStarting, st)

	go d.Last().Tick(1)
	st, err = s.WaitForStateChange(audiocore.StateStarting, time.Second)
	require.NoError(t, err)
	assert.Equal(t, audiocore.StateStarted, st)
}

func TestStartWaitsForRealtimeBackend(t *testing.T) {
	t.Parallel()

	table, _ := newTestTable(t, simulated.Options{Realtime: true, FramesPerBurst: 96}, modernPlatform)
	_, s, err := table.Open(outputConfig(), silenceCallback())
	require.NoError(t, err)

	require.NoError(t, s.Start(time.Second))
	assert.Equal(t, audiocore.StateStarted, s.State())
	require.Eventually(t, func() bool { return s.CallbackCount() > 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop(time.Second))
	assert.Equal(t, audiocore.StateStopped, s.State())
}

func TestCallbackStopHonoredWithinOnePeriod(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	cb := audiocore.DataCallbackFunc(func(audiocore.Stream, []byte, int) audiocore.CallbackResult {
		if calls.Add(1) == 2 {
			return audiocore.CallbackStop
		}
		return audiocore.CallbackContinue
	})

	table, d := newTestTable(t, simulated.Options{}, modernPlatform)
	_, s, err := table.Open(outputConfig(), cb)
	require.NoError(t, err)
	require.NoError(t, s.RequestStart())

	native := d.Last()
	native.Tick(2)
	assert.Equal(t, audiocore.StateStopping, s.State())
	native.Tick(1)
	assert.Equal(t, audiocore.StateStopped, s.State())
	assert.Equal(t, int64(2), s.CallbackCount())
	assert.Equal(t, int64(2*simulated.DefaultFramesPerBurst), s.FramesWritten())
}

func TestBufferedEmulationRead(t *testing.T) {
	t.Parallel()

	table, d := newTestTable(t, simulated.Options{Callbacks: true}, modernPlatform)
	_, s, err := table.Open(inputConfig(), nil)
	require.NoError(t, err)
	require.IsType(t, &bufferedStream{}, s)
	assert.False(t, s.UsesCallback())
	assert.Equal(t, 2*simulated.DefaultFramesPerBurst, s.BufferCapacityInFrames())

	bpf := s.Config().BytesPerFrame()
	buf := make([]byte, 1024*bpf)

	// Nothing captured yet
	n, err := s.Read(buf, 64, 20*time.Millisecond)
	require.ErrorIs(t, err, audiocore.ErrTimeout)
	assert.Zero(t, n)

	require.NoError(t, s.RequestStart())
	native := d.Last()
	native.Tick(1)

	n, err = s.Read(buf, 100, 0)
	require.NoError(t, err)
	assert.Equal(t, 100, n)

	// Partial: 92 frames left, ask for more
	n, err = s.Read(buf, 200, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 92, n)

	// Overrun: three bursts into a two-burst FIFO
	native.Tick(3)
	assert.Equal(t, int64(1), s.XRunCount())
	n, err = s.Read(buf, 1024, 0)
	require.NoError(t, err)
	assert.Equal(t, 2*simulated.DefaultFramesPerBurst, n)
	assert.Equal(t, int64(100+92+n), s.FramesRead())
}

func TestBufferedEmulationWrite(t *testing.T) {
	t.Parallel()

	table, d := newTestTable(t, simulated.Options{Callbacks: true, ChannelCount: 1}, modernPlatform)
	_, s, err := table.Open(outputConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, s.RequestStart())
	native := d.Last()

	// Underrun on an empty FIFO
	native.Tick(1)
	assert.Equal(t, int64(1), s.XRunCount())

	samples := make([]float32, simulated.DefaultFramesPerBurst)
	for i := range samples {
		samples[i] = 0.5
	}
	buf := make([]byte, len(samples)*4)
	audiocore.EncodeFloat32(buf, samples)

	n, err := s.Write(buf, len(samples), time.Second)
	require.NoError(t, err)
	assert.Equal(t, len(samples), n)
	native.Tick(1)
	assert.Equal(t, int64(1), s.XRunCount())

	captured := native.Captured()
	require.Len(t, captured, 2*simulated.DefaultFramesPerBurst)
	assert.InDelta(t, 0, captured[0], 0)
	assert.InDelta(t, 0.5, captured[len(captured)-1], 1e-7)

	// Wrong direction
	_, err = s.Read(buf, 1, 0)
	require.ErrorIs(t, err, audiocore.ErrInvalidState)
}

func TestCallbackStreamRejectsBlockingTransfers(t *testing.T) {
	t.Parallel()

	table, _ := newTestTable(t, simulated.Options{}, modernPlatform)
	_, s, err := table.Open(outputConfig(), silenceCallback())
	require.NoError(t, err)
	_, err = s.Write(make([]byte, 64), 1, 0)
	require.ErrorIs(t, err, audiocore.ErrInvalidState)
}

func TestDisconnectIsFatal(t *testing.T) {
	t.Parallel()

	table, d := newTestTable(t, simulated.Options{BlockingIO: true}, modernPlatform)
	h, s, err := table.Open(inputConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, s.RequestStart())
	d.Last().Tick(1)

	d.Last().Disconnect()
	assert.Equal(t, audiocore.StateDisconnected, s.State())
	require.ErrorIs(t, s.RequestStart(), audiocore.ErrDisconnected)
	require.ErrorIs(t, s.RequestStop(), audiocore.ErrDisconnected)

	_, err = s.Read(make([]byte, 4096), 8, 0)
	require.ErrorIs(t, err, audiocore.ErrDisconnected)
	assert.Equal(t, audiocore.ResultErrorDisconnected, audiocore.ResultOf(err))

	require.NoError(t, table.Close(h))
	assert.Equal(t, audiocore.StateClosed, s.State())
}

func TestSetBufferSizeClamps(t *testing.T) {
	t.Parallel()

	table, _ := newTestTable(t, simulated.Options{Callbacks: true}, modernPlatform)
	_, s, err := table.Open(outputConfig(), nil)
	require.NoError(t, err)

	burst := s.FramesPerBurst()
	got, err := s.SetBufferSizeInFrames(1)
	require.NoError(t, err)
	assert.Equal(t, burst, got)

	got, err = s.SetBufferSizeInFrames(1 << 20)
	require.NoError(t, err)
	assert.Equal(t, s.BufferCapacityInFrames(), got)
	assert.Equal(t, got, s.BufferSizeInFrames())
}

func TestSetBufferSizeBoundsNonBlockingWrite(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts simulated.Options
	}{
		{"buffered emulation", simulated.Options{Callbacks: true}},
		{"native blocking", simulated.Options{BlockingIO: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			table, _ := newTestTable(t, tt.opts, modernPlatform)
			_, s, err := table.Open(outputConfig(), nil)
			require.NoError(t, err)

			burst := s.FramesPerBurst()
			require.Equal(t, 2*burst, s.BufferCapacityInFrames())
			got, err := s.SetBufferSizeInFrames(burst)
			require.NoError(t, err)
			require.Equal(t, burst, got)

			capacity := s.BufferCapacityInFrames()
			buf := make([]byte, capacity*s.Config().BytesPerFrame())
			n, err := s.Write(buf, capacity, 0)
			require.NoError(t, err)
			assert.Equal(t, burst, n)

			// Growing the size admits the rest
			_, err = s.SetBufferSizeInFrames(capacity)
			require.NoError(t, err)
			n, err = s.Write(buf, capacity, 0)
			require.NoError(t, err)
			assert.Equal(t, capacity-burst, n)
		})
	}
}

func TestConversionResamplesCallbackOutput(t *testing.T) {
	t.Parallel()

	var appFrames atomic.Int64
	cb := audiocore.DataCallbackFunc(func(_ audiocore.Stream, data []byte, n int) audiocore.CallbackResult {
		samples := make([]float32, n*2)
		for i := range samples {
			samples[i] = 0.25
		}
		audiocore.EncodeFloat32(data, samples)
		appFrames.Add(int64(n))
		return audiocore.CallbackContinue
	})

	table, d := newTestTable(t, simulated.Options{}, modernPlatform)
	cfg := outputConfig()
	cfg.SampleRate = 44100
	cfg.ChannelCount = 2
	cfg.Format = audiocore.FormatFloat

	_, s, err := table.Open(cfg, cb)
	require.NoError(t, err)
	assert.True(t, s.UsesConversion())
	assert.Equal(t, 44100, s.Config().SampleRate)
	native := d.Last()
	assert.Equal(t, simulated.DefaultSampleRate, native.Config().SampleRate)

	require.NoError(t, s.RequestStart())
	native.Tick(50)

	captured := native.Captured()
	require.Len(t, captured, 50*simulated.DefaultFramesPerBurst*2)
	for i, v := range captured {
		require.InDelta(t, 0.25, v, 1e-6, "sample %d", i)
	}

	// 50 bursts at 48 kHz need about 50*192*44100/48000 app frames
	want := float64(50*simulated.DefaultFramesPerBurst) * 44100 / 48000
	assert.InDelta(t, want, float64(appFrames.Load()), 200)
	assert.Equal(t, appFrames.Load(), s.FramesWritten())
}

func TestConversionFloatCaptureOnLegacyBackend(t *testing.T) {
	t.Parallel()

	legacy := quirks.Platform{APILevel: quirks.APILevelOMR1, LowLatencyAvailable: false}
	table, d := newTestTable(t, simulated.Options{API: audiocore.APIBufferQueue, BlockingIO: true}, legacy)

	cfg := inputConfig()
	cfg.Format = audiocore.FormatFloat
	_, s, err := table.Open(cfg, nil)
	require.NoError(t, err)
	require.True(t, s.UsesConversion())
	assert.Equal(t, audiocore.APIBufferQueue, s.API())
	assert.Equal(t, audiocore.FormatFloat, s.Config().Format)

	native := d.Last()
	assert.Equal(t, audiocore.FormatI16, native.Config().Format)

	require.NoError(t, s.RequestStart())
	native.Tick(1)

	frames := simulated.DefaultFramesPerBurst
	buf := make([]byte, frames*s.Config().BytesPerFrame())
	n, err := s.Read(buf, frames, time.Second)
	require.NoError(t, err)
	require.Equal(t, frames, n)

	samples := make([]float32, n*s.Config().ChannelCount)
	audiocore.DecodeFloat32(samples, buf)
	gen := simulated.SineInput(1000, simulated.DefaultSampleRate, 0.5)
	for i := range n {
		want := gen(int64(i), 0)
		assert.InDelta(t, want, samples[i*2], 1.0/16384, "frame %d", i)
	}

	// Drained: the next read times out
	_, err = s.Read(buf, frames, 10*time.Millisecond)
	require.ErrorIs(t, err, audiocore.ErrTimeout)
}

func TestConversionChannelCountBlockingWrite(t *testing.T) {
	t.Parallel()

	// Mono output on a pre-P low latency backend is opened as stereo
	oreoMR1 := quirks.Platform{APILevel: quirks.APILevelOMR1, LowLatencyAvailable: true}
	table, d := newTestTable(t, simulated.Options{BlockingIO: true}, oreoMR1)

	cfg := outputConfig()
	cfg.ChannelCount = 1
	cfg.Format = audiocore.FormatI16
	_, s, err := table.Open(cfg, nil)
	require.NoError(t, err)
	require.True(t, s.UsesConversion())
	native := d.Last()
	assert.Equal(t, 2, native.Config().ChannelCount)
	assert.Equal(t, 1, s.Config().ChannelCount)

	frames := 64
	samples := make([]float32, frames)
	for i := range samples {
		samples[i] = float32(math.Sin(float64(i) / 10))
	}
	buf := make([]byte, frames*2)
	audiocore.EncodeI16(buf, samples)

	n, err := s.Write(buf, frames, time.Second)
	require.NoError(t, err)
	assert.Equal(t, frames, n)

	require.NoError(t, s.RequestStart())
	native.Tick(1)
	captured := native.Captured()
	for i := range frames {
		assert.InDelta(t, captured[i*2], captured[i*2+1], 0, "frame %d duplicated", i)
		assert.InDelta(t, samples[i], captured[i*2], 1.0/16384)
	}
}
