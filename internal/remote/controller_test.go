package remote

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/conf"
	"github.com/tphakala/audiostream/internal/engine"
	"github.com/tphakala/audiostream/internal/errors"
)

// fakeConn records publications and lets tests deliver messages to
// subscribers.
type fakeConn struct {
	mu          sync.Mutex
	subscribers map[string]nats.MsgHandler
	published   map[string][][]byte
	subErr      error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		subscribers: make(map[string]nats.MsgHandler),
		published:   make(map[string][][]byte),
	}
}

func (f *fakeConn) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.subscribers[subject] = cb
	return nil, nil
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published[subject] = append(f.published[subject], data)
	return nil
}

func (f *fakeConn) Close() {}

func (f *fakeConn) deliver(t *testing.T, subject, reply string, data []byte) {
	t.Helper()
	f.mu.Lock()
	cb, ok := f.subscribers[subject]
	f.mu.Unlock()
	require.True(t, ok, "no subscriber on %s", subject)
	cb(&nats.Msg{Subject: subject, Reply: reply, Data: data})
}

func (f *fakeConn) messages(subject string) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.published[subject]...)
}

// fakeEngine records the calls made by the controller.
type fakeEngine struct {
	mu        sync.Mutex
	calls     []string
	amplitude float32
	frequency float64
	channels  map[int]bool
	tone      bool
	startErr  error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{channels: make(map[int]bool)}
}

func (f *fakeEngine) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeEngine) Start() error { f.record("start"); return f.startErr }
func (f *fakeEngine) Stop() error  { f.record("stop"); return nil }
func (f *fakeEngine) Pause() error { f.record("pause"); return nil }
func (f *fakeEngine) Tap() error   { f.record("tap"); return nil }

func (f *fakeEngine) SetAmplitude(a float32) {
	f.record("amplitude")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.amplitude = a
}

func (f *fakeEngine) SetFrequency(hz float64) error {
	f.record("frequency")
	if hz <= 0 {
		return errors.New(audiocore.ErrOutOfRange).Context("frequency", hz).Build()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frequency = hz
	return nil
}

func (f *fakeEngine) SetChannelEnabled(ch int, enabled bool) error {
	f.record("channel")
	if ch < 0 || ch >= engine.MaxOscillators {
		return errors.New(audiocore.ErrOutOfRange).Context("channel", ch).Build()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels[ch] = enabled
	return nil
}

func (f *fakeEngine) SetToneEnabled(enabled bool) {
	f.record("tone")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tone = enabled
}

func (f *fakeEngine) Status() engine.Status {
	return engine.Status{
		Activity:  "test-output",
		ToneType:  "sine",
		Callbacks: 42,
		Streams:   []engine.StreamStatus{{Handle: 1, Direction: "output", State: "started", XRuns: 2}},
		Peaks:     []float32{0.5},
	}
}

func newTestController(conn Conn, eng Engine) *Controller {
	return New(conn, eng, &conf.RemoteSettings{Prefix: "bench", StatusInterval: 5 * time.Millisecond})
}

func boolPtr(b bool) *bool { return &b }

func TestApplyCommands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		cmd    Command
		result audiocore.Result
		call   string
	}{
		{"start", Command{Op: OpStart}, audiocore.ResultOK, "start"},
		{"stop", Command{Op: OpStop}, audiocore.ResultOK, "stop"},
		{"pause", Command{Op: OpPause}, audiocore.ResultOK, "pause"},
		{"amplitude", Command{Op: OpSetAmplitude, Value: 0.25}, audiocore.ResultOK, "amplitude"},
		{"amplitude out of range", Command{Op: OpSetAmplitude, Value: 3}, audiocore.ResultErrorOutOfRange, ""},
		{"frequency", Command{Op: OpSetFrequency, Value: 1000}, audiocore.ResultOK, "frequency"},
		{"zero frequency", Command{Op: OpSetFrequency}, audiocore.ResultErrorOutOfRange, "frequency"},
		{"channel", Command{Op: OpSetChannel, Channel: 3, Enabled: boolPtr(false)}, audiocore.ResultOK, "channel"},
		{"channel out of range", Command{Op: OpSetChannel, Channel: 16}, audiocore.ResultErrorOutOfRange, "channel"},
		{"tone", Command{Op: OpTone}, audiocore.ResultOK, "tone"},
		{"tap", Command{Op: OpTap}, audiocore.ResultOK, "tap"},
		{"unknown op", Command{Op: "reboot"}, audiocore.ResultErrorUnimplemented, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			eng := newFakeEngine()
			c := newTestController(newFakeConn(), eng)

			reply := c.Apply(tt.cmd)
			assert.Equal(t, int(tt.result), reply.Result)
			assert.Equal(t, tt.result.String(), reply.ResultName)
			assert.Equal(t, tt.result != audiocore.ResultOK, reply.Error != "")
			if tt.call == "" {
				assert.Empty(t, eng.calls)
			} else {
				assert.Equal(t, []string{tt.call}, eng.calls)
			}
		})
	}
}

func TestApplyUpdatesEngine(t *testing.T) {
	t.Parallel()

	eng := newFakeEngine()
	c := newTestController(newFakeConn(), eng)

	c.Apply(Command{Op: OpSetAmplitude, Value: 0.5})
	c.Apply(Command{Op: OpSetFrequency, Value: 880})
	c.Apply(Command{Op: OpSetChannel, Channel: 2, Enabled: boolPtr(false)})
	c.Apply(Command{Op: OpSetChannel, Channel: 5})
	c.Apply(Command{Op: OpTone, Enabled: boolPtr(false)})

	assert.InDelta(t, 0.5, eng.amplitude, 0)
	assert.InDelta(t, 880.0, eng.frequency, 0)
	assert.Equal(t, map[int]bool{2: false, 5: true}, eng.channels)
	assert.False(t, eng.tone)
}

func TestApplyStartFailureReportsResult(t *testing.T) {
	t.Parallel()

	eng := newFakeEngine()
	eng.startErr = errors.New(audiocore.ErrInvalidState).Context("reason", "no streams").Build()
	c := newTestController(newFakeConn(), eng)

	reply := c.Apply(Command{Op: OpStart})
	assert.Equal(t, int(audiocore.ResultErrorInvalidState), reply.Result)
}

func TestControlMessagesAreAnswered(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	eng := newFakeEngine()
	c := newTestController(conn, eng)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool {
		conn.mu.Lock()
		defer conn.mu.Unlock()
		_, ok := conn.subscribers["bench.control"]
		return ok
	}, time.Second, time.Millisecond)

	conn.deliver(t, "bench.control", "inbox.1", []byte(`{"op":"set_frequency","value":660}`))
	conn.deliver(t, "bench.control", "inbox.2", []byte(`{not json`))
	conn.deliver(t, "bench.control", "inbox.3", []byte(`{"op":"status"}`))
	conn.deliver(t, "bench.control", "", []byte(`{"op":"tap"}`))

	var reply Reply
	require.Len(t, conn.messages("inbox.1"), 1)
	require.NoError(t, json.Unmarshal(conn.messages("inbox.1")[0], &reply))
	assert.Equal(t, OpSetFrequency, reply.Op)
	assert.Equal(t, int(audiocore.ResultOK), reply.Result)

	reply = Reply{}
	require.Len(t, conn.messages("inbox.2"), 1)
	require.NoError(t, json.Unmarshal(conn.messages("inbox.2")[0], &reply))
	assert.Equal(t, int(audiocore.ResultErrorIllegalArgument), reply.Result)

	reply = Reply{}
	require.Len(t, conn.messages("inbox.3"), 1)
	require.NoError(t, json.Unmarshal(conn.messages("inbox.3")[0], &reply))
	require.NotNil(t, reply.Status)
	assert.Equal(t, int64(42), reply.Status.Callbacks)

	assert.Contains(t, eng.calls, "tap")

	require.Eventually(t, func() bool {
		return len(conn.messages("bench.status")) >= 2
	}, time.Second, time.Millisecond)

	var status StatusMessage
	require.NoError(t, json.Unmarshal(conn.messages("bench.status")[0], &status))
	assert.Equal(t, "test-output", status.Activity)
	assert.Equal(t, int64(42), status.Callbacks)
	require.Len(t, status.Streams, 1)
	assert.Equal(t, int64(2), status.Streams[0].XRuns)
	assert.Equal(t, []float32{0.5}, status.Peaks)
	assert.False(t, status.Time.IsZero())

	cancel()
	require.NoError(t, <-done)
}

func TestRunFailsWhenSubscribeFails(t *testing.T) {
	t.Parallel()

	conn := newFakeConn()
	conn.subErr = nats.ErrConnectionClosed
	c := newTestController(conn, newFakeEngine())

	err := c.Run(t.Context())
	require.Error(t, err)
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
	assert.True(t, errors.IsCategory(err, errors.CategoryNetwork))
}
