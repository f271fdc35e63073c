// Package audiocore defines the shared vocabulary of the audio streaming engine:
// stream configuration, the stream state machine, the Stream contract seen by
// callers and the Driver contract implemented by native backends.
//
// # Layout
//
//   - flowgraph: typed ports and pull-scheduled nodes
//   - resampler: linear multi-channel sample rate conversion
//   - processors: oscillators, channel converters, format sinks and sources
//   - quirks: pure decision function choosing backend-facing conversions
//   - fifo: frame-granular ring buffer used by the buffered emulation layer
//   - stream: stream variants, the handle table and Open
//   - drivers: backend bindings (portaudio, malgo, simulated)
//
// # Threads
//
// Three roles touch a stream. The control goroutine opens, starts, stops and
// closes it. The backend's audio thread runs the data callback and the flow
// graph; it never blocks, allocates or logs. An optional blocking-I/O
// goroutine calls Read or Write. A stream is either in callback mode or in
// blocking mode for its whole lifetime.
//
// Audio crosses the Stream API as interleaved little-endian PCM bytes in the
// stream's negotiated format.
package audiocore
