// Package runner runs one engine activity together with the metrics
// endpoint and the remote control adapter.
package runner

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/audiocore/quirks"
	"github.com/tphakala/audiostream/internal/audiocore/stream"
	"github.com/tphakala/audiostream/internal/conf"
	"github.com/tphakala/audiostream/internal/engine"
	"github.com/tphakala/audiostream/internal/errors"
	"github.com/tphakala/audiostream/internal/logger"
	"github.com/tphakala/audiostream/internal/observability"
	"github.com/tphakala/audiostream/internal/remote"
)

// DefaultRecordDuration is how long record-play records when no duration
// is configured.
const DefaultRecordDuration = engine.RecordingSeconds * time.Second

// Dialer connects to the remote control server.
type Dialer func(ctx context.Context, url string) (remote.Conn, error)

// Runner wires settings, backends, metrics and the engine for one run.
type Runner struct {
	settings *conf.Settings
	activity engine.Activity
	request  audiocore.StreamConfig
	metrics  *observability.Metrics
	table    *stream.Table
	engine   *engine.Engine
	dial     Dialer
	log      logger.Logger
}

// New creates a runner for the activity named in settings.
func New(settings *conf.Settings, backends *Backends) (*Runner, error) {
	activity, err := engine.ParseActivity(settings.Engine.Activity)
	if err != nil {
		return nil, runError(err, "parse_activity").Category(errors.CategoryValidation).Build()
	}
	toneType, err := engine.ParseToneType(settings.Engine.ToneType)
	if err != nil {
		return nil, runError(err, "parse_tone").Category(errors.CategoryValidation).Build()
	}
	request, err := settings.Stream.StreamConfig()
	if err != nil {
		return nil, err
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}

	opener := stream.NewOpener(settings.Platform.Quirks(), backends.Drivers(),
		stream.WithObserver(metrics.Stream))
	table := stream.NewTable(opener)
	eng := engine.New(table, engine.Options{
		Activity:     activity,
		ToneType:     toneType,
		UseCallback:  settings.Engine.UseCallback,
		CallbackSize: settings.Engine.CallbackSize,
		Amplitude:    float32(settings.Engine.Amplitude),
		Frequency:    settings.Engine.Frequency,
		EchoDelay:    settings.Engine.EchoDelay,
		Recorder:     metrics.Stream,
	})

	return &Runner{
		settings: settings,
		activity: activity,
		request:  request,
		metrics:  metrics,
		table:    table,
		engine:   eng,
		dial:     remote.Dial,
		log:      GetLogger().With(logger.String("activity", activity.String())),
	}, nil
}

func runError(err error, op string) *errors.ErrorBuilder {
	return errors.New(err).Component("runner").Context("operation", op)
}

// Engine returns the engine the runner drives.
func (r *Runner) Engine() *engine.Engine { return r.engine }

// Metrics returns the metrics the run records to.
func (r *Runner) Metrics() *observability.Metrics { return r.metrics }

// SetDialer replaces the remote control dialer.
func (r *Runner) SetDialer(d Dialer) { r.dial = d }

// Run opens the streams the activity needs, starts it and serves until ctx
// is done or the configured duration elapses. Record-play records for the
// duration, then plays the recording back once. The returned status is
// the engine state just before the streams were closed.
func (r *Runner) Run(ctx context.Context) (engine.Status, error) {
	removeHook := errors.AddErrorHook(r.metrics.Stream.RecordError)
	defer removeHook()

	var endpoint *observability.Endpoint
	if r.settings.Metrics.Enabled {
		var err error
		if endpoint, err = observability.NewEndpoint(&r.settings.Metrics, r.metrics); err != nil {
			return engine.Status{}, err
		}
	}

	if err := r.openStreams(); err != nil {
		_ = r.engine.CloseAll()
		return engine.Status{}, err
	}
	defer func() {
		if err := r.engine.CloseAll(); err != nil {
			r.log.Warn("close streams failed", logger.Error(err))
		}
	}()

	if r.settings.Engine.ReturnStop {
		r.engine.SetCallbackReturnStop(true)
	}
	if err := r.engine.Start(); err != nil {
		return r.engine.Status(), err
	}

	runCtx, cancel := r.runContext(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return r.engine.Run(gctx) })

	if endpoint != nil {
		g.Go(func() error { return endpoint.Run(gctx) })
	}

	if r.settings.Remote.Enabled {
		conn, err := r.dial(gctx, r.settings.Remote.URL)
		if err != nil {
			cancel()
			_ = g.Wait()
			return r.engine.Status(), err
		}
		defer conn.Close()
		controller := remote.New(conn, r.engine, &r.settings.Remote)
		g.Go(func() error { return controller.Run(gctx) })
	}

	if r.activity == engine.ActivityRecordPlay {
		g.Go(func() error {
			defer cancel()
			return r.recordThenPlay(gctx)
		})
	}

	err := g.Wait()
	status := r.engine.Status()
	if stopErr := r.engine.Stop(); stopErr != nil {
		r.log.Debug("stop after run failed", logger.Error(stopErr))
	}
	r.log.Info("activity finished",
		logger.Int64("callbacks", status.Callbacks),
		logger.Int("streams", len(status.Streams)))
	return status, err
}

// runContext bounds the run by the configured duration. Record-play
// manages its own phases instead.
func (r *Runner) runContext(ctx context.Context) (context.Context, context.CancelFunc) {
	d := r.settings.Engine.Duration
	if d <= 0 || r.activity == engine.ActivityRecordPlay {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// openStreams opens the input, the output, or both.
func (r *Runner) openStreams() error {
	needInput := r.activity.IsInput() || r.activity.IsFullDuplex()
	needOutput := !r.activity.IsInput() || r.activity == engine.ActivityRecordPlay

	if needInput {
		cfg := r.request
		cfg.Direction = audiocore.DirectionInput
		if _, err := r.engine.Open(cfg); err != nil {
			return err
		}
	}
	if needOutput {
		cfg := r.request
		cfg.Direction = audiocore.DirectionOutput
		if _, err := r.engine.Open(cfg); err != nil {
			return err
		}
	}
	return nil
}

// recordThenPlay records until the duration elapses, then plays the
// recording and returns once it was played completely.
func (r *Runner) recordThenPlay(ctx context.Context) error {
	d := r.settings.Engine.Duration
	if d <= 0 || d > DefaultRecordDuration {
		d = DefaultRecordDuration
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
	}

	if err := r.engine.StartPlayback(); err != nil {
		return err
	}

	ticker := time.NewTicker(engine.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if r.engine.PlaybackDone() {
				r.log.Info("playback complete")
				return nil
			}
		}
	}
}

// Decide returns the quirks decision for the configured stream request.
func (r *Runner) Decide() quirks.Decision {
	return r.table.Opener().Decide(r.request)
}

// Request returns the configured stream request.
func (r *Runner) Request() audiocore.StreamConfig { return r.request }
