package observability

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/tphakala/audiostream/internal/conf"
	"github.com/tphakala/audiostream/internal/errors"
	"github.com/tphakala/audiostream/internal/logger"
	metricspkg "github.com/tphakala/audiostream/internal/observability/metrics"
)

const readHeaderTimeout = 5 * time.Second

// Endpoint serves the Prometheus-compatible metrics endpoint.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
}

// NewEndpoint creates an endpoint for metrics on the configured address.
// It returns an error if metrics are not enabled in the settings.
func NewEndpoint(settings *conf.MetricsSettings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Enabled {
		return nil, errors.Newf("metrics not enabled in settings").
			Component("observability").
			Category(errors.CategoryConfiguration).
			Build()
	}

	mux := http.NewServeMux()
	metrics.RegisterHandlers(mux)

	return &Endpoint{
		server: &http.Server{
			Addr:              settings.Listen,
			Handler:           mux,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		listenAddress: settings.Listen,
		metrics:       metrics,
	}, nil
}

// Run listens on the configured address and serves until ctx is done.
func (e *Endpoint) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", e.listenAddress)
	if err != nil {
		return errors.New(err).
			Component("observability").
			Category(errors.CategoryNetwork).
			Context("address", e.listenAddress).
			Build()
	}
	return e.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts the server down
// gracefully. It returns nil after a clean shutdown.
func (e *Endpoint) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		GetLogger().Info("telemetry endpoint starting", logger.String("address", ln.Addr().String()))
		errCh <- e.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		GetLogger().Error("telemetry HTTP server error", logger.Error(err))
		return errors.New(err).
			Component("observability").
			Category(errors.CategoryNetwork).
			Build()
	case <-ctx.Done():
	}

	e.gracefulShutdown()
	<-errCh
	return nil
}

// gracefulShutdown shuts the server down within metricspkg.ShutdownTimeout.
func (e *Endpoint) gracefulShutdown() {
	GetLogger().Info("stopping telemetry server")
	ctx, cancel := context.WithTimeout(context.Background(), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(ctx); err != nil {
		GetLogger().Error("telemetry server shutdown error", logger.Error(err))
	}
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
