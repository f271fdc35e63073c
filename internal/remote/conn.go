package remote

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tphakala/audiostream/internal/errors"
	"github.com/tphakala/audiostream/internal/logger"
)

// Connection attempts made by Dial before giving up.
const (
	dialAttempts  = 5
	dialRetryWait = 2 * time.Second
)

// Conn is the subset of a NATS connection the controller uses.
type Conn interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Publish(subject string, data []byte) error
	Close()
}

// connAdapter adapts *nats.Conn to Conn.
type connAdapter struct {
	conn *nats.Conn
}

func (a *connAdapter) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	return a.conn.Subscribe(subject, cb)
}

func (a *connAdapter) Publish(subject string, data []byte) error {
	return a.conn.Publish(subject, data)
}

func (a *connAdapter) Close() {
	a.conn.Close()
}

// Dial connects to the NATS server at url, retrying a few times while ctx
// allows. The connection reconnects on its own once established.
func Dial(ctx context.Context, url string) (Conn, error) {
	log := GetLogger()
	opts := []nats.Option{
		nats.Name("audiostream"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(dialRetryWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", logger.String("url", nc.ConnectedUrl()))
		}),
	}

	var lastErr error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		nc, err := nats.Connect(url, opts...)
		if err == nil {
			log.Info("connected to nats", logger.String("url", url))
			return &connAdapter{conn: nc}, nil
		}
		lastErr = err
		log.Warn("nats connect failed",
			logger.Int("attempt", attempt),
			logger.Int("max_attempts", dialAttempts),
			logger.Error(err))
		if attempt == dialAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.New(ctx.Err()).
				Component("remote").
				Category(errors.CategoryCancellation).
				Build()
		case <-time.After(dialRetryWait):
		}
	}

	return nil, errors.New(lastErr).
		Component("remote").
		Category(errors.CategoryNetwork).
		Context("url", url).
		Context("attempts", dialAttempts).
		Build()
}
