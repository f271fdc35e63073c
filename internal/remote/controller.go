// Package remote exposes the engine over NATS: control commands arrive on
// <prefix>.control and status snapshots are published to <prefix>.status.
package remote

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tphakala/audiostream/internal/audiocore"
	"github.com/tphakala/audiostream/internal/conf"
	"github.com/tphakala/audiostream/internal/engine"
	"github.com/tphakala/audiostream/internal/errors"
	"github.com/tphakala/audiostream/internal/logger"
)

// Subject suffixes appended to the configured prefix.
const (
	ControlSubject = "control"
	StatusSubject  = "status"
)

// Control operations.
const (
	OpStart        = "start"
	OpStop         = "stop"
	OpPause        = "pause"
	OpSetAmplitude = "set_amplitude"
	OpSetFrequency = "set_frequency"
	OpSetChannel   = "set_channel"
	OpTone         = "tone"
	OpTap          = "tap"
	OpStatus       = "status"
)

// Engine is the part of the engine the controller drives.
type Engine interface {
	Start() error
	Stop() error
	Pause() error
	SetAmplitude(amplitude float32)
	SetFrequency(hz float64) error
	SetChannelEnabled(channel int, enabled bool) error
	SetToneEnabled(enabled bool)
	Tap() error
	Status() engine.Status
}

// Command is a control message.
type Command struct {
	Op      string  `json:"op"`
	Value   float64 `json:"value,omitempty"`   // amplitude or frequency
	Channel int     `json:"channel,omitempty"` // set_channel
	Enabled *bool   `json:"enabled,omitempty"` // set_channel and tone, default true
}

// Reply answers a control message.
type Reply struct {
	Op         string         `json:"op"`
	Result     int            `json:"result"`
	ResultName string         `json:"result_name"`
	Error      string         `json:"error,omitempty"`
	Status     *engine.Status `json:"status,omitempty"`
}

// StatusMessage is published on the status subject.
type StatusMessage struct {
	Time time.Time `json:"time"`
	engine.Status
}

// Controller applies control commands to an engine and publishes its status.
type Controller struct {
	conn     Conn
	engine   Engine
	prefix   string
	interval time.Duration
	log      logger.Logger
}

// New creates a controller for eng on conn.
func New(conn Conn, eng Engine, settings *conf.RemoteSettings) *Controller {
	interval := settings.StatusInterval
	if interval <= 0 {
		interval = conf.DefaultStatusInterval
	}
	return &Controller{
		conn:     conn,
		engine:   eng,
		prefix:   settings.Prefix,
		interval: interval,
		log:      GetLogger().With(logger.String("prefix", settings.Prefix)),
	}
}

// Subject returns prefix.suffix.
func (c *Controller) Subject(suffix string) string {
	return c.prefix + "." + suffix
}

// Run subscribes to the control subject and publishes status every
// interval until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	sub, err := c.conn.Subscribe(c.Subject(ControlSubject), c.handleControl)
	if err != nil {
		return errors.New(err).
			Component("remote").
			Category(errors.CategoryNetwork).
			Context("subject", c.Subject(ControlSubject)).
			Build()
	}
	defer func() {
		if sub == nil {
			return
		}
		if err := sub.Unsubscribe(); err != nil {
			c.log.Debug("unsubscribe failed", logger.Error(err))
		}
	}()
	c.log.Info("remote control listening", logger.String("subject", c.Subject(ControlSubject)))

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.publishStatus()
		}
	}
}

func (c *Controller) publishStatus() {
	data, err := json.Marshal(StatusMessage{Time: time.Now(), Status: c.engine.Status()})
	if err != nil {
		c.log.Error("encode status failed", logger.Error(err))
		return
	}
	if err := c.conn.Publish(c.Subject(StatusSubject), data); err != nil {
		c.log.Warn("publish status failed", logger.Error(err))
	}
}

func (c *Controller) handleControl(msg *nats.Msg) {
	var reply Reply
	var cmd Command
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		reply = Reply{
			Result:     int(audiocore.ResultErrorIllegalArgument),
			ResultName: audiocore.ResultErrorIllegalArgument.String(),
			Error:      err.Error(),
		}
	} else {
		reply = c.Apply(cmd)
	}

	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		c.log.Error("encode reply failed", logger.Error(err))
		return
	}
	if err := c.conn.Publish(msg.Reply, data); err != nil {
		c.log.Warn("publish reply failed", logger.Error(err))
	}
}

// Apply runs one command and reports its result code.
func (c *Controller) Apply(cmd Command) Reply {
	err := c.apply(cmd)
	result := audiocore.ResultOf(err)
	reply := Reply{Op: cmd.Op, Result: int(result), ResultName: result.String()}
	if err != nil {
		reply.Error = err.Error()
		c.log.Warn("control command failed", logger.String("op", cmd.Op), logger.Error(err))
	} else {
		c.log.Debug("control command applied", logger.String("op", cmd.Op))
	}
	if cmd.Op == OpStatus && err == nil {
		status := c.engine.Status()
		reply.Status = &status
	}
	return reply
}

func (c *Controller) apply(cmd Command) error {
	enabled := cmd.Enabled == nil || *cmd.Enabled
	switch cmd.Op {
	case OpStart:
		return c.engine.Start()
	case OpStop:
		return c.engine.Stop()
	case OpPause:
		return c.engine.Pause()
	case OpSetAmplitude:
		if cmd.Value < 0 || cmd.Value > 1 {
			return errors.New(audiocore.ErrOutOfRange).
				Component("remote").
				Context("amplitude", cmd.Value).
				Build()
		}
		c.engine.SetAmplitude(float32(cmd.Value))
		return nil
	case OpSetFrequency:
		return c.engine.SetFrequency(cmd.Value)
	case OpSetChannel:
		return c.engine.SetChannelEnabled(cmd.Channel, enabled)
	case OpTone:
		c.engine.SetToneEnabled(enabled)
		return nil
	case OpTap:
		return c.engine.Tap()
	case OpStatus:
		return nil
	default:
		return errors.New(audiocore.ErrUnimplemented).
			Component("remote").
			Context("op", cmd.Op).
			Build()
	}
}
