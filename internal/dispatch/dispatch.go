// Package dispatch turns operator intent into protocol commands. It only
// validates the shape of each command; the backend decides the outcome
// and the next snapshot reports it.
package dispatch

import (
	"github.com/nantokaworks/printer-fleet/internal/protocol"
	"github.com/nantokaworks/printer-fleet/internal/shared/logger"
	"go.uber.org/zap"
)

// Sender is the outbound side of the channel.
type Sender interface {
	Send(cmd protocol.Command) error
}

// Dispatcher validates commands and hands them to a Sender. It never
// touches fleet state.
type Dispatcher struct {
	sender Sender
	log    *zap.Logger
}

// New returns a Dispatcher over sender. A nil log falls back to the
// shared logger.
func New(sender Sender, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = logger.Named("dispatch")
	}
	return &Dispatcher{sender: sender, log: log}
}

func (d *Dispatcher) Add(name, ip string) error {
	return d.Dispatch(protocol.AddCommand(name, ip))
}

func (d *Dispatcher) Remove(name string) error {
	return d.Dispatch(protocol.RemoveCommand(name))
}

func (d *Dispatcher) Pause(ip string) error {
	return d.Dispatch(protocol.PauseCommand(ip))
}

func (d *Dispatcher) Stop(ip string) error {
	return d.Dispatch(protocol.StopCommand(ip))
}

func (d *Dispatcher) Resume(ip string) error {
	return d.Dispatch(protocol.ResumeCommand(ip))
}

func (d *Dispatcher) Start(ip, file string) error {
	return d.Dispatch(protocol.StartCommand(ip, file))
}

// Dispatch validates cmd and sends it. Validation failures are returned
// and nothing is sent. Transport failures are logged and dropped:
// commands are fire-and-forget and never queued or retried.
func (d *Dispatcher) Dispatch(cmd protocol.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if err := d.sender.Send(cmd); err != nil {
		fields := []zap.Field{
			zap.String("action", string(cmd.Action)),
			zap.Error(err),
		}
		if cmd.IPAddress != "" {
			fields = append(fields, zap.String("ip", cmd.IPAddress))
		}
		d.log.Warn("Command not sent", fields...)
	}
	return nil
}
