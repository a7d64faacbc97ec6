// Package monitor polls every registered printer, assembles the fleet
// snapshot and applies operator commands.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nantokaworks/printer-fleet/internal/broadcast"
	"github.com/nantokaworks/printer-fleet/internal/clock"
	"github.com/nantokaworks/printer-fleet/internal/printer"
	"github.com/nantokaworks/printer-fleet/internal/protocol"
	"github.com/nantokaworks/printer-fleet/internal/registry"
	"github.com/nantokaworks/printer-fleet/internal/shared/logger"
	"github.com/nantokaworks/printer-fleet/internal/status"
	"go.uber.org/zap"
)

const DefaultInterval = 10 * time.Second

// Registry is the printer list the monitor polls.
type Registry interface {
	List(ctx context.Context) ([]registry.Printer, error)
	Add(ctx context.Context, name, ip string) error
	Remove(ctx context.Context, name string) error
}

// Printers reaches the printers themselves.
type Printers interface {
	Status(ctx context.Context, ip string) (printer.State, error)
	ListFiles(ctx context.Context, ip string) ([]string, error)
	Action(ctx context.Context, ip string, action protocol.Action, file string) (string, error)
}

// Monitor owns the authoritative snapshot.
type Monitor struct {
	registry  Registry
	printers  Printers
	clock     clock.Clock
	interval  time.Duration
	tracker   *status.Tracker
	broadcast func(protocol.FleetSnapshot)
	log       *zap.Logger

	// refreshMu serialises polls so snapshots go out in the order they
	// were built.
	refreshMu sync.Mutex

	mu        sync.RWMutex
	last      protocol.FleetSnapshot
	refreshed time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

func WithClock(c clock.Clock) Option {
	return func(m *Monitor) { m.clock = c }
}

// WithInterval sets the poll period.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithTracker shares a reachability tracker, e.g. with the status
// endpoint.
func WithTracker(t *status.Tracker) Option {
	return func(m *Monitor) { m.tracker = t }
}

// WithBroadcast replaces the global broadcaster.
func WithBroadcast(fn func(protocol.FleetSnapshot)) Option {
	return func(m *Monitor) { m.broadcast = fn }
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

func New(reg Registry, printers Printers, opts ...Option) *Monitor {
	m := &Monitor{
		registry:  reg,
		printers:  printers,
		clock:     clock.Real(),
		interval:  DefaultInterval,
		broadcast: broadcast.BroadcastSnapshot,
		last:      protocol.FleetSnapshot{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tracker == nil {
		m.tracker = status.NewTracker()
	}
	if m.log == nil {
		m.log = logger.Named("monitor")
	}
	return m
}

// Tracker returns the reachability tracker.
func (m *Monitor) Tracker() *status.Tracker { return m.tracker }

// Last returns the most recently built snapshot.
func (m *Monitor) Last() protocol.FleetSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last.Clone()
}

// RefreshedAt returns when Last was built.
func (m *Monitor) RefreshedAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.refreshed
}

// Run polls immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.log.Info("Starting printer poll loop", zap.Duration("interval", m.interval))
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		if _, err := m.Refresh(ctx); err != nil && ctx.Err() == nil {
			m.log.Error("Failed to refresh printers", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			m.log.Info("Printer poll loop stopped")
			return
		case <-ticker.C:
		}
	}
}

// Refresh polls every registered printer, stores the snapshot and
// broadcasts it. Printers are queried concurrently; the snapshot keeps
// registry order.
func (m *Monitor) Refresh(ctx context.Context) (protocol.FleetSnapshot, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	printers, err := m.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing registered printers: %w", err)
	}

	snapshot := make(protocol.FleetSnapshot, len(printers))
	var wg sync.WaitGroup
	for i, p := range printers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snapshot[i] = m.poll(ctx, p)
		}()
	}
	wg.Wait()

	names := make([]string, len(printers))
	for i, p := range printers {
		names[i] = p.Name
	}
	m.tracker.Retain(names)

	m.mu.Lock()
	m.last = snapshot
	m.refreshed = m.clock.Now()
	m.mu.Unlock()

	m.log.Debug("Fleet refreshed", zap.Int("printers", len(snapshot)))
	m.broadcast(snapshot.Clone())
	return snapshot.Clone(), nil
}

func (m *Monitor) poll(ctx context.Context, p registry.Printer) protocol.PrinterState {
	m.log.Debug("Retrieving printer status", zap.String("name", p.Name), zap.String("ip", p.IP))
	state, err := m.printers.Status(ctx, p.IP)
	m.tracker.Observe(p.Name, p.IP, err == nil, m.clock.Now())

	files := []string{}
	if err == nil {
		if listed, listErr := m.printers.ListFiles(ctx, p.IP); listErr == nil {
			files = listed
		} else {
			m.log.Warn("Failed to list printer files",
				zap.String("name", p.Name), zap.String("ip", p.IP), zap.Error(listErr))
		}
	}
	return protocol.PrinterState{
		PrinterName:    p.Name,
		IPAddress:      p.IP,
		FilesAvailable: files,
		Progress:       printer.ProgressFrom(state, err),
	}
}

// Execute applies one command: add and remove edit the registry, the
// control verbs go to the printer. A successful command is followed by a
// refresh so every client sees its effect.
func (m *Monitor) Execute(ctx context.Context, cmd protocol.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	var err error
	switch cmd.Action {
	case protocol.ActionAdd:
		err = m.registry.Add(ctx, cmd.Name, cmd.IPAddress)
	case protocol.ActionRemove:
		err = m.registry.Remove(ctx, cmd.Name)
		if err == nil {
			m.tracker.Forget(cmd.Name)
		}
	default:
		var reply string
		reply, err = m.printers.Action(ctx, cmd.IPAddress, cmd.Action, cmd.File)
		if err == nil {
			m.log.Info("Printer replied", zap.String("ip", cmd.IPAddress), zap.String("reply", reply))
		}
	}
	if err != nil {
		return fmt.Errorf("%s: %w", cmd.Action, err)
	}

	if _, err := m.Refresh(ctx); err != nil {
		m.log.Error("Failed to refresh after command", zap.String("action", string(cmd.Action)), zap.Error(err))
	}
	return nil
}

// HandleMessage decodes and executes one inbound channel frame. Failures
// are logged; nothing is sent back to the client, whose next snapshot
// shows the result.
func (m *Monitor) HandleMessage(ctx context.Context, data []byte) {
	cmd, err := protocol.ParseCommand(data)
	if err != nil {
		level := m.log.Warn
		if errors.Is(err, protocol.ErrUnknownAction) {
			level = m.log.Info
		}
		level("Ignoring websocket message", zap.ByteString("message", data), zap.Error(err))
		return
	}
	m.log.Info("Command received",
		zap.String("action", string(cmd.Action)),
		zap.String("name", cmd.Name),
		zap.String("ip", cmd.IPAddress))
	if err := m.Execute(ctx, cmd); err != nil {
		m.log.Warn("Command failed", zap.String("action", string(cmd.Action)), zap.Error(err))
	}
}
