// Package fleet reduces inbound channel messages into the printer state
// the dashboard renders. Every accepted snapshot replaces the previous
// one wholesale.
package fleet

import (
	"encoding/json"
	"sync"

	"github.com/nantokaworks/printer-fleet/internal/protocol"
	"github.com/nantokaworks/printer-fleet/internal/shared/logger"
	"go.uber.org/zap"
)

// Source is the inbound side of the channel.
type Source interface {
	Subscribe(handler func(json.RawMessage)) (unsubscribe func())
}

// Store holds the most recently applied FleetSnapshot.
type Store struct {
	log *zap.Logger

	mu        sync.RWMutex
	snapshot  protocol.FleetSnapshot
	index     map[string]int
	version   uint64
	rejected  uint64
	nextID    uint64
	observers []observer
}

type observer struct {
	id uint64
	fn func(protocol.FleetSnapshot)
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{
		log:      logger.Named("fleet"),
		snapshot: protocol.FleetSnapshot{},
		index:    map[string]int{},
	}
}

// Apply decodes raw and, if it is a snapshot, replaces the current state
// with it. Any other shape is ignored and the current state is left
// untouched. Observers run after the replacement, outside the lock.
func (s *Store) Apply(raw []byte) (protocol.FleetSnapshot, bool) {
	snapshot, err := protocol.DecodeSnapshot(raw)
	if err != nil {
		s.mu.Lock()
		s.rejected++
		s.mu.Unlock()
		s.log.Debug("Ignoring non-snapshot message", zap.Error(err))
		return nil, false
	}
	s.Replace(snapshot)
	return snapshot.Clone(), true
}

// Replace installs snapshot as the whole fleet. Printers absent from it
// are gone; nothing is merged.
func (s *Store) Replace(snapshot protocol.FleetSnapshot) {
	owned := snapshot.Clone()
	if owned == nil {
		owned = protocol.FleetSnapshot{}
	}
	index := make(map[string]int, len(owned))
	for i, p := range owned {
		if _, dup := index[p.PrinterName]; !dup {
			index[p.PrinterName] = i
		}
	}

	s.mu.Lock()
	s.snapshot = owned
	s.index = index
	s.version++
	observers := make([]func(protocol.FleetSnapshot), 0, len(s.observers))
	for _, o := range s.observers {
		observers = append(observers, o.fn)
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(owned.Clone())
	}
}

// Snapshot returns a copy of the current fleet.
func (s *Store) Snapshot() protocol.FleetSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot.Clone()
}

// Lookup returns the printer with the given reconciliation key.
func (s *Store) Lookup(name string) (protocol.PrinterState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[name]
	if !ok {
		return protocol.PrinterState{}, false
	}
	return s.snapshot[i : i+1].Clone()[0], true
}

// Len returns the number of printers in the current snapshot.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snapshot)
}

// Version counts applied snapshots. It starts at zero.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Rejected counts messages that were not snapshots.
func (s *Store) Rejected() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rejected
}

// Subscribe registers fn to receive every applied snapshot. Observers
// run in registration order.
func (s *Store) Subscribe(fn func(protocol.FleetSnapshot)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.observers = append(s.observers, observer{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

// Attach feeds every message from source into the store.
func (s *Store) Attach(source Source) (detach func()) {
	return source.Subscribe(func(message json.RawMessage) {
		s.Apply(message)
	})
}
