package status

import (
	"sort"
	"sync"
	"time"

	"github.com/nantokaworks/printer-fleet/internal/shared/logger"
	"go.uber.org/zap"
)

// PrinterStatus is the last poll result for one printer.
type PrinterStatus struct {
	Name      string    `json:"name"`
	IP        string    `json:"ip"`
	Reachable bool      `json:"reachable"`
	LastSeen  time.Time `json:"last_seen,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Summary counts reachable printers.
type Summary struct {
	Total     int `json:"total"`
	Reachable int `json:"reachable"`
}

// Tracker remembers whether each printer answered its last poll and
// logs when that changes.
type Tracker struct {
	mu       sync.RWMutex
	printers map[string]PrinterStatus
	log      *zap.Logger
}

func NewTracker() *Tracker {
	return &Tracker{
		printers: make(map[string]PrinterStatus),
		log:      logger.Named("status"),
	}
}

// Observe records one poll result and reports whether reachability
// changed. The first observation of a printer counts as a change only
// when it is unreachable.
func (t *Tracker) Observe(name, ip string, reachable bool, at time.Time) bool {
	t.mu.Lock()
	previous, known := t.printers[name]
	current := PrinterStatus{
		Name:      name,
		IP:        ip,
		Reachable: reachable,
		LastSeen:  previous.LastSeen,
		CheckedAt: at,
	}
	if reachable {
		current.LastSeen = at
	}
	t.printers[name] = current
	t.mu.Unlock()

	changed := (known && previous.Reachable != reachable) || (!known && !reachable)
	if !changed {
		return false
	}
	// 状態が変わったときだけログに残す
	if reachable {
		t.log.Info("Printer reachable", zap.String("name", name), zap.String("ip", ip))
	} else {
		t.log.Warn("Printer unreachable", zap.String("name", name), zap.String("ip", ip))
	}
	return true
}

// Forget drops printers that are no longer registered.
func (t *Tracker) Forget(name string) {
	t.mu.Lock()
	delete(t.printers, name)
	t.mu.Unlock()
}

// Retain forgets every printer not in names.
func (t *Tracker) Retain(names []string) {
	keep := make(map[string]struct{}, len(names))
	for _, n := range names {
		keep[n] = struct{}{}
	}
	t.mu.Lock()
	for name := range t.printers {
		if _, ok := keep[name]; !ok {
			delete(t.printers, name)
		}
	}
	t.mu.Unlock()
}

// Get returns the last status for name.
func (t *Tracker) Get(name string) (PrinterStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.printers[name]
	return s, ok
}

// All returns every tracked printer ordered by name.
func (t *Tracker) All() []PrinterStatus {
	t.mu.RLock()
	out := make([]PrinterStatus, 0, len(t.printers))
	for _, s := range t.printers {
		out = append(out, s)
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (t *Tracker) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s := Summary{Total: len(t.printers)}
	for _, p := range t.printers {
		if p.Reachable {
			s.Reachable++
		}
	}
	return s
}
