package channel

import (
	"sync"

	"github.com/nantokaworks/printer-fleet/internal/protocol"
)

var (
	registryMu sync.Mutex
	registry   = map[string]*Manager{}
)

// Connect returns the process-wide Manager for url, creating it on the
// first call. Later calls return the same Manager and ignore opts, so
// every consumer shares one logical channel and one socket.
//
// Connect does not dial; the first Subscribe does.
func Connect(url string, opts ...Option) *Manager {
	registryMu.Lock()
	defer registryMu.Unlock()

	if m, ok := registry[url]; ok {
		return m
	}
	m := New(url, opts...)
	registry[url] = m
	return m
}

// ConnectOrigin derives the /ws endpoint from a dashboard origin and
// returns its shared Manager.
func ConnectOrigin(origin string, opts ...Option) (*Manager, error) {
	url, err := protocol.EndpointURL(origin)
	if err != nil {
		return nil, err
	}
	return Connect(url, opts...), nil
}
