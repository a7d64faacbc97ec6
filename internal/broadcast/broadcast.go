package broadcast

import (
	"github.com/nantokaworks/printer-fleet/internal/protocol"
)

// SnapshotBroadcaster is an interface for pushing fleet snapshots to
// connected clients
type SnapshotBroadcaster interface {
	BroadcastSnapshot(snapshot protocol.FleetSnapshot)
}

// Global broadcaster instance
var globalBroadcaster SnapshotBroadcaster

// SetBroadcaster sets the global broadcaster instance
func SetBroadcaster(b SnapshotBroadcaster) {
	globalBroadcaster = b
}

// BroadcastSnapshot broadcasts a snapshot using the global broadcaster
func BroadcastSnapshot(snapshot protocol.FleetSnapshot) {
	if globalBroadcaster != nil {
		globalBroadcaster.BroadcastSnapshot(snapshot)
	}
}
