package dashboard

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/nantokaworks/printer-fleet/internal/channel"
	"github.com/nantokaworks/printer-fleet/internal/dispatch"
	"github.com/nantokaworks/printer-fleet/internal/fleet"
	"github.com/nantokaworks/printer-fleet/internal/protocol"
)

// Run drives the dashboard off manager until the operator quits. The
// store and the state observer hand everything to the program with
// Send, so the model is only ever touched from the bubbletea loop.
func Run(manager *channel.Manager, opts ...Option) error {
	store := fleet.NewStore()
	opts = append([]Option{WithChannelState(manager.State())}, opts...)
	model := New(dispatch.New(manager, nil), opts...)

	program := tea.NewProgram(model, tea.WithAltScreen())

	unwatch := manager.OnStateChange(func(s channel.State) {
		program.Send(ChannelStateMsg{State: s})
	})
	defer unwatch()
	unsubscribe := store.Subscribe(func(s protocol.FleetSnapshot) {
		program.Send(SnapshotMsg{Snapshot: s, At: model.clock.Now()})
	})
	defer unsubscribe()
	// Subscribing to the manager starts its connect loop.
	detach := store.Attach(manager)
	defer detach()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}
