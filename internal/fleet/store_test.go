package fleet

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/nantokaworks/printer-fleet/internal/protocol"
)

const twoPrinters = `[
	{"printer_name":"alpha","ip_address":"192.168.1.10","files_available":["a","b","c"],"progress":50},
	{"printer_name":"beta","ip_address":"192.168.1.11","files_available":[],"progress":"idle"}
]`

func TestApplyReplacesState(t *testing.T) {
	store := NewStore()

	snapshot, ok := store.Apply([]byte(twoPrinters))
	if !ok {
		t.Fatal("Apply rejected a valid snapshot")
	}
	if len(snapshot) != 2 || store.Len() != 2 {
		t.Fatalf("applied %d printers, store has %d; want 2", len(snapshot), store.Len())
	}

	// beta disappears, gamma appears: replace, never merge.
	if _, ok := store.Apply([]byte(`[{"printer_name":"alpha","progress":75},{"printer_name":"gamma"}]`)); !ok {
		t.Fatal("second Apply rejected")
	}
	if got, want := store.Snapshot().Names(), []string{"alpha", "gamma"}; !reflect.DeepEqual(got, want) {
		t.Errorf("names after replace = %v, want %v", got, want)
	}
	if _, ok := store.Lookup("beta"); ok {
		t.Error("beta survived a snapshot that omitted it")
	}
	alpha, ok := store.Lookup("alpha")
	if !ok {
		t.Fatal("alpha missing")
	}
	if v, _ := alpha.Progress.Percent(); v != 75 {
		t.Errorf("alpha progress = %v, want 75", alpha.Progress)
	}
	if alpha.IPAddress != "" || alpha.FilesAvailable != nil {
		t.Errorf("alpha kept fields from the previous snapshot: %+v", alpha)
	}
	if store.Version() != 2 {
		t.Errorf("Version() = %d, want 2", store.Version())
	}
}

func TestApplyIgnoresNonSnapshots(t *testing.T) {
	store := NewStore()
	store.Apply([]byte(twoPrinters))
	before := store.Snapshot()

	for _, raw := range []string{`null`, `{"type":"heartbeat"}`, `"pong"`, `7`, `[1]`} {
		if _, ok := store.Apply([]byte(raw)); ok {
			t.Errorf("Apply(%s) accepted a non-snapshot", raw)
		}
	}
	if !reflect.DeepEqual(store.Snapshot(), before) {
		t.Error("rejected messages changed the state")
	}
	if store.Version() != 1 {
		t.Errorf("Version() = %d, want 1", store.Version())
	}
	if store.Rejected() != 5 {
		t.Errorf("Rejected() = %d, want 5", store.Rejected())
	}
}

func TestEmptySnapshotClearsFleet(t *testing.T) {
	store := NewStore()
	store.Apply([]byte(twoPrinters))
	if _, ok := store.Apply([]byte(`[]`)); !ok {
		t.Fatal("empty snapshot rejected")
	}
	if store.Len() != 0 {
		t.Errorf("Len() = %d after empty snapshot, want 0", store.Len())
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	store := NewStore()
	store.Apply([]byte(twoPrinters))

	copied := store.Snapshot()
	copied[0].FilesAvailable[0] = "mutated"
	copied[0].PrinterName = "mutated"

	alpha, _ := store.Lookup("alpha")
	if alpha.FilesAvailable[0] != "a" {
		t.Error("mutating a returned snapshot changed the store")
	}
}

func TestObserversSeeEveryAppliedSnapshotInOrder(t *testing.T) {
	store := NewStore()
	var seen [][]string
	unsubscribe := store.Subscribe(func(s protocol.FleetSnapshot) {
		seen = append(seen, s.Names())
	})

	store.Apply([]byte(`[{"printer_name":"one"}]`))
	store.Apply([]byte(`{"not":"a snapshot"}`))
	store.Apply([]byte(`[{"printer_name":"two"},{"printer_name":"three"}]`))
	unsubscribe()
	store.Apply([]byte(`[]`))

	want := [][]string{{"one"}, {"two", "three"}}
	if !reflect.DeepEqual(seen, want) {
		t.Errorf("observer saw %v, want %v", seen, want)
	}
}

func TestObserversRunInRegistrationOrder(t *testing.T) {
	store := NewStore()
	var order []int
	for i := 0; i < 5; i++ {
		store.Subscribe(func(protocol.FleetSnapshot) { order = append(order, i) })
	}
	removed := store.Subscribe(func(protocol.FleetSnapshot) { order = append(order, 99) })
	removed()

	for round := 0; round < 3; round++ {
		order = nil
		store.Apply([]byte(`[{"printer_name":"one"}]`))
		if want := []int{0, 1, 2, 3, 4}; !reflect.DeepEqual(order, want) {
			t.Fatalf("round %d: observers ran as %v, want %v", round, order, want)
		}
	}
}

func TestApplyKeepsEmptyFileList(t *testing.T) {
	store := NewStore()
	store.Apply([]byte(`[{"printer_name":"idle","files_available":[]}]`))
	state, ok := store.Lookup("idle")
	if !ok {
		t.Fatal("idle missing")
	}
	if state.FilesAvailable == nil || len(state.FilesAvailable) != 0 {
		t.Errorf("files = %#v, want empty slice", state.FilesAvailable)
	}
}

// fakeSource records the handler so tests can push messages into it.
type fakeSource struct {
	handler func(json.RawMessage)
}

func (f *fakeSource) Subscribe(handler func(json.RawMessage)) func() {
	f.handler = handler
	return func() { f.handler = nil }
}

func TestAttach(t *testing.T) {
	source := &fakeSource{}
	store := NewStore()
	detach := store.Attach(source)

	source.handler(json.RawMessage(`[{"printer_name":"attached"}]`))
	if _, ok := store.Lookup("attached"); !ok {
		t.Error("attached store did not apply the message")
	}

	detach()
	if source.handler != nil {
		t.Error("detach did not unsubscribe")
	}
}
