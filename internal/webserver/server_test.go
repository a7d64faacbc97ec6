package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nantokaworks/printer-fleet/internal/protocol"
	"github.com/nantokaworks/printer-fleet/internal/shared/logger"
	"github.com/nantokaworks/printer-fleet/internal/status"
	"github.com/nantokaworks/printer-fleet/internal/testutil"
)

const testTimeout = 5 * time.Second

type fakeFleet struct {
	mu         sync.Mutex
	snapshot   protocol.FleetSnapshot
	refreshErr error
	refreshes  int
	received   chan string
	tracker    *status.Tracker
}

func newFakeFleet() *fakeFleet {
	tracker := status.NewTracker()
	tracker.Observe("alpha", "192.168.1.10", true, time.Now())
	tracker.Observe("beta", "192.168.1.11", false, time.Now())
	return &fakeFleet{
		snapshot: protocol.FleetSnapshot{
			{PrinterName: "alpha", IPAddress: "192.168.1.10", FilesAvailable: []string{"a.gcode"}, Progress: protocol.Percent(40)},
			{PrinterName: "beta", IPAddress: "192.168.1.11", Progress: protocol.Status("offline")},
		},
		received: make(chan string, 8),
		tracker:  tracker,
	}
}

func (f *fakeFleet) Last() protocol.FleetSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot.Clone()
}

func (f *fakeFleet) RefreshedAt() time.Time { return time.Time{} }

func (f *fakeFleet) Refresh(context.Context) (protocol.FleetSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return f.snapshot.Clone(), nil
}

func (f *fakeFleet) HandleMessage(_ context.Context, data []byte) {
	f.received <- string(data)
}

func (f *fakeFleet) Tracker() *status.Tracker { return f.tracker }

func newTestServer(t *testing.T) (*Server, *fakeFleet, *httptest.Server) {
	t.Helper()
	fleet := newFakeFleet()
	s := NewServer(fleet, "")
	ctx, cancel := context.WithCancel(context.Background())
	go s.Hub().Run(ctx)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return s, fleet, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url, err := protocol.EndpointURL(ts.URL)
	if err != nil {
		t.Fatalf("EndpointURL: %v", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readSnapshot(t *testing.T, conn *websocket.Conn) protocol.FleetSnapshot {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(testTimeout))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	snapshot, err := protocol.DecodeSnapshot(data)
	if err != nil {
		t.Fatalf("DecodeSnapshot(%s): %v", data, err)
	}
	return snapshot
}

func TestChannelGreetsBroadcastsAndForwardsCommands(t *testing.T) {
	s, fleet, ts := newTestServer(t)
	conn := dial(t, ts)

	initial := readSnapshot(t, conn)
	if got := initial.Names(); len(got) != 2 || got[0] != "alpha" {
		t.Fatalf("initial snapshot names = %v", got)
	}

	command := `{"action":"pause","ip_address":"192.168.1.10"}`
	if err := conn.WriteMessage(websocket.TextMessage, []byte(command)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := testutil.RequireReceive(t, fleet.received, testTimeout, "waiting for command"); got != command {
		t.Errorf("fleet received %s, want %s", got, command)
	}

	testutil.Eventually(t, testTimeout, func() bool { return s.Hub().Count() == 1 }, "client not registered")
	s.Hub().BroadcastSnapshot(protocol.FleetSnapshot{{PrinterName: "gamma"}})
	pushed := readSnapshot(t, conn)
	if len(pushed) != 1 || pushed[0].PrinterName != "gamma" {
		t.Errorf("broadcast snapshot = %+v", pushed)
	}
	if pushed[0].FilesAvailable == nil {
		t.Error("files_available encoded as null")
	}
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	s, _, ts := newTestServer(t)
	first := dial(t, ts)
	second := dial(t, ts)
	readSnapshot(t, first)
	readSnapshot(t, second)
	testutil.Eventually(t, testTimeout, func() bool { return s.Hub().Count() == 2 }, "clients not registered")

	s.Hub().BroadcastSnapshot(protocol.FleetSnapshot{})
	for _, conn := range []*websocket.Conn{first, second} {
		if got := readSnapshot(t, conn); len(got) != 0 {
			t.Errorf("client received %v, want empty fleet", got)
		}
	}

	first.Close()
	testutil.Eventually(t, testTimeout, func() bool { return s.Hub().Count() == 1 }, "closed client not unregistered")
}

func TestPrintersEndpoint(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/printers")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	snapshot, err := protocol.DecodeSnapshot(body)
	if err != nil {
		t.Fatalf("body %s: %v", body, err)
	}
	if len(snapshot) != 2 || snapshot[1].Progress.Status() != "offline" {
		t.Errorf("snapshot = %+v", snapshot)
	}

	resp, err = http.Post(ts.URL+"/api/printers", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", resp.StatusCode)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	_, fleet, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/refresh", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	fleet.mu.Lock()
	fleet.refreshErr = errors.New("registry offline")
	fleet.mu.Unlock()
	resp, err = http.Post(ts.URL+"/api/refresh", "application/json", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status after failure = %d, want 500", resp.StatusCode)
	}

	fleet.mu.Lock()
	defer fleet.mu.Unlock()
	if fleet.refreshes != 2 {
		t.Errorf("refreshes = %d, want 2", fleet.refreshes)
	}
}

func TestStatusEndpoint(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var got StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Summary.Total != 2 || got.Summary.Reachable != 1 {
		t.Errorf("summary = %+v, want 1 of 2 reachable", got.Summary)
	}
	if len(got.Printers) != 2 || got.Printers[0].Name != "alpha" {
		t.Errorf("printers = %+v", got.Printers)
	}
	if got.RefreshedAt != nil {
		t.Errorf("refreshed_at = %v before any refresh", got.RefreshedAt)
	}
}

func TestLogsEndpoints(t *testing.T) {
	_, _, ts := newTestServer(t)
	logger.GetLogBuffer().Clear()
	logger.GetLogBuffer().Add(logger.LogEntry{Timestamp: time.Now(), Level: "info", Message: "first"})
	logger.GetLogBuffer().Add(logger.LogEntry{Timestamp: time.Now(), Level: "warn", Message: "second"})

	resp, err := http.Get(ts.URL + "/api/logs?limit=1")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	var body struct {
		Logs  []logger.LogEntry `json:"logs"`
		Count int               `json:"count"`
	}
	err = json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 1 || len(body.Logs) != 1 {
		t.Errorf("logs = %+v, want one entry", body)
	}

	resp, err = http.Get(ts.URL + "/api/logs/download?format=text")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	text, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(text), "[info] first") || !strings.Contains(string(text), "[warn] second") {
		t.Errorf("text download missing entries: %s", text)
	}
	if !strings.Contains(resp.Header.Get("Content-Disposition"), "printer-fleet-logs-") {
		t.Errorf("Content-Disposition = %q", resp.Header.Get("Content-Disposition"))
	}

	resp, err = http.Get(ts.URL + "/api/logs/download?format=xml")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("xml download status = %d, want 400", resp.StatusCode)
	}
}
