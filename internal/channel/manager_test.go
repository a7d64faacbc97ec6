package channel

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nantokaworks/printer-fleet/internal/clock"
	"github.com/nantokaworks/printer-fleet/internal/protocol"
	"github.com/nantokaworks/printer-fleet/internal/testutil"
	"go.uber.org/zap"
)

const testTimeout = 5 * time.Second

// backend is a websocket server standing in for the printer backend.
// Each accepted connection is published on conns; every frame a client
// sends is published on received.
type backend struct {
	*httptest.Server
	conns    chan *websocket.Conn
	received chan []byte
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	b := &backend{
		conns:    make(chan *websocket.Conn, 8),
		received: make(chan []byte, 32),
	}
	upgrader := websocket.Upgrader{}
	b.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != protocol.ChannelPath {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.conns <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			b.received <- data
		}
	}))
	t.Cleanup(b.Close)
	return b
}

func (b *backend) endpoint(t *testing.T) string {
	t.Helper()
	url, err := protocol.EndpointURL(b.URL)
	if err != nil {
		t.Fatalf("EndpointURL(%q): %v", b.URL, err)
	}
	return url
}

func newTestManager(t *testing.T, url string, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithLogger(zap.NewNop()), WithJitter(func() float64 { return 0 })}, opts...)
	m := New(url, opts...)
	t.Cleanup(func() { m.Close() })
	return m
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	testutil.Eventually(t, testTimeout, func() bool { return m.State() == want }, "waiting for state %s", want)
}

func send(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("server write: %v", err)
	}
}

func TestFanOutDeliversEveryMessageToEverySubscriber(t *testing.T) {
	server := newBackend(t)
	m := newTestManager(t, server.endpoint(t))

	first := make(chan string, 8)
	second := make(chan string, 8)
	m.Subscribe(func(msg json.RawMessage) { first <- string(msg) })
	m.Subscribe(func(msg json.RawMessage) { second <- string(msg) })

	conn := testutil.RequireReceive(t, server.conns, testTimeout, "waiting for dial")
	waitForState(t, m, StateOpen)

	send(t, conn, `[{"printer_name":"a"}]`)
	send(t, conn, `[]`)

	for _, ch := range []chan string{first, second} {
		if got := testutil.RequireReceive(t, ch, testTimeout, "first message"); got != `[{"printer_name":"a"}]` {
			t.Errorf("first message = %s", got)
		}
		if got := testutil.RequireReceive(t, ch, testTimeout, "second message"); got != `[]` {
			t.Errorf("second message = %s", got)
		}
	}
	if m.LastMessageAt().IsZero() {
		t.Error("LastMessageAt not recorded")
	}
}

func TestSubscribersShareOneSocket(t *testing.T) {
	server := newBackend(t)
	m := newTestManager(t, server.endpoint(t))

	for i := 0; i < 3; i++ {
		m.Subscribe(func(json.RawMessage) {})
	}
	testutil.RequireReceive(t, server.conns, testTimeout, "waiting for dial")
	waitForState(t, m, StateOpen)
	testutil.RequireNoReceive(t, server.conns, 100*time.Millisecond, "extra socket opened")
}

func TestNonJSONFramesAreDropped(t *testing.T) {
	server := newBackend(t)
	m := newTestManager(t, server.endpoint(t))

	messages := make(chan string, 8)
	m.Subscribe(func(msg json.RawMessage) { messages <- string(msg) })
	conn := testutil.RequireReceive(t, server.conns, testTimeout, "waiting for dial")

	send(t, conn, `not json at all`)
	send(t, conn, `{"type":"heartbeat"}`)

	if got := testutil.RequireReceive(t, messages, testTimeout, "json frame"); got != `{"type":"heartbeat"}` {
		t.Errorf("delivered %s, want the heartbeat object", got)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	server := newBackend(t)
	m := newTestManager(t, server.endpoint(t))

	kept := make(chan string, 8)
	dropped := make(chan string, 8)
	m.Subscribe(func(msg json.RawMessage) { kept <- string(msg) })
	unsubscribe := m.Subscribe(func(msg json.RawMessage) { dropped <- string(msg) })
	unsubscribe()
	unsubscribe()

	conn := testutil.RequireReceive(t, server.conns, testTimeout, "waiting for dial")
	send(t, conn, `[]`)

	testutil.RequireReceive(t, kept, testTimeout, "kept subscriber")
	testutil.RequireNoReceive(t, dropped, 100*time.Millisecond, "unsubscribed handler still called")
}

func TestSendWhenNotOpen(t *testing.T) {
	m := newTestManager(t, "ws://127.0.0.1:1/ws")

	if err := m.Send(protocol.PauseCommand("10.0.0.1")); !errors.Is(err, ErrNotOpen) {
		t.Errorf("Send before connect = %v, want ErrNotOpen", err)
	}

	m.Close()
	if err := m.Send(protocol.PauseCommand("10.0.0.1")); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after Close = %v, want ErrClosed", err)
	}
	if m.State() != StateClosed {
		t.Errorf("State() after Close = %s, want closed", m.State())
	}
}

func TestSendWritesCommand(t *testing.T) {
	server := newBackend(t)
	m := newTestManager(t, server.endpoint(t))
	m.Subscribe(func(json.RawMessage) {})
	testutil.RequireReceive(t, server.conns, testTimeout, "waiting for dial")
	waitForState(t, m, StateOpen)

	if err := m.Send(protocol.StartCommand("192.168.1.20", "benchy.gcode")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	got := testutil.RequireReceive(t, server.received, testTimeout, "waiting for command")
	want := `{"action":"start","ip_address":"192.168.1.20","file":"benchy.gcode"}`
	if string(got) != want {
		t.Errorf("backend received %s, want %s", got, want)
	}
}

func TestReconnectAfterDrop(t *testing.T) {
	server := newBackend(t)
	fake := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	m := newTestManager(t, server.endpoint(t), WithClock(fake))

	var mu sync.Mutex
	var transitions []State
	m.OnStateChange(func(s State) {
		mu.Lock()
		transitions = append(transitions, s)
		mu.Unlock()
	})

	messages := make(chan string, 8)
	m.Subscribe(func(msg json.RawMessage) { messages <- string(msg) })

	first := testutil.RequireReceive(t, server.conns, testTimeout, "first dial")
	waitForState(t, m, StateOpen)
	send(t, first, `[{"printer_name":"old"}]`)
	testutil.RequireReceive(t, messages, testTimeout, "message on first connection")

	first.Close()
	waitForState(t, m, StateErrored)

	fake.WaitForTimers(1)
	testutil.RequireNoReceive(t, server.conns, 50*time.Millisecond, "redialed before backoff elapsed")
	fake.Advance(time.Minute)

	second := testutil.RequireReceive(t, server.conns, testTimeout, "redial")
	waitForState(t, m, StateOpen)
	send(t, second, `[{"printer_name":"new"}]`)
	if got := testutil.RequireReceive(t, messages, testTimeout, "message on second connection"); got != `[{"printer_name":"new"}]` {
		t.Errorf("after reconnect got %s", got)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateOpen, StateErrored, StateConnecting, StateOpen}
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", transitions, want)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Errorf("transition %d = %s, want %s", i, transitions[i], want[i])
		}
	}
}

func TestNormalCloseReportsClosedThenReconnects(t *testing.T) {
	server := newBackend(t)
	m := newTestManager(t, server.endpoint(t), WithBackoff(Backoff{}))
	m.Subscribe(func(json.RawMessage) {})

	first := testutil.RequireReceive(t, server.conns, testTimeout, "first dial")
	waitForState(t, m, StateOpen)

	first.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second))
	first.Close()

	testutil.RequireReceive(t, server.conns, testTimeout, "immediate redial with zero backoff")
	waitForState(t, m, StateOpen)
}

func TestConnectIsIdempotent(t *testing.T) {
	a := Connect("ws://registry-test.invalid/ws", WithLogger(zap.NewNop()))
	b := Connect("ws://registry-test.invalid/ws")
	if a != b {
		t.Error("Connect returned different managers for the same URL")
	}

	viaOrigin, err := ConnectOrigin("http://registry-test.invalid")
	if err != nil {
		t.Fatalf("ConnectOrigin: %v", err)
	}
	if viaOrigin != a {
		t.Error("ConnectOrigin did not return the shared manager")
	}

	other := Connect("ws://other-registry-test.invalid/ws", WithLogger(zap.NewNop()))
	if other == a {
		t.Error("different URLs share a manager")
	}
	if !strings.HasSuffix(a.URL(), "/ws") {
		t.Errorf("URL() = %q", a.URL())
	}
}

func TestConnectOriginRejectsBadOrigin(t *testing.T) {
	if _, err := ConnectOrigin("not a url"); err == nil {
		t.Error("ConnectOrigin accepted an origin without host")
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StateConnecting: "connecting",
		StateOpen:       "open",
		StateClosed:     "closed",
		StateErrored:    "errored",
		State(42):       "State(42)",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(state), got, want)
		}
	}
}
