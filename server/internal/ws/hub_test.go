package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wattboard/wattboard/server/internal/dashboard"
	wsHub "github.com/wattboard/wattboard/server/internal/ws"
)

const testInterval = 20 * time.Millisecond

// --- helpers ----------------------------------------------------------------

// fakeSource serves a mutable snapshot.
type fakeSource struct {
	mu    sync.Mutex
	snap  dashboard.Snapshot
	calls atomic.Int32
}

func (f *fakeSource) Snapshot() dashboard.Snapshot {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.snap
	s.GeneratedAt = time.Now()
	return s
}

func (f *fakeSource) set(buildings ...dashboard.Building) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap.Buildings = buildings
	f.snap.Summary.Buildings = len(buildings)
}

func newSource(ids ...string) *fakeSource {
	src := &fakeSource{}
	cards := make([]dashboard.Building, 0, len(ids))
	for _, id := range ids {
		cards = append(cards, dashboard.Building{ID: id, Name: id, Reporting: true})
	}
	src.set(cards...)
	return src
}

func startHub(t *testing.T, src wsHub.Source) (wsURL string, hub *wsHub.Hub, cancel func()) {
	t.Helper()

	hub = wsHub.New(src, wsHub.Fixed(testInterval))
	ctx, cancelFn := context.WithCancel(context.Background())

	srv := httptest.NewServer(hub)
	go hub.Run(ctx)

	t.Cleanup(func() {
		cancelFn()
		srv.Close()
	})

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, hub, cancelFn
}

func dial(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", wsURL, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) wsHub.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var m wsHub.Message
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v (raw %s)", err, raw)
	}
	return m
}

// --- tests ------------------------------------------------------------------

func TestHub_Connect_ReceivesImmediateSnapshot(t *testing.T) {
	wsURL, _, _ := startHub(t, newSource("library", "lab-b"))

	m := readMessage(t, dial(t, wsURL))
	if m.Event != "snapshot" {
		t.Errorf("event: got %q, want snapshot", m.Event)
	}
	if m.Data.GeneratedAt.IsZero() {
		t.Error("generated_at: missing")
	}
	if len(m.Data.Buildings) != 2 {
		t.Errorf("buildings: got %d, want 2", len(m.Data.Buildings))
	}
}

func TestHub_CountClients(t *testing.T) {
	wsURL, hub, _ := startHub(t, newSource())

	conns := make([]*websocket.Conn, 3)
	for i := range conns {
		conns[i] = dial(t, wsURL)
		readMessage(t, conns[i])
	}
	time.Sleep(10 * time.Millisecond)
	if n := hub.Count(); n != 3 {
		t.Errorf("Count: got %d, want 3", n)
	}

	conns[0].Close()
	time.Sleep(50 * time.Millisecond) // let readLoop detect the close
	if n := hub.Count(); n != 2 {
		t.Errorf("Count after disconnect: got %d, want 2", n)
	}
}

func TestHub_ReceivesBroadcastOnTick(t *testing.T) {
	src := newSource()
	wsURL, _, _ := startHub(t, src)

	conn := dial(t, wsURL)
	readMessage(t, conn) // immediate snapshot, no buildings

	src.set(dashboard.Building{ID: "admin", Name: "Admin Building", Reporting: true})

	// A tick may already be in flight with the old state.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		m := readMessage(t, conn)
		if len(m.Data.Buildings) == 1 && m.Data.Buildings[0].ID == "admin" {
			return
		}
	}
	t.Fatal("no broadcast carried the new building")
}

func TestHub_NoClients_SkipsSnapshot(t *testing.T) {
	src := newSource()
	startHub(t, src)

	time.Sleep(5 * testInterval)
	if n := src.calls.Load(); n != 0 {
		t.Errorf("Snapshot called %d times with no clients, want 0", n)
	}
}

func TestHub_UsesIntervalFunc(t *testing.T) {
	var interval atomic.Int64
	interval.Store(int64(time.Hour))

	src := newSource()
	hub := wsHub.New(src, func() time.Duration { return time.Duration(interval.Load()) })
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	interval.Store(int64(testInterval)) // before Run reads it
	go hub.Run(ctx)

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	readMessage(t, conn)
	readMessage(t, conn) // arrives only if the short interval took effect
}

func TestHub_CancelContextClosesConnections(t *testing.T) {
	wsURL, hub, cancel := startHub(t, newSource())

	conn := dial(t, wsURL)
	readMessage(t, conn)
	time.Sleep(10 * time.Millisecond)

	cancel()

	time.Sleep(50 * time.Millisecond)
	if n := hub.Count(); n != 0 {
		t.Errorf("Count after cancel: got %d, want 0", n)
	}
}

func TestHub_NonWebSocketRequest_Returns400(t *testing.T) {
	hub := wsHub.New(newSource(), wsHub.Fixed(testInterval))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}
