package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"poolserve/internal/events"
	"poolserve/internal/metrics"
	"poolserve/internal/pool"
)

func newTestPool(t *testing.T, size int) *pool.Pool {
	t.Helper()
	p, err := pool.Build(size)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Shutdown() })
	return p
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s failed: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: expected 200, got %d", url, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode %s: %v", url, err)
	}
}

func TestHandleStatus(t *testing.T) {
	m := metrics.New()
	m.RecordSuccess(time.Millisecond)
	m.RecordFailure(time.Millisecond)

	s := NewServer("", newTestPool(t, 3), WithMetrics(m))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	var status StatusResponse
	getJSON(t, ts.URL+"/api/status", &status)

	if status.PoolSize != 3 {
		t.Errorf("expected pool size 3, got %d", status.PoolSize)
	}
	if status.AliveWorkers != 3 {
		t.Errorf("expected 3 alive workers, got %d", status.AliveWorkers)
	}
	if status.Closed {
		t.Error("expected pool to be open")
	}
	if status.Requests == nil || status.Requests.TotalRequests != 2 {
		t.Errorf("expected 2 recorded requests, got %+v", status.Requests)
	}
}

func TestHandleStatusAfterShutdown(t *testing.T) {
	p := newTestPool(t, 2)
	if err := p.Shutdown(); err != nil {
		t.Fatal(err)
	}

	ts := httptest.NewServer(NewServer("", p).Handler())
	defer ts.Close()

	var status StatusResponse
	getJSON(t, ts.URL+"/api/status", &status)

	if !status.Closed {
		t.Error("expected pool to be reported closed")
	}
	if status.AliveWorkers != 0 {
		t.Errorf("expected 0 alive workers, got %d", status.AliveWorkers)
	}
	if status.Requests != nil {
		t.Error("expected no request metrics without WithMetrics")
	}
}

func TestHandleWorkers(t *testing.T) {
	ts := httptest.NewServer(NewServer("", newTestPool(t, 2)).Handler())
	defer ts.Close()

	var workers []pool.WorkerStatus
	getJSON(t, ts.URL+"/api/workers", &workers)

	if len(workers) != 2 {
		t.Fatalf("expected 2 workers, got %d", len(workers))
	}
	for i, w := range workers {
		if w.ID != i {
			t.Errorf("expected worker ID %d, got %d", i, w.ID)
		}
		if w.State != "Idle" {
			t.Errorf("expected worker %d to be Idle, got %s", i, w.State)
		}
	}
}

func TestHandleWorkersWithoutPool(t *testing.T) {
	ts := httptest.NewServer(NewServer("", nil).Handler())
	defer ts.Close()

	var workers []pool.WorkerStatus
	getJSON(t, ts.URL+"/api/workers", &workers)
	if len(workers) != 0 {
		t.Errorf("expected no workers, got %d", len(workers))
	}
}

func TestHandleMetrics(t *testing.T) {
	m := metrics.New()
	m.RecordSuccess(2 * time.Millisecond)

	ts := httptest.NewServer(NewServer("", nil, WithMetrics(m)).Handler())
	defer ts.Close()

	var resp MetricsResponse
	getJSON(t, ts.URL+"/api/metrics", &resp)

	if resp.TotalRequests != 1 || resp.SuccessRequests != 1 {
		t.Errorf("unexpected metrics %+v", resp)
	}
	if resp.AvgLatencyMs != 2 {
		t.Errorf("expected 2ms average latency, got %v", resp.AvgLatencyMs)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts := httptest.NewServer(NewServer("", nil).Handler())
	defer ts.Close()

	for _, path := range []string{"/api/status", "/api/workers", "/api/metrics"} {
		resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader("{}"))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("POST %s: expected 405, got %d", path, resp.StatusCode)
		}
	}
}

func TestPrometheusEndpoint(t *testing.T) {
	p := newTestPool(t, 2)
	collector := metrics.NewCollector("poolserve")
	collector.TrackPool("poolserve", p)

	ts := httptest.NewServer(NewServer("", p, WithCollector(collector)).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), "poolserve_workers 2") {
		t.Errorf("expected workers gauge in output, got:\n%s", body)
	}
}

func TestPrometheusEndpointWithoutCollector(t *testing.T) {
	ts := httptest.NewServer(NewServer("", nil).Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 without collector, got %d", resp.StatusCode)
	}
}

func dialWebSocket(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, err := websocket.Dial(url, "", ts.URL)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func waitForClients(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for s.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %d websocket clients", n)
		}
		time.Sleep(time.Millisecond)
	}
}

type wsMessage struct {
	Type   string          `json:"type"`
	Status *StatusResponse `json:"status"`
	Event  *events.Event   `json:"event"`
}

func receive(t *testing.T, ws *websocket.Conn) wsMessage {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg wsMessage
	if err := websocket.JSON.Receive(ws, &msg); err != nil {
		t.Fatalf("websocket receive failed: %v", err)
	}
	return msg
}

func TestWebSocketStatusBroadcast(t *testing.T) {
	s := NewServer("", newTestPool(t, 2), WithBroadcastInterval(20*time.Millisecond))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.broadcastLoop(ctx)

	ws := dialWebSocket(t, ts)
	waitForClients(t, s, 1)

	msg := receive(t, ws)
	if msg.Type != "status" {
		t.Fatalf("expected status message, got %s", msg.Type)
	}
	if msg.Status == nil || msg.Status.PoolSize != 2 {
		t.Errorf("unexpected status %+v", msg.Status)
	}
}

func TestWebSocketEventRelay(t *testing.T) {
	bus := events.NewBus()
	s := NewServer("", nil, WithEventBus(bus), WithBroadcastInterval(time.Hour))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.broadcastLoop(ctx)

	ws := dialWebSocket(t, ts)
	waitForClients(t, s, 1)

	// broadcastLoop subscribes asynchronously
	deadline := time.Now().Add(time.Second)
	for bus.SubscriberCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for bus subscription")
		}
		time.Sleep(time.Millisecond)
	}

	bus.Publish(events.NewPoolShutdownEvent())

	msg := receive(t, ws)
	if msg.Type != "event" {
		t.Fatalf("expected event message, got %s", msg.Type)
	}
	if msg.Event == nil || msg.Event.Type != events.EventPoolShutdown {
		t.Errorf("unexpected event %+v", msg.Event)
	}
}

func TestStartAndShutdown(t *testing.T) {
	s := NewServer("127.0.0.1:0", newTestPool(t, 1))
	if err := s.Listen(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	var status StatusResponse
	getJSON(t, "http://"+s.Addr().String()+"/api/status", &status)
	if status.PoolSize != 1 {
		t.Errorf("expected pool size 1, got %d", status.PoolSize)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected Start error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestListenBindError(t *testing.T) {
	first := NewServer("127.0.0.1:0", nil)
	if err := first.Listen(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = first.listener.Close() })

	second := NewServer(first.Addr().String(), nil)
	if err := second.Listen(); err == nil {
		t.Error("expected bind error for an address already in use")
	}
	if second.Addr() != nil {
		t.Error("expected nil address after failed Listen")
	}
}

func TestWebSocketDeliversEventsPublishedBeforeShutdown(t *testing.T) {
	bus := events.NewBus()
	s := NewServer("127.0.0.1:0", nil, WithEventBus(bus), WithBroadcastInterval(time.Hour))
	if err := s.Listen(); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	origin := "http://" + s.Addr().String()
	ws, err := websocket.Dial("ws://"+s.Addr().String()+"/ws", "", origin)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	defer ws.Close()
	waitForClients(t, s, 1)

	deadline := time.Now().Add(time.Second)
	for bus.SubscriberCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("timeout waiting for bus subscription")
		}
		time.Sleep(time.Millisecond)
	}

	// Shut down right after the last event of the pool's lifetime
	bus.Publish(events.NewPoolShutdownEvent())
	cancel()

	msg := receive(t, ws)
	if msg.Event == nil || msg.Event.Type != events.EventPoolShutdown {
		t.Errorf("expected pool_shutdown before the connection closed, got %+v", msg)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected Start error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
