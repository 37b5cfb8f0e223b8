package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"poolserve/internal/events"
	"poolserve/internal/logger"
	"poolserve/internal/metrics"
	"poolserve/internal/pool"

	"golang.org/x/net/websocket"
)

const defaultBroadcastInterval = 1 * time.Second

// Option はAPIサーバーのオプション
type Option func(*Server)

// WithMetrics はリクエストメトリクスを設定する
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithCollector は /metrics で公開する Collector を設定する
func WithCollector(c *metrics.Collector) Option {
	return func(s *Server) {
		s.collector = c
	}
}

// WithEventBus は WebSocket に中継するイベントバスを設定する
func WithEventBus(bus *events.Bus) Option {
	return func(s *Server) {
		s.eventBus = bus
	}
}

// WithBroadcastInterval はステータス配信の間隔を設定する
func WithBroadcastInterval(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.interval = d
		}
	}
}

// Server はAPIサーバー
type Server struct {
	addr      string
	pool      *pool.Pool
	metrics   *metrics.Metrics
	collector *metrics.Collector
	eventBus  *events.Bus
	interval  time.Duration

	mu        sync.RWMutex
	wsClients map[*websocket.Conn]bool
	listener  net.Listener

	server *http.Server
}

// NewServer は新しいAPIサーバーを作成する
func NewServer(addr string, p *pool.Pool, opts ...Option) *Server {
	s := &Server{
		addr:      addr,
		pool:      p,
		interval:  defaultBroadcastInterval,
		wsClients: make(map[*websocket.Conn]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler はAPIのルーティングを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/workers", s.handleWorkers)
	mux.HandleFunc("/api/metrics", s.handleMetrics)

	// Prometheus
	if s.collector != nil {
		mux.Handle("/metrics", s.collector.Handler())
	}

	// WebSocket
	mux.Handle("/ws", websocket.Handler(s.handleWebSocket))

	return mux
}

// Listen はアドレスにバインドする
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.addr, err)
	}
	s.listener = ln
	return nil
}

// Addr は待ち受けアドレスを返す。Listen 前は nil
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start はサーバーを開始し、ctx がキャンセルされるまでブロックする
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.RLock()
	ln := s.listener
	s.mu.RUnlock()

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// バックグラウンドでステータスとイベントを配信
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		s.broadcastLoop(ctx)
	}()

	logger.Info("", "API Server starting on http://%s", ln.Addr())

	go func() {
		<-ctx.Done()
		// 配信待ちのイベントを送り切ってから WebSocket を閉じる
		<-loopDone
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		s.closeWebSockets()
	}()

	if err := s.server.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// StatusResponse はステータスレスポンス
type StatusResponse struct {
	PoolSize     int               `json:"pool_size"`
	AliveWorkers int               `json:"alive_workers"`
	QueuedJobs   int               `json:"queued_jobs"`
	Closed       bool              `json:"closed"`
	Requests     *metrics.Snapshot `json:"requests,omitempty"`
}

func (s *Server) status() StatusResponse {
	var resp StatusResponse
	if s.pool != nil {
		resp.PoolSize = s.pool.Size()
		resp.AliveWorkers = s.pool.Alive()
		resp.QueuedJobs = s.pool.Queued()
		resp.Closed = s.pool.Closed()
	}
	if s.metrics != nil {
		snap := s.metrics.Snapshot()
		resp.Requests = &snap
	}
	return resp
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, s.status())
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	workers := []pool.WorkerStatus{}
	if s.pool != nil {
		workers = s.pool.Workers()
	}
	s.writeJSON(w, workers)
}

// MetricsResponse はメトリクスレスポンス
type MetricsResponse struct {
	TotalRequests   uint64  `json:"total_requests"`
	SuccessRequests uint64  `json:"success_requests"`
	FailedRequests  uint64  `json:"failed_requests"`
	RPS             float64 `json:"rps"`
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	P99LatencyMs    float64 `json:"p99_latency_ms"`
	ErrorRate       float64 `json:"error_rate"`
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := MetricsResponse{}
	if s.metrics != nil {
		snap := s.metrics.Snapshot()
		resp = MetricsResponse{
			TotalRequests:   snap.TotalRequests,
			SuccessRequests: snap.SuccessRequests,
			FailedRequests:  snap.FailedRequests,
			RPS:             snap.OverallRPS,
			AvgLatencyMs:    float64(snap.AverageLatency) / float64(time.Millisecond),
			P99LatencyMs:    float64(snap.P99Latency) / float64(time.Millisecond),
			ErrorRate:       snap.ErrorRate,
		}
	}

	s.writeJSON(w, resp)
}

// WebSocket handling
func (s *Server) handleWebSocket(ws *websocket.Conn) {
	s.mu.Lock()
	s.wsClients[ws] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.wsClients, ws)
		s.mu.Unlock()
		_ = ws.Close()
	}()

	// Keep connection alive
	for {
		var msg string
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			break
		}
	}
}

// ClientCount は接続中の WebSocket クライアント数を返す
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.wsClients)
}

func (s *Server) closeWebSockets() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for ws := range s.wsClients {
		_ = ws.Close()
	}
}

func (s *Server) broadcast(data any) {
	s.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(s.wsClients))
	for ws := range s.wsClients {
		clients = append(clients, ws)
	}
	s.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}

	for _, ws := range clients {
		_ = websocket.Message.Send(ws, string(jsonData))
	}
}

func (s *Server) broadcastLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	var eventCh <-chan events.Event
	if s.eventBus != nil {
		eventCh = s.eventBus.Subscribe()
		defer s.eventBus.Unsubscribe(eventCh)
	}

	for {
		select {
		case <-ctx.Done():
			s.flushEvents(eventCh)
			return
		case ev, ok := <-eventCh:
			if !ok {
				eventCh = nil
				continue
			}
			s.broadcastEvent(ev)
		case <-ticker.C:
			s.broadcast(map[string]any{
				"type":   "status",
				"status": s.status(),
			})
		}
	}
}

// flushEvents はバッファに残っているイベントを配信する
func (s *Server) flushEvents(eventCh <-chan events.Event) {
	for {
		select {
		case ev, ok := <-eventCh:
			if !ok {
				return
			}
			s.broadcastEvent(ev)
		default:
			return
		}
	}
}

func (s *Server) broadcastEvent(ev events.Event) {
	s.broadcast(map[string]any{
		"type":  "event",
		"event": ev,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("", "Failed to encode JSON: %v", err)
	}
}
