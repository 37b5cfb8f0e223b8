package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"poolserve/internal/events"
	"poolserve/internal/logger"
	"poolserve/internal/metrics"
)

const (
	// drainTimeout は応答後にリクエストの残りを読み捨てる時間
	drainTimeout = 100 * time.Millisecond

	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = 1 * time.Second
)

// Executor は接続処理を実行するプール
type Executor interface {
	Execute(f func())
}

// Config はサーバーの設定
type Config struct {
	Addr           string        // 待ち受けアドレス
	DocRoot        string        // HTML ファイルのディレクトリ
	MaxConnections int           // 受け付ける接続数の上限（0で無制限）
	SleepDelay     time.Duration // /sleep の待ち時間
	ReadTimeout    time.Duration // リクエスト行の読み込みタイムアウト（0で無制限）
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Addr:        "127.0.0.1:7878",
		DocRoot:     ".",
		SleepDelay:  5 * time.Second,
		ReadTimeout: 30 * time.Second,
	}
}

// Option はサーバーのオプション
type Option func(*Server)

// WithMetrics はリクエストメトリクスの記録先を設定する
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithCollector は Prometheus の Collector を設定する
func WithCollector(c *metrics.Collector) Option {
	return func(s *Server) {
		s.collector = c
	}
}

// WithEventBus はイベントバスを設定する
func WithEventBus(bus *events.Bus) Option {
	return func(s *Server) {
		s.eventBus = bus
	}
}

// Server は TCP 接続を受け付け、各接続をプールで処理する
type Server struct {
	config    Config
	pool      Executor
	metrics   *metrics.Metrics
	collector *metrics.Collector
	eventBus  *events.Bus

	mu       sync.Mutex
	listener net.Listener
}

// New は新しいサーバーを作成する
func New(config Config, pool Executor, opts ...Option) *Server {
	s := &Server{
		config: config,
		pool:   pool,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	return s
}

// Listen はアドレスにバインドする
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("bind %s: %w", s.config.Addr, err)
	}
	s.listener = ln
	return nil
}

// Addr は待ち受けアドレスを返す。Listen 前は nil
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Metrics はリクエストメトリクスを返す
func (s *Server) Metrics() *metrics.Metrics {
	return s.metrics
}

// Serve は接続を受け付けてプールに渡す。
// ctx がキャンセルされるか MaxConnections に達すると戻る
func (s *Server) Serve(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	s.mu.Lock()
	ln := s.listener
	s.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()
	defer func() { _ = ln.Close() }()

	logger.Info("", "Listening on %s", ln.Addr())

	accepted := 0
	var backoff time.Duration
	for s.config.MaxConnections == 0 || accepted < s.config.MaxConnections {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				break
			}
			backoff = nextBackoff(backoff)
			logger.Warn("", "Connection failed: %v; retrying in %v", err, backoff)
			select {
			case <-ctx.Done():
			case <-time.After(backoff):
			}
			continue
		}

		backoff = 0
		accepted++
		connID := uuid.NewString()
		logger.Debug(connID, "accepted connection from %s", conn.RemoteAddr())

		s.pool.Execute(func() {
			s.handleConnection(connID, conn)
		})
	}

	logger.Info("", "Shutting down.")
	return nil
}

// handleConnection はリクエスト行を読み、静的ファイルを返す
func (s *Server) handleConnection(connID string, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	start := time.Now()
	if s.config.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(start.Add(s.config.ReadTimeout))
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		logger.Warn(connID, "failed to read request line: %v", err)
		s.metrics.RecordFailure(time.Since(start))
		return
	}
	requestLine := strings.TrimRight(line, "\r\n")

	route := Match(requestLine)
	if route.Sleep {
		time.Sleep(s.config.SleepDelay)
	}

	response := FormatResponse(route.StatusLine, s.readFile(connID, route.File))
	if _, err := io.WriteString(conn, response); err != nil {
		logger.Warn(connID, "failed to write response: %v", err)
		s.metrics.RecordFailure(time.Since(start))
		return
	}
	latency := time.Since(start)

	// 未読データを残して閉じると RST になる
	_ = conn.SetReadDeadline(time.Now().Add(drainTimeout))
	discardHeaders(reader)

	s.metrics.RecordSuccess(latency)
	if s.collector != nil {
		s.collector.ObserveRequest(route.Status())
	}
	if s.eventBus != nil {
		s.eventBus.Publish(events.NewRequestServedEvent(connID, RequestPath(requestLine), route.Status(), latency))
	}

	logger.Debug(connID, "%q -> %s (%v)", requestLine, route.StatusLine, latency)
}

func (s *Server) readFile(connID, filename string) string {
	contents, err := os.ReadFile(filepath.Join(s.config.DocRoot, filename))
	if err != nil {
		logger.Warn(connID, "failed to read %s: %v", filename, err)
		return missingFileBody(filename)
	}
	return string(contents)
}

// nextBackoff は Accept 失敗時の待ち時間を返す。5ms から倍々で最大 1s
func nextBackoff(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptBackoff
	}
	return min(prev*2, maxAcceptBackoff)
}

// discardHeaders はヘッダを空行まで読み捨てる
func discardHeaders(r *bufio.Reader) {
	for {
		line, err := r.ReadString('\n')
		if err != nil || strings.TrimRight(line, "\r\n") == "" {
			return
		}
	}
}
