// Package client provides a load generator for the static file server.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"poolserve/internal/logger"
	"poolserve/internal/metrics"
	"poolserve/internal/pool"
)

// ErrAlreadyRunning は実行中の Client を再度実行したときのエラー
var ErrAlreadyRunning = errors.New("client: already running")

// Config は Client の設定
type Config struct {
	Addr        string        // 接続先アドレス
	Path        string        // リクエストするパス
	Requests    int           // 送信するリクエスト数
	Concurrency int           // 同時接続数（プールのワーカー数）
	Timeout     time.Duration // 1リクエストあたりのタイムアウト
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Addr:        "127.0.0.1:7878",
		Path:        "/",
		Requests:    100,
		Concurrency: 4,
		Timeout:     10 * time.Second,
	}
}

// Result は負荷生成の結果
type Result struct {
	metrics.Snapshot
	Statuses map[string]uint64 `json:"statuses"`
}

// Report は人間向けのレポート文字列を返す
func (r *Result) Report() string {
	var b strings.Builder
	b.WriteString(r.Snapshot.Report())

	codes := make([]string, 0, len(r.Statuses))
	for code := range r.Statuses {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		fmt.Fprintf(&b, "\nStatus %s: %d", code, r.Statuses[code])
	}
	return b.String()
}

// Client は負荷生成器
type Client struct {
	config  Config
	metrics *metrics.Metrics

	mu       sync.Mutex
	statuses map[string]uint64

	running atomic.Bool
}

// New は新しい Client を作成する
func New(config Config) *Client {
	return &Client{
		config:   config,
		metrics:  metrics.New(),
		statuses: make(map[string]uint64),
	}
}

// Run は設定された数のリクエストをプール経由で送信し、全て終わるまで待つ
func (c *Client) Run(ctx context.Context) (*Result, error) {
	if c.running.Swap(true) {
		return nil, ErrAlreadyRunning
	}
	defer c.running.Store(false)

	p, err := pool.Build(c.config.Concurrency)
	if err != nil {
		return nil, err
	}

	logger.Info("", "Client started (target: %s%s, requests: %d, concurrency: %d)",
		c.config.Addr, c.config.Path, c.config.Requests, c.config.Concurrency)

	for i := 0; i < c.config.Requests; i++ {
		if ctx.Err() != nil {
			break
		}
		if err := p.Submit(pool.JobFunc(func() { c.request(ctx) })); err != nil {
			break
		}
	}

	// キューに残ったジョブを処理し終えてから戻る
	if err := p.Shutdown(); err != nil {
		return nil, err
	}

	logger.Info("", "Client stopped")
	return c.result(), nil
}

// request は1リクエストを送信して結果を記録する
func (c *Client) request(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	status, err := c.roundTrip(ctx)
	latency := time.Since(start)

	if err != nil {
		logger.Debug("", "request failed: %v", err)
		c.metrics.RecordFailure(latency)
		return
	}

	c.metrics.RecordSuccess(latency)
	c.mu.Lock()
	c.statuses[status]++
	c.mu.Unlock()
}

func (c *Client) roundTrip(ctx context.Context) (string, error) {
	dialer := net.Dialer{Timeout: c.config.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.Addr)
	if err != nil {
		return "", err
	}
	defer func() { _ = conn.Close() }()

	if c.config.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.config.Timeout))
	}

	if _, err := io.WriteString(conn, BuildRequest(c.config.Addr, c.config.Path)); err != nil {
		return "", err
	}

	reader := bufio.NewReader(conn)
	statusLine, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read status line: %w", err)
	}
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	status := ParseStatus(statusLine)
	if status == "" {
		return "", fmt.Errorf("malformed status line %q", strings.TrimSpace(statusLine))
	}
	return status, nil
}

// Metrics はメトリクスを返す
func (c *Client) Metrics() *metrics.Metrics {
	return c.metrics
}

// IsRunning は実行中かどうかを返す
func (c *Client) IsRunning() bool {
	return c.running.Load()
}

func (c *Client) result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	statuses := make(map[string]uint64, len(c.statuses))
	for code, n := range c.statuses {
		statuses[code] = n
	}
	return &Result{
		Snapshot: c.metrics.Snapshot(),
		Statuses: statuses,
	}
}

// BuildRequest は GET リクエストを組み立てる
func BuildRequest(host, path string) string {
	return fmt.Sprintf("GET %s HTTP/1.1\r\nHost: %s\r\n\r\n", path, host)
}

// ParseStatus はステータス行からステータスコードを取り出す
func ParseStatus(statusLine string) string {
	fields := strings.Fields(statusLine)
	if len(fields) < 2 || !strings.HasPrefix(fields[0], "HTTP/") {
		return ""
	}
	return fields[1]
}
