// Package main is the entry point for poolserve.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"poolserve/internal/api"
	"poolserve/internal/client"
	"poolserve/internal/config"
	"poolserve/internal/events"
	"poolserve/internal/logger"
	"poolserve/internal/metrics"
	"poolserve/internal/pool"
	"poolserve/internal/server"
)

var (
	version = "dev"
)

const metricsNamespace = "poolserve"

// options はコマンドラインフラグの値
type options struct {
	configFile       string
	addr             string
	workers          int
	docRoot          string
	maxConns         int
	sleep            time.Duration
	admin            bool
	adminAddr        string
	logLevel         string
	benchRequests    int
	benchConcurrency int
	benchPath        string

	// 明示的に指定されたフラグ名
	set map[string]bool
}

func main() {
	var opts options

	// フラグ定義
	flag.StringVar(&opts.configFile, "config", "", "設定ファイルパス (YAML/JSON)")
	flag.StringVar(&opts.addr, "addr", "", "待ち受けアドレス (デフォルト: 127.0.0.1:7878)")
	flag.IntVar(&opts.workers, "workers", 4, "ワーカー数")
	flag.StringVar(&opts.docRoot, "docroot", "", "hello.html と 404.html のディレクトリ")
	flag.IntVar(&opts.maxConns, "max-conns", 0, "受け付ける接続数の上限 (0で無制限)")
	flag.DurationVar(&opts.sleep, "sleep", 5*time.Second, "/sleep の待ち時間")
	flag.BoolVar(&opts.admin, "admin", false, "管理用 HTTP サーバーを有効化")
	flag.StringVar(&opts.adminAddr, "admin-addr", "", "管理用 HTTP サーバーのアドレス (デフォルト: 127.0.0.1:9090)")
	flag.StringVar(&opts.logLevel, "log-level", "", "ログレベル (debug, info, warn, error)")
	bench := flag.Bool("bench", false, "サーバーを起動せず、-addr に負荷をかける")
	flag.IntVar(&opts.benchRequests, "bench-requests", 100, "負荷生成のリクエスト数")
	flag.IntVar(&opts.benchConcurrency, "bench-concurrency", 4, "負荷生成の同時接続数")
	flag.StringVar(&opts.benchPath, "bench-path", "/", "負荷生成のリクエストパス")
	showVersion := flag.Bool("version", false, "バージョンを表示")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `poolserve - Static file server on a fixed-size worker pool

Usage:
  poolserve [options]

Options:
`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # デフォルト設定で起動 (127.0.0.1:7878, 4 workers)
  poolserve

  # 2接続を処理したら終了
  poolserve --max-conns 2

  # 設定ファイルから起動し、管理 API を有効化
  poolserve --config poolserve.yaml --admin

  # 起動中のサーバーに負荷をかける
  poolserve --bench --bench-path /sleep --bench-requests 20
`)
	}

	flag.Parse()

	// バージョン表示
	if *showVersion {
		fmt.Printf("poolserve version %s\n", version)
		return
	}

	opts.set = make(map[string]bool)
	flag.Visit(func(f *flag.Flag) {
		opts.set[f.Name] = true
	})

	cfg, err := buildConfig(opts)
	if err != nil {
		logger.Error("", "設定エラー: %v", err)
		os.Exit(1)
	}
	logger.Default.SetLevel(cfg.LogLevel)

	if *bench {
		if err := runBench(cfg.Benchmark); err != nil {
			logger.Error("", "負荷生成エラー: %v", err)
			os.Exit(1)
		}
		return
	}

	os.Exit(runServer(cfg))
}

// buildConfig は設定ファイルとフラグから実行時設定を構築する
func buildConfig(opts options) (config.Config, error) {
	cfg := config.DefaultConfig()

	// 1. 設定ファイルから読み込み
	if opts.configFile != "" {
		fileConfig, err := config.LoadFile(opts.configFile)
		if err != nil {
			return cfg, fmt.Errorf("設定ファイル読み込みエラー: %w", err)
		}
		if err := fileConfig.Validate(); err != nil {
			return cfg, fmt.Errorf("設定検証エラー: %w", err)
		}
		cfg, err = fileConfig.ToConfig()
		if err != nil {
			return cfg, fmt.Errorf("設定変換エラー: %w", err)
		}
	}

	// フラグが明示的に指定された場合のみオーバーライド
	if opts.set["addr"] {
		cfg.Server.Addr = opts.addr
	}
	if opts.set["workers"] {
		cfg.PoolSize = opts.workers
	}
	if opts.set["docroot"] {
		cfg.Server.DocRoot = opts.docRoot
	}
	if opts.set["max-conns"] {
		if opts.maxConns < 0 {
			return cfg, fmt.Errorf("-max-conns must be non-negative")
		}
		cfg.Server.MaxConnections = opts.maxConns
	}
	if opts.set["sleep"] {
		cfg.Server.SleepDelay = opts.sleep
	}
	if opts.set["admin"] {
		cfg.Admin.Enabled = opts.admin
	}
	if opts.set["admin-addr"] {
		cfg.Admin.Addr = opts.adminAddr
	}
	if opts.set["log-level"] {
		level, err := logger.ParseLevel(opts.logLevel)
		if err != nil {
			return cfg, err
		}
		cfg.LogLevel = level
	}
	if opts.set["bench-requests"] {
		cfg.Benchmark.Requests = opts.benchRequests
	}
	if opts.set["bench-concurrency"] {
		cfg.Benchmark.Concurrency = opts.benchConcurrency
	}
	if opts.set["bench-path"] {
		cfg.Benchmark.Path = opts.benchPath
	}

	// 負荷生成の接続先はサーバーの待ち受けアドレス
	cfg.Benchmark.Addr = cfg.Server.Addr

	return cfg, nil
}

// signalContext は SIGINT/SIGTERM でキャンセルされる Context を返す
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			fmt.Println("\n中断シグナルを受信、終了中...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// runServer はサーバーを起動し、終了コードを返す
func runServer(cfg config.Config) int {
	ctx, cancel := signalContext()
	defer cancel()

	bus := events.NewBus()
	defer bus.Close()

	requestMetrics := metrics.New()
	collector := metrics.NewCollector(metricsNamespace)

	p, err := pool.BuildWithConfig(pool.Config{
		Size:  cfg.PoolSize,
		Hooks: pool.ChainHooks(collector.PoolHooks(), bus.PoolHooks()),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fail to create: %v\n", err)
		return 1
	}
	closePool := poolCloser(p, bus)
	defer closePool()
	collector.TrackPool(metricsNamespace, p)

	srv := server.New(cfg.Server, p,
		server.WithMetrics(requestMetrics),
		server.WithCollector(collector),
		server.WithEventBus(bus),
	)
	if err := srv.Listen(); err != nil {
		fmt.Fprintf(os.Stderr, "Can't bind due to: %v\n", err)
		return 1
	}

	var adminSrv *api.Server
	if cfg.Admin.Enabled {
		adminSrv = api.NewServer(cfg.Admin.Addr, p,
			api.WithMetrics(requestMetrics),
			api.WithCollector(collector),
			api.WithEventBus(bus),
		)
		if err := adminSrv.Listen(); err != nil {
			fmt.Fprintf(os.Stderr, "Can't bind due to: %v\n", err)
			return 1
		}
	}

	// 接続上限に達したら管理サーバーも止める
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer stop()
		err := srv.Serve(gctx)
		// 管理サーバーが動いている間にプールを閉じ、終了イベントを配信させる
		closePool()
		return err
	})
	if adminSrv != nil {
		g.Go(func() error {
			return adminSrv.Start(gctx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("", "Server error: %v", err)
		return 1
	}

	logger.Info("", "%s", requestMetrics.Snapshot().Report())
	return 0
}

// poolCloser は pool_shutdown を通知してからプールを閉じる関数を返す。
// 処理中と待機中の接続は全て処理される。2回目以降の呼び出しは何もしない
func poolCloser(p *pool.Pool, bus *events.Bus) func() {
	return sync.OnceFunc(func() {
		bus.Publish(events.NewPoolShutdownEvent())
		if err := p.Close(); err != nil {
			logger.Error("", "Pool shutdown: %v", err)
		}
	})
}

// runBench は負荷生成を実行してレポートを出力する
func runBench(cfg client.Config) error {
	fmt.Println("poolserve - Load Generator")
	fmt.Println("==========================")
	fmt.Printf("Target: http://%s%s\n", cfg.Addr, cfg.Path)
	fmt.Printf("Requests: %d, Concurrency: %d\n", cfg.Requests, cfg.Concurrency)
	fmt.Println("==========================")
	fmt.Println()

	ctx, cancel := signalContext()
	defer cancel()

	result, err := client.New(cfg).Run(ctx)
	if err != nil {
		return err
	}

	// レポート出力
	fmt.Println(result.Report())
	return nil
}
