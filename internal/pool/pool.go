package pool

import (
	"errors"
	"runtime"
	"sync"
	"time"

	"poolserve/internal/channel"
	"poolserve/internal/logger"
)

// Hooks はプールのライフサイクルイベントを観測するためのコールバック。
// OnStart, OnFinish, OnWorkerExit はワーカーゴルーチン上で呼ばれる
type Hooks struct {
	OnSubmit     func()
	OnStart      func(workerID int)
	OnFinish     func(workerID int, elapsed time.Duration)
	OnWorkerExit func(workerID int, err error)
}

func (h Hooks) submit() {
	if h.OnSubmit != nil {
		h.OnSubmit()
	}
}

func (h Hooks) start(id int) {
	if h.OnStart != nil {
		h.OnStart(id)
	}
}

func (h Hooks) finish(id int, elapsed time.Duration) {
	if h.OnFinish != nil {
		h.OnFinish(id, elapsed)
	}
}

func (h Hooks) workerExit(id int, err error) {
	if h.OnWorkerExit != nil {
		h.OnWorkerExit(id, err)
	}
}

// ChainHooks は複数の Hooks を順番に呼び出す Hooks を返す
func ChainHooks(hooks ...Hooks) Hooks {
	return Hooks{
		OnSubmit: func() {
			for _, h := range hooks {
				h.submit()
			}
		},
		OnStart: func(id int) {
			for _, h := range hooks {
				h.start(id)
			}
		},
		OnFinish: func(id int, elapsed time.Duration) {
			for _, h := range hooks {
				h.finish(id, elapsed)
			}
		},
		OnWorkerExit: func(id int, err error) {
			for _, h := range hooks {
				h.workerExit(id, err)
			}
		},
	}
}

// Config はプールの設定
type Config struct {
	Size  int // ワーカー数（1以上）
	Hooks Hooks
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Size: runtime.NumCPU(),
	}
}

// WorkerStatus はワーカーの状態のスナップショット
type WorkerStatus struct {
	ID     int    `json:"id"`
	State  string `json:"state"`
	Joined bool   `json:"joined"`
}

// Pool は固定数のワーカーとジョブの送信側を所有する
type Pool struct {
	mu     sync.RWMutex
	sender *channel.Sender[Job]

	rx      *channel.Receiver[Job]
	workers []*Worker
	hooks   Hooks

	// shutdownMu は Shutdown の多重実行を直列化する
	shutdownMu sync.Mutex
}

// Build は size 個のワーカーを持つプールを作成する。
// size が 0 以下の場合は PoolCreationError を返し、ゴルーチンは起動しない
func Build(size int) (*Pool, error) {
	config := DefaultConfig()
	config.Size = size
	return BuildWithConfig(config)
}

// BuildWithConfig は設定を指定してプールを作成する
func BuildWithConfig(config Config) (*Pool, error) {
	if config.Size <= 0 {
		return nil, PoolCreationError{}
	}

	tx, rx := channel.New[Job]()
	shared := &sharedReceiver{rx: rx}

	var ready sync.WaitGroup
	ready.Add(config.Size)

	workers := make([]*Worker, 0, config.Size)
	for id := range config.Size {
		workers = append(workers, newWorker(id, shared, config.Hooks, &ready))
	}
	ready.Wait()

	logger.Info("", "Pool started with %d workers", config.Size)

	return &Pool{
		sender:  tx,
		rx:      rx,
		workers: workers,
		hooks:   config.Hooks,
	}, nil
}

// Execute は f をジョブとして投入する。完了は待たない。
// シャットダウン後に呼ばれた場合は ErrPoolClosed で panic する
func (p *Pool) Execute(f func()) {
	if f == nil {
		panic(ErrNilJob)
	}
	if err := p.Submit(JobFunc(f)); err != nil {
		panic(err)
	}
}

// Submit はジョブを投入する。シャットダウン後は ErrPoolClosed を返す
func (p *Pool) Submit(job Job) error {
	if job == nil {
		return ErrNilJob
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.sender == nil {
		return ErrPoolClosed
	}
	if err := p.sender.Send(job); err != nil {
		return ErrPoolClosed
	}

	p.hooks.submit()
	return nil
}

// Shutdown は送信側を閉じ、全ワーカーを ID 順に join する。
// 投入済みのジョブは全て実行されてから戻る。
// join に失敗したワーカーはログに出力し、残りのワーカーの join は続行する
func (p *Pool) Shutdown() error {
	p.shutdownMu.Lock()
	defer p.shutdownMu.Unlock()

	p.mu.Lock()
	sender := p.sender
	p.sender = nil
	p.mu.Unlock()

	if sender != nil {
		logger.Info("", "Shutting down all workers")
		sender.Close()
	}

	var errs []error
	for _, w := range p.workers {
		if w.thread == nil {
			continue
		}

		logger.Debug("", "Shutting down worker %d", w.id)
		if err := w.join(); err != nil {
			logger.Error(w.scope(), "failed to join cleanly: %v", err)
			errs = append(errs, err)
		}
	}

	if sender != nil {
		logger.Info("", "Pool stopped")
	}

	return errors.Join(errs...)
}

// Close は Shutdown を呼ぶ
func (p *Pool) Close() error {
	return p.Shutdown()
}

// Closed はシャットダウンが開始されたかどうかを返す
func (p *Pool) Closed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.sender == nil
}

// Size はワーカー数を返す
func (p *Pool) Size() int {
	return len(p.workers)
}

// Alive は停止していないワーカー数を返す
func (p *Pool) Alive() int {
	n := 0
	for _, w := range p.workers {
		if w.State() != StateStopped {
			n++
		}
	}
	return n
}

// Queued はまだ取り出されていないジョブ数を返す
func (p *Pool) Queued() int {
	return p.rx.Len()
}

// Workers は全ワーカーの状態を ID 順に返す
func (p *Pool) Workers() []WorkerStatus {
	statuses := make([]WorkerStatus, 0, len(p.workers))
	for _, w := range p.workers {
		statuses = append(statuses, WorkerStatus{
			ID:     w.ID(),
			State:  w.State().String(),
			Joined: w.Joined(),
		})
	}
	return statuses
}
