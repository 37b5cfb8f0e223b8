package pool

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"poolserve/internal/channel"
	"poolserve/internal/logger"
)

// State はワーカーの状態を表す
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateRunning:
		return "Running"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// sharedReceiver は全ワーカーで共有する受信側。
// ロックはデキューの間だけ保持し、ジョブ実行中は保持しない
type sharedReceiver struct {
	mu sync.Mutex
	rx *channel.Receiver[Job]
}

func (s *sharedReceiver) recv() (Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rx.Recv()
}

// handle はワーカーゴルーチンの終了を待つためのハンドル
type handle struct {
	done chan struct{}
	err  error
}

func (h *handle) join() error {
	<-h.done
	return h.err
}

// Worker は ID を持つ単一のゴルーチン
type Worker struct {
	id     int
	state  atomic.Int32
	joined atomic.Bool

	// thread は join 時に取り出され nil になる
	thread *handle
}

// newWorker はワーカーを作成し、すぐにゴルーチンを起動する
func newWorker(id int, rx *sharedReceiver, hooks Hooks, ready *sync.WaitGroup) *Worker {
	w := &Worker{id: id}
	h := &handle{done: make(chan struct{})}
	w.thread = h

	go func() {
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				h.err = &WorkerPanicError{WorkerID: id, Value: r, Stack: debug.Stack()}
				logger.Error(w.scope(), "job panicked, worker terminated: %v", r)
			}
			hooks.workerExit(id, h.err)
			w.state.Store(int32(StateStopped))
		}()

		ready.Done()
		w.run(rx, hooks)
	}()

	return w
}

// run はチャネルが閉じられるまでジョブを取り出して実行する
func (w *Worker) run(rx *sharedReceiver, hooks Hooks) {
	scope := w.scope()
	logger.Debug(scope, "started")

	for {
		job, err := rx.recv()
		if err != nil {
			logger.Debug(scope, "disconnected; shutting down")
			return
		}

		w.state.Store(int32(StateRunning))
		logger.Debug(scope, "got a job; executing")
		hooks.start(w.id)

		start := time.Now()
		job.Run()

		hooks.finish(w.id, time.Since(start))
		w.state.Store(int32(StateIdle))
	}
}

// join はゴルーチンの終了を待つ。既に join 済みなら何もしない
func (w *Worker) join() error {
	h := w.thread
	if h == nil {
		return nil
	}
	w.thread = nil

	err := h.join()
	w.joined.Store(true)
	return err
}

// ID はワーカー ID を返す
func (w *Worker) ID() int {
	return w.id
}

// State は現在の状態を返す
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Joined は join 済みかどうかを返す
func (w *Worker) Joined() bool {
	return w.joined.Load()
}

func (w *Worker) scope() string {
	return fmt.Sprintf("worker-%d", w.id)
}
