package pool

import (
	"errors"
	"fmt"
)

var (
	// ErrPoolClosed はシャットダウン後にジョブが投入されたことを示す
	ErrPoolClosed = errors.New("pool: job submitted after shutdown")
	// ErrNilJob は nil のジョブが投入されたことを示す
	ErrNilJob = errors.New("pool: nil job")
)

// PoolCreationError はサイズ 0 でプールを作成しようとしたことを示す
type PoolCreationError struct{}

func (PoolCreationError) Error() string {
	return "Thread pool not created"
}

// WorkerPanicError はジョブの panic によってワーカーが終了したことを示す
type WorkerPanicError struct {
	WorkerID int
	Value    any
	Stack    []byte
}

func (e *WorkerPanicError) Error() string {
	return fmt.Sprintf("worker %d terminated by panicking job: %v", e.WorkerID, e.Value)
}

// Unwrap は panic 値が error の場合にそれを返す
func (e *WorkerPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}
