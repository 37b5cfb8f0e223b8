package channel

import (
	"errors"
	"sync"
)

// ErrDisconnected は送信側が閉じられたことを示す
var ErrDisconnected = errors.New("channel disconnected")

// queue は送信側と受信側が共有する状態
type queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
}

// Sender はチャネルの送信側
type Sender[T any] struct {
	q *queue[T]
}

// Receiver はチャネルの受信側
type Receiver[T any] struct {
	q *queue[T]
}

// New は送信側と受信側のペアを作成する
func New[T any]() (*Sender[T], *Receiver[T]) {
	q := &queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return &Sender[T]{q: q}, &Receiver[T]{q: q}
}

// Send は値をキューに追加する。受信側を待たずに戻る
func (s *Sender[T]) Send(v T) error {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()

	if s.q.closed {
		return ErrDisconnected
	}
	s.q.items = append(s.q.items, v)
	s.q.cond.Signal()
	return nil
}

// Close はチャネルを閉じ、待機中の全受信者を起こす
func (s *Sender[T]) Close() {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()

	if s.q.closed {
		return
	}
	s.q.closed = true
	s.q.cond.Broadcast()
}

// Closed は閉じられているかどうかを返す
func (s *Sender[T]) Closed() bool {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()
	return s.q.closed
}

// Recv は次の値を受け取るまでブロックする。
// 閉じられた後もキューに残った値は返し、空になってから ErrDisconnected を返す
func (r *Receiver[T]) Recv() (T, error) {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()

	for len(r.q.items) == 0 && !r.q.closed {
		r.q.cond.Wait()
	}

	var zero T
	if len(r.q.items) == 0 {
		return zero, ErrDisconnected
	}

	v := r.q.items[0]
	r.q.items[0] = zero
	r.q.items = r.q.items[1:]
	if len(r.q.items) == 0 {
		r.q.items = nil
	}
	return v, nil
}

// Len はキューに残っている値の数を返す
func (r *Receiver[T]) Len() int {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	return len(r.q.items)
}
