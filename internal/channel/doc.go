// Package channel provides an unbounded hand-off queue with an observable
// closed state.
//
// A call to New returns one Sender and one Receiver sharing the same queue.
// Send never waits for a consumer. Recv blocks until a value is queued or
// the Sender is closed. Values already queued when Close is called are still
// delivered; once the queue is empty every Recv returns ErrDisconnected.
//
//	tx, rx := channel.New[string]()
//	_ = tx.Send("hello")
//	tx.Close()
//
//	v, _ := rx.Recv()   // "hello"
//	_, err := rx.Recv() // channel.ErrDisconnected
//
// Both ends are safe for concurrent use by any number of goroutines.
package channel
