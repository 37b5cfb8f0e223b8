package channel

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func TestSendRecvOrder(t *testing.T) {
	tx, rx := New[int]()

	for i := range 5 {
		if err := tx.Send(i); err != nil {
			t.Fatalf("Send(%d) failed: %v", i, err)
		}
	}
	if rx.Len() != 5 {
		t.Errorf("expected 5 queued, got %d", rx.Len())
	}

	for i := range 5 {
		v, err := rx.Recv()
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		if v != i {
			t.Errorf("expected %d, got %d", i, v)
		}
	}
}

func TestSendAfterClose(t *testing.T) {
	tx, _ := New[int]()
	tx.Close()
	// Double close should be no-op
	tx.Close()

	if !tx.Closed() {
		t.Error("expected sender to report closed")
	}
	if err := tx.Send(1); !errors.Is(err, ErrDisconnected) {
		t.Errorf("expected ErrDisconnected, got %v", err)
	}
}

func TestRecvDrainsBeforeDisconnect(t *testing.T) {
	tx, rx := New[string]()
	_ = tx.Send("a")
	_ = tx.Send("b")
	tx.Close()

	for _, want := range []string{"a", "b"} {
		got, err := rx.Recv()
		if err != nil {
			t.Fatalf("expected %q, got error %v", want, err)
		}
		if got != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}

	for range 3 {
		if _, err := rx.Recv(); !errors.Is(err, ErrDisconnected) {
			t.Errorf("expected ErrDisconnected, got %v", err)
		}
	}
}

func TestCloseWakesBlockedReceivers(t *testing.T) {
	tx, rx := New[int]()

	const receivers = 4
	errs := make(chan error, receivers)
	for range receivers {
		go func() {
			_, err := rx.Recv()
			errs <- err
		}()
	}

	// Let the receivers block
	time.Sleep(20 * time.Millisecond)
	tx.Close()

	for range receivers {
		select {
		case err := <-errs:
			if !errors.Is(err, ErrDisconnected) {
				t.Errorf("expected ErrDisconnected, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for receivers to observe close")
		}
	}
}

func TestConcurrentSendRecvExactlyOnce(t *testing.T) {
	tx, rx := New[int]()

	const producers = 8
	const perProducer = 500
	total := producers * perProducer

	var seenMu sync.Mutex
	seen := make(map[int]int, total)

	var consumers sync.WaitGroup
	for range 4 {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				v, err := rx.Recv()
				if err != nil {
					return
				}
				seenMu.Lock()
				seen[v]++
				seenMu.Unlock()
			}
		}()
	}

	var senders sync.WaitGroup
	for p := range producers {
		senders.Add(1)
		go func() {
			defer senders.Done()
			for i := range perProducer {
				_ = tx.Send(p*perProducer + i)
			}
		}()
	}

	senders.Wait()
	tx.Close()
	consumers.Wait()

	if len(seen) != total {
		t.Fatalf("expected %d distinct values, got %d", total, len(seen))
	}
	for v, n := range seen {
		if n != 1 {
			t.Errorf("value %d delivered %d times", v, n)
		}
	}
}
