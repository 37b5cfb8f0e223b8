// Package pool provides a fixed-size goroutine pool for fire-and-forget jobs.
//
// Build spawns every worker up front. All workers share one receiving end of
// an unbounded queue behind a mutex; the mutex is held only while a worker
// dequeues, never while it runs a job, so a long job on one worker does not
// stop the others from picking up work.
//
// # Basic Usage
//
//	p, err := pool.Build(4) // 4 workers
//	if err != nil {
//	    return err // pool.PoolCreationError when size is 0
//	}
//	defer p.Close()
//
//	for i := 0; i < 100; i++ {
//	    p.Execute(func() {
//	        // do work
//	    })
//	}
//
// # Configuration
//
// Use BuildWithConfig to observe the pool lifecycle:
//
//	config := pool.Config{
//	    Size: 8,
//	    Hooks: pool.Hooks{
//	        OnFinish: func(id int, d time.Duration) { ... },
//	    },
//	}
//	p, err := pool.BuildWithConfig(config)
//
// # Shutdown
//
// Shutdown (or Close) first closes the queue, then joins every worker in ID
// order. Jobs already submitted still run before the workers exit. Calling
// Shutdown again is a no-op. Execute after Shutdown panics with
// ErrPoolClosed; Submit returns it instead.
//
// Jobs must not call Shutdown on the pool that runs them; the worker would
// wait on itself.
//
// # Panicking Jobs
//
// The pool does not turn a panicking job into an error result. The panic
// ends the goroutine of the worker that ran it, the worker is Stopped for
// good and the pool carries on with one worker fewer. Workers are not
// respawned. The panic is logged, passed to Hooks.OnWorkerExit as a
// *WorkerPanicError, and returned again from Shutdown when that worker is
// joined.
package pool
