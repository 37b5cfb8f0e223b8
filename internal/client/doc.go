// Package client provides a load generator for the static file server.
//
// A Client sends a fixed number of GET requests to a server and records the
// outcome of each one. Requests are issued from a pool.Pool, so the pool's
// size is the number of concurrent connections.
//
// # Basic Usage
//
//	config := client.DefaultConfig()
//	config.Path = "/sleep"
//	config.Requests = 20
//	config.Concurrency = 4
//
//	result, err := client.New(config).Run(ctx)
//	if err != nil {
//		return err
//	}
//	fmt.Println(result.Report())
//
// # Configuration
//
// The Config struct allows tuning:
//   - Addr: server address
//   - Path: request path
//   - Requests: number of requests to send
//   - Concurrency: pool size (must be at least 1)
//   - Timeout: per request dial and I/O timeout
//
// Any well-formed response counts as a success and is tallied by status
// code in Result.Statuses. Dial errors, timeouts and malformed responses
// count as failures.
package client
