// Package api serves the admin HTTP interface of a running pool server.
//
// Endpoints:
//
//	GET /api/status   pool size, live workers, queue length and request totals
//	GET /api/workers  per-worker state
//	GET /api/metrics  request metrics with latencies in milliseconds
//	GET /metrics      Prometheus exposition (when a Collector is configured)
//	    /ws           WebSocket stream of status snapshots and bus events
//
// Every WebSocket message is a JSON object whose "type" field is either
// "status" or "event".
package api
