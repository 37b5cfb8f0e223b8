// Package server accepts TCP connections and answers a tiny subset of
// HTTP/1.1 with static files, running every connection as a pool job.
//
// Only the request line is inspected:
//
//	GET / HTTP/1.1      -> 200, hello.html
//	GET /sleep HTTP/1.1 -> 200, hello.html after Config.SleepDelay
//	anything else       -> 404, 404.html
package server
