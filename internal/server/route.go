package server

import (
	"fmt"
	"strings"
)

const (
	statusOK       = "HTTP/1.1 200 OK"
	statusNotFound = "HTTP/1.1 404 NOT FOUND"

	helloFile    = "hello.html"
	notFoundFile = "404.html"
)

// Route はリクエスト行に対する応答内容
type Route struct {
	StatusLine string
	File       string
	Sleep      bool
}

// Status はステータスコードを返す
func (r Route) Status() string {
	fields := strings.Fields(r.StatusLine)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

// Match はリクエスト行から Route を決定する
func Match(requestLine string) Route {
	switch requestLine {
	case "GET / HTTP/1.1":
		return Route{StatusLine: statusOK, File: helloFile}
	case "GET /sleep HTTP/1.1":
		return Route{StatusLine: statusOK, File: helloFile, Sleep: true}
	default:
		return Route{StatusLine: statusNotFound, File: notFoundFile}
	}
}

// RequestPath はリクエスト行からパス部分を取り出す
func RequestPath(requestLine string) string {
	fields := strings.Fields(requestLine)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

// FormatResponse はステータス行と本文からレスポンスを組み立てる
func FormatResponse(statusLine, contents string) string {
	return fmt.Sprintf("%s\r\nContent-Length: %d\r\n\r\n%s", statusLine, len(contents), contents)
}

// missingFileBody はファイルを読めなかったときの本文
func missingFileBody(filename string) string {
	return fmt.Sprintf("Error parsing %s. Is the name correct?", filename)
}
