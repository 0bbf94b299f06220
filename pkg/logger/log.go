package logger

import (
	"net/http"
	"sort"
	"strings"
)

// headers whose values never reach a log line
var redactedHeaders = []string{"Authorization", "X-Api-Key", "X-User-Signature"}

func isSensitiveHeader(name string) bool {
	for _, h := range redactedHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}

// SafeHeaders flattens request headers into one log-friendly string
// with credentials redacted. Output is sorted so log lines diff
// cleanly.
func SafeHeaders(r *http.Request) string {
	names := make([]string, 0, len(r.Header))
	for k := range r.Header {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		v := r.Header.Get(k)
		if v == "" {
			continue
		}
		if isSensitiveHeader(k) {
			v = "<redacted>"
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, "; ")
}

// LogRequest logs a concise, safe summary of an incoming request.
func LogRequest(r *http.Request) {
	Info("incoming_request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr, "headers", SafeHeaders(r))
}
