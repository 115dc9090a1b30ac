// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gitlab-rag/indexer/internal/logger"
)

// TrafficLogger builds a middleware that logs HTTP request entry and
// exit through log. log may be nil, in which case the middleware still
// wraps the response writer for SSE but logs nothing.
func TrafficLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Skip logging for the health check to reduce noise.
			skipPaths := []string{"/api/v1/health"}
			shouldLog := true
			for _, path := range skipPaths {
				if strings.HasPrefix(r.URL.Path, path) {
					shouldLog = false
					break
				}
			}

			if shouldLog && log != nil {
				log.Printf("[HTTP] -> %s %s", r.Method, r.URL.Path)
			}

			// Wrap ResponseWriter to capture status code.
			// Preserve Flusher interface for SSE streams.
			var rw http.ResponseWriter
			if flusher, ok := w.(http.Flusher); ok {
				rw = &responseWriterWithFlush{
					responseWriter: responseWriter{ResponseWriter: w, statusCode: http.StatusOK},
					Flusher:        flusher,
				}
			} else {
				rw = &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			}

			next.ServeHTTP(rw, r)

			duration := time.Since(start)

			if shouldLog && log != nil {
				var statusCode int
				if rwWithFlush, ok := rw.(*responseWriterWithFlush); ok {
					statusCode = rwWithFlush.statusCode
				} else if rwBasic, ok := rw.(*responseWriter); ok {
					statusCode = rwBasic.statusCode
				} else {
					statusCode = http.StatusOK
				}
				log.Printf("[HTTP] <- %d (%s) %s %s", statusCode, duration, r.Method, r.URL.Path)
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// responseWriterWithFlush wraps ResponseWriter and preserves Flusher interface
type responseWriterWithFlush struct {
	responseWriter
	http.Flusher
}

func (rw *responseWriterWithFlush) Flush() {
	rw.Flusher.Flush()
}

