package middleware

import (
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// brotliMinLength is the smallest body worth compressing. Exam payloads
// with dozens of questions clear this easily; small envelopes (saved
// acks, state views) pass through uncompressed.
const brotliMinLength = 1024

// Brotli compresses JSON responses for clients that advertise "br"
// support. Streaming protocols are passed through untouched: SSE needs
// unbuffered writes and the WebSocket handshake must not be wrapped.
func Brotli() gin.HandlerFunc {
	return func(c *gin.Context) {
		if isStreaming(c) || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")

		bw := &brotliResponseWriter{
			ResponseWriter: c.Writer,
			br:             brotli.NewWriterLevel(c.Writer, brotli.DefaultCompression),
		}
		c.Writer = bw

		defer func() {
			if err := bw.drain(); err != nil {
				_ = c.Error(err)
			}
			if bw.encoding {
				bw.br.Close()
			}
		}()

		c.Next()
	}
}

// brotliResponseWriter buffers the response until it is clear whether the
// body is large enough to compress. Small bodies are drained as plain
// bytes; once the threshold is crossed the encoder takes over and the
// Content-Encoding header is committed.
type brotliResponseWriter struct {
	gin.ResponseWriter
	br       *brotli.Writer
	pending  []byte
	commit   sync.Once
	encoding bool
}

func (bw *brotliResponseWriter) Write(data []byte) (int, error) {
	bw.pending = append(bw.pending, data...)
	if len(bw.pending) < brotliMinLength {
		return len(data), nil
	}

	bw.commit.Do(func() {
		bw.encoding = true
		bw.ResponseWriter.Header().Set("Content-Encoding", "br")
		bw.ResponseWriter.Header().Del("Content-Length")
	})

	n, err := bw.br.Write(bw.pending)
	bw.pending = bw.pending[:0]
	return n, err
}

func (bw *brotliResponseWriter) WriteString(s string) (int, error) {
	return bw.Write([]byte(s))
}

// Flush drains any buffered bytes uncompressed and forwards the flush.
// Reached only when a handler flushes before the threshold is crossed.
func (bw *brotliResponseWriter) Flush() {
	if len(bw.pending) > 0 {
		_, _ = bw.ResponseWriter.Write(bw.pending)
		bw.pending = bw.pending[:0]
	}
	bw.ResponseWriter.Flush()
}

func (bw *brotliResponseWriter) drain() error {
	if len(bw.pending) == 0 {
		return nil
	}
	var err error
	if bw.encoding {
		_, err = bw.br.Write(bw.pending)
	} else {
		_, err = bw.ResponseWriter.Write(bw.pending)
	}
	bw.pending = bw.pending[:0]
	return err
}

func isStreaming(c *gin.Context) bool {
	if strings.Contains(c.GetHeader("Accept"), "text/event-stream") {
		return true
	}
	return strings.EqualFold(c.GetHeader("Upgrade"), "websocket")
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		if strings.TrimSpace(strings.ToLower(enc)) == "br" {
			return true
		}
	}
	return false
}
