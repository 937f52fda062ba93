package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// storedResponse is one cached GET response, replayed verbatim on a hit.
type storedResponse struct {
	status int
	header http.Header
	body   []byte
}

// teeWriter copies everything the handler writes so a 2xx response can be
// stored after the handler chain finished.
type teeWriter struct {
	gin.ResponseWriter
	buf *bytes.Buffer
}

func (w teeWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w teeWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache serves repeated GETs from memory for the given duration. Responses
// are keyed by the full request URI, so the same path with different query
// parameters caches separately. Non-GET requests and non-2xx responses pass
// through untouched.
func Cache(backing *cache.Cache, duration time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.RequestURI
		if hit, ok := backing.Get(key); ok {
			stored := hit.(storedResponse)
			for name, values := range stored.header {
				c.Writer.Header()[name] = values
			}
			c.Writer.WriteHeader(stored.status)
			c.Writer.Write(stored.body)
			c.Abort()
			return
		}

		tee := &teeWriter{buf: bytes.NewBuffer(nil), ResponseWriter: c.Writer}
		c.Writer = tee

		c.Next()

		if status := tee.Status(); status >= 200 && status < 300 {
			backing.Set(key, storedResponse{
				status: status,
				header: tee.Header().Clone(),
				body:   tee.buf.Bytes(),
			}, duration)
		}
	}
}
