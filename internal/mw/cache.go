package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// CacheHeader reports whether a response was served from the cache.
const CacheHeader = "X-Cache"

type snapshot struct {
	contentType string
	body        []byte
}

type recordingWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache serves repeated GETs of reference data from memory. Only 200 responses are
// kept. Nothing that depends on case state may be routed through it.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.URL.RequestURI()
		if v, found := store.Get(key); found {
			snap := v.(snapshot)
			c.Header(CacheHeader, "HIT")
			c.Data(http.StatusOK, snap.contentType, snap.body)
			c.Abort()
			return
		}

		c.Header(CacheHeader, "MISS")
		rw := recordingWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = rw
		c.Next()

		if rw.Status() == http.StatusOK {
			store.Set(key, snapshot{
				contentType: rw.Header().Get("Content-Type"),
				body:        rw.body.Bytes(),
			}, ttl)
		}
	}
}
