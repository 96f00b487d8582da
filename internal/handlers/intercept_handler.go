package handlers

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"offline-sync-agent/internal/cachestore"
	"offline-sync-agent/internal/queue"
	"offline-sync-agent/internal/rules"

	"github.com/gin-gonic/gin"
)

const (
	syncScopeHeader = "X-Offline-Sync"
	syncTagHeader   = "X-Offline-Sync-Tag"
)

// Interceptor is the catch-all request handler: reads go through the caching
// strategies, mutating requests inside the sync scope are queued on network
// failure and acknowledged with a synchronous 202.
type Interceptor struct {
	Rules   *rules.Engine
	Fetcher *cachestore.Fetcher
	Queue   *queue.Queue
	Client  *http.Client

	Origin      string
	ScopePrefix string
}

// Handle processes one intercepted request.
func (h *Interceptor) Handle(c *gin.Context) {
	req := c.Request

	if req.Method == http.MethodGet || req.Method == http.MethodHead {
		cat := h.Rules.Classify(req)
		strat := h.Rules.Resolve(req, cat)
		writeStored(c, h.Fetcher.Do(req, strat, cat))
		return
	}

	h.handleMutation(c)
}

func (h *Interceptor) handleMutation(c *gin.Context) {
	req := c.Request
	key := cachestore.CacheKey(req)

	var body []byte
	if req.Body != nil {
		b, err := io.ReadAll(req.Body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
			return
		}
		body = b
	}

	out, err := http.NewRequestWithContext(req.Context(), req.Method, h.Origin+key, bytes.NewReader(body))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	for name, vals := range req.Header {
		if name == "Connection" || name == "Keep-Alive" {
			continue
		}
		out.Header[name] = vals
	}

	resp, err := h.Client.Do(out)
	if err == nil {
		defer resp.Body.Close()
		relay(c, resp)
		return
	}

	// Network failure. Only mutations inside the sync scope are queued; the
	// rest surface the failure to the caller.
	if !h.inScope(req) {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Origin unreachable"})
		return
	}

	tag := req.Header.Get(syncTagHeader)
	if tag == "" {
		tag = "default"
	}
	ok := h.Queue.Enqueue(queue.Request{
		URL:         h.Origin + key,
		Method:      req.Method,
		Headers:     flattenHeader(req.Header),
		Body:        body,
		Credentials: credentialsMode(req),
		Tag:         tag,
	})
	if !ok {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Failed to queue request"})
		return
	}

	// The caller sees success now; the real submission replays later.
	c.JSON(http.StatusAccepted, gin.H{"queued": true, "offline": true})
}

func (h *Interceptor) inScope(req *http.Request) bool {
	if req.Header.Get(syncScopeHeader) != "" {
		return true
	}
	return strings.HasPrefix(req.URL.Path, h.ScopePrefix)
}

func writeStored(c *gin.Context, resp *cachestore.StoredResponse) {
	status := resp.Status
	if resp.Opaque && status == 0 {
		status = http.StatusOK
	}
	for name, vals := range resp.Header {
		for _, v := range vals {
			c.Writer.Header().Add(name, v)
		}
	}
	c.Data(status, resp.Header.Get("Content-Type"), resp.Body)
}

func relay(c *gin.Context, resp *http.Response) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to read origin response"})
		return
	}
	for name, vals := range resp.Header {
		for _, v := range vals {
			c.Writer.Header().Add(name, v)
		}
	}
	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), body)
}

func flattenHeader(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, vals := range h {
		if name == "Connection" || name == "Keep-Alive" || len(vals) == 0 {
			continue
		}
		out[name] = vals[0]
	}
	return out
}

// credentialsMode records whether the capture carried ambient credentials so
// the replay preserves the caller's intent.
func credentialsMode(req *http.Request) string {
	if req.Header.Get("Cookie") != "" || req.Header.Get("Authorization") != "" {
		return "include"
	}
	return "same-origin"
}
