package control

import (
	"context"
	"log"
	"strings"

	"offline-sync-agent/internal/queue"
)

// MessageType enumerates the control-channel message kinds.
type MessageType string

const (
	SkipWaiting  MessageType = "SKIP_WAITING"
	Preload      MessageType = "PRELOAD"
	FlushQueue   MessageType = "FLUSH_QUEUE"
	QueueRequest MessageType = "QUEUE_REQUEST"
)

// Message is one control-channel request.
type Message struct {
	Type MessageType `json:"type"`

	// Preload payload.
	URLs []string `json:"urls,omitempty"`

	// FlushQueue payload.
	Tag string `json:"tag,omitempty"`

	// QueueRequest payload: a direct enqueue for callers who already know
	// they are offline.
	Request *QueuePayload `json:"request,omitempty"`
}

// QueuePayload mirrors queue.Request on the wire with a string body.
type QueuePayload struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers"`
	Body    string            `json:"body"`
	Tag     string            `json:"tag"`
}

// Result is the boolean outcome reported back to the caller. Handler
// failures are swallowed, never raised across the channel boundary.
type Result struct {
	OK      bool `json:"ok"`
	Flushed int  `json:"flushed,omitempty"`
	Warmed  int  `json:"warmed,omitempty"`
}

// Channel dispatches control messages to the engine's components. The
// collaborators are injected at construction; a nil collaborator makes the
// corresponding message kind report failure.
type Channel struct {
	// Warm preloads the runtime cache for a URL list and trims to bound.
	Warm func(ctx context.Context, urls []string) int

	// Drain runs one out-of-band flush cycle for a tag.
	Drain func(ctx context.Context, tag string) int

	// Queue receives direct enqueues.
	Queue *queue.Queue

	// Origin resolves relative QueueRequest URLs into replayable absolute
	// ones, e.g. "http://app:3000".
	Origin string

	// OnSkipWaiting performs the activation handoff.
	OnSkipWaiting func()
}

// Dispatch handles one message and reports a boolean outcome. Panics inside
// handlers are swallowed and reported as failure.
func (c *Channel) Dispatch(ctx context.Context, msg Message) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("control: %s handler panic: %v", msg.Type, r)
			res = Result{OK: false}
		}
	}()

	switch msg.Type {
	case SkipWaiting:
		if c.OnSkipWaiting == nil {
			return Result{OK: false}
		}
		c.OnSkipWaiting()
		return Result{OK: true}

	case Preload:
		if c.Warm == nil || len(msg.URLs) == 0 {
			return Result{OK: false}
		}
		warmed := c.Warm(ctx, msg.URLs)
		return Result{OK: warmed > 0, Warmed: warmed}

	case FlushQueue:
		if c.Drain == nil {
			return Result{OK: false}
		}
		tag := msg.Tag
		if tag == "" {
			tag = "default"
		}
		return Result{OK: true, Flushed: c.Drain(ctx, tag)}

	case QueueRequest:
		if c.Queue == nil || msg.Request == nil {
			return Result{OK: false}
		}
		reqURL := msg.Request.URL
		if strings.HasPrefix(reqURL, "/") && c.Origin != "" {
			reqURL = strings.TrimSuffix(c.Origin, "/") + reqURL
		}
		ok := c.Queue.Enqueue(queue.Request{
			URL:     reqURL,
			Method:  msg.Request.Method,
			Headers: msg.Request.Headers,
			Body:    []byte(msg.Request.Body),
			Tag:     msg.Request.Tag,
		})
		return Result{OK: ok}

	default:
		return Result{OK: false}
	}
}
