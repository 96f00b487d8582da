package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"offline-sync-agent/internal/models"
	"offline-sync-agent/internal/queue"
	"offline-sync-agent/internal/realtime"
)

const replayHeader = "X-Offline-Replay"

// Processor drains the mutation queue one tag at a time. A cycle is
// Idle -> Draining -> Idle: purge expired items, load the tag earliest-due
// first, replay sequentially, then broadcast a completion event when
// anything flushed. Cycles for different tags share no mutable state and may
// run concurrently.
type Processor struct {
	Queue  *queue.Queue
	Client *http.Client
	Hub    *realtime.Hub

	// Now is injected for deterministic scheduling tests; defaults to
	// time.Now when nil.
	Now func() time.Time
}

// completionEvent is broadcast over the control channel after a cycle that
// replayed at least one item.
type completionEvent struct {
	Type    string `json:"type"`
	Tag     string `json:"tag"`
	Flushed int    `json:"flushed"`
}

// Drain runs one flush cycle for a tag and returns how many items were
// successfully replayed. Items scheduled in the future are left for a later
// cycle; expired items are dropped without a replay attempt.
func (p *Processor) Drain(ctx context.Context, tag string) int {
	p.Queue.PurgeExpired()

	items, err := p.Queue.ItemsForTag(tag)
	if err != nil {
		return 0
	}

	now := p.now()
	flushed := 0
	for i := range items {
		item := &items[i]
		if item.Expired(now) {
			_ = p.Queue.Delete(item.ID)
			continue
		}
		if item.NextAttemptAt != nil && item.NextAttemptAt.After(now) {
			continue
		}

		status, err := p.replay(ctx, item)
		switch {
		case err != nil:
			// Transient network failure: reschedule with backoff.
			_ = p.Queue.MarkFailed(item)
		case status >= 200 && status < 300:
			_ = p.Queue.MarkSucceeded(item.ID)
			flushed++
		case status >= 400 && status < 500:
			// A malformed request will never succeed; drop it for good.
			_ = p.Queue.Delete(item.ID)
		default:
			_ = p.Queue.MarkFailed(item)
		}
	}

	if flushed > 0 && p.Hub != nil {
		evt := completionEvent{Type: "sync-complete", Tag: tag, Flushed: flushed}
		if b, err := json.Marshal(evt); err == nil {
			p.Hub.Broadcast(tag, b)
		}
	}
	return flushed
}

// replay re-issues the captured request with its original method, headers
// and body, plus the replay marker. The idempotency key was injected at
// enqueue time and travels with the stored headers.
func (p *Processor) replay(ctx context.Context, item *models.QueueItem) (int, error) {
	req, err := http.NewRequestWithContext(ctx, item.Method, item.URL, bytes.NewReader(item.Body))
	if err != nil {
		// Unbuildable request; surface as a permanent client error.
		return http.StatusBadRequest, nil
	}

	var headers map[string]string
	if item.Headers != "" {
		if err := json.Unmarshal([]byte(item.Headers), &headers); err != nil {
			log.Printf("syncer: bad stored headers for item %d: %v", item.ID, err)
		}
	}
	for name, val := range headers {
		req.Header.Set(name, val)
	}
	req.Header.Set(replayHeader, "1")

	resp, err := p.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

func (p *Processor) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}
