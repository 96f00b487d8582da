package syncer

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"offline-sync-agent/internal/models"
	"offline-sync-agent/internal/queue"
	"offline-sync-agent/internal/realtime"
	"offline-sync-agent/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// recordingClient captures hub broadcasts for assertions.
type recordingClient struct {
	mu       sync.Mutex
	messages [][]byte
}

func (c *recordingClient) Send(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
	return true
}

func (c *recordingClient) Close() {}

func (c *recordingClient) last() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.messages) == 0 {
		return nil
	}
	return c.messages[len(c.messages)-1]
}

func newTestProcessor(t *testing.T, opts queue.Options) (*Processor, *queue.Queue, *gorm.DB) {
	t.Helper()
	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	q := queue.New(db, opts)
	p := &Processor{
		Queue:  q,
		Client: &http.Client{Timeout: 2 * time.Second},
		Hub:    realtime.NewHub(),
	}
	return p, q, db
}

func TestDrain_FailThenSucceedScenario(t *testing.T) {
	p, q, db := newTestProcessor(t, queue.Options{
		RetryDelays: []time.Duration{30 * time.Second, 120 * time.Second},
	})

	base := time.Now().Truncate(time.Second)
	q.SetNow(func() time.Time { return base })
	p.Now = func() time.Time { return base }

	listener := &recordingClient{}
	p.Hub.Register("default", listener)

	// Reserve an address, then close it so the first replay hits a dead port.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	require.True(t, q.Enqueue(queue.Request{
		URL:    "http://" + addr + "/api/orders",
		Method: "POST",
		Body:   []byte(`{"sku":"A1"}`),
		Tag:    "default",
	}))

	require.Equal(t, 0, p.Drain(context.Background(), "default"))

	var item models.QueueItem
	require.NoError(t, db.First(&item).Error)
	require.Equal(t, 1, item.Attempts)
	require.WithinDuration(t, base.Add(30*time.Second), *item.NextAttemptAt, time.Second)
	require.Nil(t, listener.last(), "no broadcast when nothing flushed")

	// The origin comes back on the same address.
	var gotReplay, gotKey atomic.Bool
	l2, err := net.Listen("tcp", addr)
	require.NoError(t, err)
	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReplay.Store(r.Header.Get("X-Offline-Replay") == "1")
		gotKey.Store(r.Header.Get("Idempotency-Key") != "")
		w.WriteHeader(http.StatusOK)
	})}
	go srv.Serve(l2)
	defer srv.Close()

	// Not due yet: the item is skipped, left for a later cycle.
	require.Equal(t, 0, p.Drain(context.Background(), "default"))
	require.Equal(t, 1, q.Len())

	// 30 seconds later the backoff has elapsed.
	later := base.Add(31 * time.Second)
	p.Now = func() time.Time { return later }
	q.SetNow(func() time.Time { return later })

	require.Equal(t, 1, p.Drain(context.Background(), "default"))
	require.Equal(t, 0, q.Len())
	require.True(t, gotReplay.Load(), "replay carries the marker header")
	require.True(t, gotKey.Load(), "replay carries the idempotency key")

	var evt struct {
		Type    string `json:"type"`
		Tag     string `json:"tag"`
		Flushed int    `json:"flushed"`
	}
	require.NoError(t, json.Unmarshal(listener.last(), &evt))
	require.Equal(t, "sync-complete", evt.Type)
	require.Equal(t, "default", evt.Tag)
	require.Equal(t, 1, evt.Flushed)
}

func TestDrain_Terminal4xxDiscardsImmediately(t *testing.T) {
	p, q, _ := newTestProcessor(t, queue.Options{MaxAttempts: 5})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	require.True(t, q.Enqueue(queue.Request{URL: srv.URL + "/api/gone", Method: "POST", Tag: "default"}))

	require.Equal(t, 0, p.Drain(context.Background(), "default"))
	require.Equal(t, 0, q.Len(), "404 deletes the item on the first attempt, budget notwithstanding")
}

func TestDrain_ServerErrorReschedules(t *testing.T) {
	p, q, db := newTestProcessor(t, queue.Options{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	require.True(t, q.Enqueue(queue.Request{URL: srv.URL + "/api/x", Method: "POST", Tag: "default"}))
	require.Equal(t, 0, p.Drain(context.Background(), "default"))

	var item models.QueueItem
	require.NoError(t, db.First(&item).Error)
	require.Equal(t, 1, item.Attempts, "5xx counts as transient and reschedules")
}

func TestDrain_ExpiryBeatsSchedule(t *testing.T) {
	p, q, db := newTestProcessor(t, queue.Options{MaxAge: time.Minute})

	base := time.Now()
	q.SetNow(func() time.Time { return base })
	require.True(t, q.Enqueue(queue.Request{URL: "http://127.0.0.1:1/api/x", Method: "POST", Tag: "default"}))

	// Push the retry schedule into the far future, then let the item expire.
	future := base.Add(time.Hour)
	require.NoError(t, db.Model(&models.QueueItem{}).Where("1 = 1").
		Update("next_attempt_at", future).Error)

	expired := base.Add(2 * time.Minute)
	q.SetNow(func() time.Time { return expired })
	p.Now = func() time.Time { return expired }

	require.Equal(t, 0, p.Drain(context.Background(), "default"))
	require.Equal(t, 0, q.Len(), "expired item dropped even though its retry is not due")
}

func TestDrain_TagsAreIndependent(t *testing.T) {
	p, q, _ := newTestProcessor(t, queue.Options{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	require.True(t, q.Enqueue(queue.Request{URL: srv.URL + "/api/a", Method: "POST", Tag: "alpha"}))
	require.True(t, q.Enqueue(queue.Request{URL: srv.URL + "/api/b", Method: "POST", Tag: "beta"}))

	require.Equal(t, 1, p.Drain(context.Background(), "alpha"))
	require.Equal(t, 1, q.Len(), "draining one tag leaves the other untouched")
	require.Equal(t, 1, p.Drain(context.Background(), "beta"))
	require.Equal(t, 0, q.Len())
}
