package queue

import (
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"offline-sync-agent/internal/models"

	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"
)

const idempotencyKeyHeader = "Idempotency-Key"

// Request is a mutating request captured for later replay.
type Request struct {
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
	Body        []byte            `json:"body"`
	Credentials string            `json:"credentials"`
	Tag         string            `json:"tag"`
}

// Queue is the durable store of pending mutations. Enqueue is idempotent per
// (fingerprint, tag): a duplicate submission merges into the existing record.
// All operations report failure as a boolean or error value; nothing panics
// across this boundary.
type Queue struct {
	db *gorm.DB

	maxEntries   int
	maxBodyBytes int
	maxAge       time.Duration
	maxAttempts  int
	delays       []time.Duration

	// now is injected for deterministic scheduling tests.
	now func() time.Time
}

// Options bounds the queue; zero values fall back to the documented defaults.
type Options struct {
	MaxEntries   int
	MaxBodyBytes int
	MaxAge       time.Duration
	MaxAttempts  int
	RetryDelays  []time.Duration
}

// New constructs a Queue over the given database handle.
func New(db *gorm.DB, opts Options) *Queue {
	if opts.MaxEntries < 1 {
		opts.MaxEntries = 200
	}
	if opts.MaxBodyBytes < 1 {
		opts.MaxBodyBytes = 256 * 1024
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = 7 * 24 * time.Hour
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 5
	}
	if len(opts.RetryDelays) == 0 {
		opts.RetryDelays = []time.Duration{
			30 * time.Second, 120 * time.Second, 600 * time.Second,
			1800 * time.Second, 3600 * time.Second,
		}
	}
	return &Queue{
		db:           db,
		maxEntries:   opts.MaxEntries,
		maxBodyBytes: opts.MaxBodyBytes,
		maxAge:       opts.MaxAge,
		maxAttempts:  opts.MaxAttempts,
		delays:       opts.RetryDelays,
		now:          time.Now,
	}
}

// Fingerprint returns the deterministic dedup hash of (method, url, body).
func Fingerprint(method, url string, body []byte) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(strings.ToUpper(method)))
	h.Write([]byte{0})
	h.Write([]byte(url))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// Enqueue persists a mutation for replay. An active item with the same
// (fingerprint, tag) is refreshed in place — body, headers and expiry are
// replaced — instead of inserting a duplicate. Oversized bodies are rejected
// with no side effect. Returns whether the mutation is durably queued.
func (q *Queue) Enqueue(r Request) bool {
	if r.URL == "" || r.Method == "" {
		return false
	}
	// Replay needs an absolute target; a bare path can never be dispatched.
	if !replayableURL(r.URL) {
		return false
	}
	if len(r.Body) > q.maxBodyBytes {
		return false
	}
	if r.Tag == "" {
		r.Tag = "default"
	}
	if r.Credentials == "" {
		r.Credentials = "same-origin"
	}

	fp := Fingerprint(r.Method, r.URL, r.Body)
	if r.Headers == nil {
		r.Headers = map[string]string{}
	}
	if !hasIdempotencyKey(r.Headers) {
		// Deterministic key so the origin can deduplicate replays itself.
		r.Headers[idempotencyKeyHeader] = fp[:32]
	}
	headers, err := json.Marshal(r.Headers)
	if err != nil {
		return false
	}

	now := q.now()

	var existing models.QueueItem
	err = q.db.Where("fingerprint = ? AND tag = ? AND expires_at > ?", fp, r.Tag, now).
		First(&existing).Error
	if err == nil {
		existing.Body = r.Body
		existing.Headers = string(headers)
		existing.Credentials = r.Credentials
		existing.ExpiresAt = now.Add(q.maxAge)
		return q.db.Save(&existing).Error == nil
	}

	next := now
	item := models.QueueItem{
		URL:           r.URL,
		Method:        strings.ToUpper(r.Method),
		Headers:       string(headers),
		Body:          r.Body,
		Credentials:   r.Credentials,
		Attempts:      0,
		NextAttemptAt: &next,
		ExpiresAt:     now.Add(q.maxAge),
		Tag:           r.Tag,
		Fingerprint:   fp,
	}
	if err := q.db.Create(&item).Error; err != nil {
		return false
	}

	q.enforceBound()
	return true
}

// enforceBound evicts the oldest-touched items once the queue exceeds its
// size bound, favoring newest work under back-pressure.
func (q *Queue) enforceBound() {
	var count int64
	if err := q.db.Model(&models.QueueItem{}).Count(&count).Error; err != nil {
		return
	}
	excess := int(count) - q.maxEntries
	if excess <= 0 {
		return
	}
	var ids []uint
	if err := q.db.Model(&models.QueueItem{}).
		Order("COALESCE(updated_at, created_at) asc").
		Limit(excess).
		Pluck("id", &ids).Error; err != nil {
		return
	}
	_ = q.db.Delete(&models.QueueItem{}, ids).Error
}

// ItemsForTag loads a tag's items ordered earliest-due first, establishing
// the replay order for a flush cycle.
func (q *Queue) ItemsForTag(tag string) ([]models.QueueItem, error) {
	var items []models.QueueItem
	err := q.db.Where("tag = ?", tag).
		Order("COALESCE(next_attempt_at, created_at) asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// DequeueDue returns the tag's items whose scheduled attempt time has
// arrived, earliest-due first.
func (q *Queue) DequeueDue(tag string) ([]models.QueueItem, error) {
	items, err := q.ItemsForTag(tag)
	if err != nil {
		return nil, err
	}
	now := q.now()
	due := items[:0]
	for _, it := range items {
		if it.NextAttemptAt == nil || !it.NextAttemptAt.After(now) {
			due = append(due, it)
		}
	}
	return due, nil
}

// MarkSucceeded deletes a replayed item.
func (q *Queue) MarkSucceeded(id uint) error {
	return q.db.Delete(&models.QueueItem{}, id).Error
}

// Delete removes an item without success semantics (terminal 4xx, expiry).
func (q *Queue) Delete(id uint) error {
	return q.db.Delete(&models.QueueItem{}, id).Error
}

// MarkFailed records a failed replay attempt: the item is deleted once the
// attempts budget is spent, otherwise rescheduled per the ascending backoff
// table.
func (q *Queue) MarkFailed(item *models.QueueItem) error {
	item.Attempts++
	if item.Attempts >= q.maxAttempts {
		return q.db.Delete(&models.QueueItem{}, item.ID).Error
	}
	idx := item.Attempts - 1
	if idx >= len(q.delays) {
		idx = len(q.delays) - 1
	}
	next := q.now().Add(q.delays[idx])
	item.NextAttemptAt = &next
	return q.db.Save(item).Error
}

// PurgeExpired deletes all items whose lifetime has passed, regardless of
// their retry schedule. Returns how many were dropped.
func (q *Queue) PurgeExpired() int {
	res := q.db.Where("expires_at <= ?", q.now()).Delete(&models.QueueItem{})
	if res.Error != nil {
		return 0
	}
	return int(res.RowsAffected)
}

// Len returns the current item count.
func (q *Queue) Len() int {
	var count int64
	if err := q.db.Model(&models.QueueItem{}).Count(&count).Error; err != nil {
		return 0
	}
	return int(count)
}

// SetNow overrides the clock; used by tests.
func (q *Queue) SetNow(now func() time.Time) { q.now = now }

// MaxAttempts returns the configured attempts budget.
func (q *Queue) MaxAttempts() int { return q.maxAttempts }

func replayableURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func hasIdempotencyKey(h map[string]string) bool {
	for name := range h {
		if strings.EqualFold(name, idempotencyKeyHeader) {
			return true
		}
	}
	return false
}
