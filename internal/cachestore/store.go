package cachestore

import (
	"encoding/json"
	"net/http"
	"time"

	"offline-sync-agent/internal/cache"
	"offline-sync-agent/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StoredResponse is the cached representation of an upstream response.
type StoredResponse struct {
	Status int
	Header http.Header
	Body   []byte

	// Opaque marks a cross-origin response; it is cacheable even though its
	// real status is not visible.
	Opaque bool
}

// Store is the durable runtime response cache: opaque bodies keyed by URL
// plus a side metadata table (url -> cachedAt) driving TTL decisions. All
// failures are swallowed — reads degrade to misses, writes to no-ops — so a
// broken store never takes the request path down with it.
//
// A small in-memory TTL layer fronts the durable table so repeated hits
// within one process lifetime skip the database.
type Store struct {
	db  *gorm.DB
	hot *cache.TTL[string, *StoredResponse]

	maxEntries int
	maxAge     time.Duration

	now func() time.Time
}

// NewStore constructs a Store bound to the given database handle.
func NewStore(db *gorm.DB, maxEntries int, maxAge time.Duration) *Store {
	return &Store{
		db:         db,
		hot:        cache.NewTTL[string, *StoredResponse](),
		maxEntries: maxEntries,
		maxAge:     maxAge,
		now:        time.Now,
	}
}

// Read returns the stored response for a URL, or nil when absent. A read
// through an unavailable store is reported as a miss.
func (s *Store) Read(url string) *StoredResponse {
	if resp, ok := s.hot.Get(url); ok {
		return resp
	}

	var entry models.CacheEntry
	if err := s.db.Where("url = ?", url).First(&entry).Error; err != nil {
		return nil
	}

	resp := &StoredResponse{
		Status: entry.Status,
		Header: decodeHeader(entry.Headers),
		Body:   entry.Body,
		Opaque: entry.Opaque,
	}
	s.hot.Set(url, resp, s.maxAge)
	return resp
}

// Write stores the representation if it is cacheable (HTTP success, or an
// opaque cross-origin response) and refreshes the metadata timestamp. A
// rewrite of an existing URL keeps its original insertion position.
func (s *Store) Write(url string, resp *StoredResponse) {
	if resp == nil || !cacheable(resp) {
		return
	}

	entry := models.CacheEntry{
		URL:     url,
		Status:  resp.Status,
		Headers: encodeHeader(resp.Header),
		Body:    resp.Body,
		Opaque:  resp.Opaque,
	}
	if err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		UpdateAll: true,
	}).Create(&entry).Error; err != nil {
		return
	}

	meta := models.CacheMeta{URL: url, CachedAt: s.now()}
	_ = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "url"}},
		UpdateAll: true,
	}).Create(&meta).Error

	s.hot.Set(url, resp, s.maxAge)
}

// IsFresh reports whether the URL's metadata timestamp is within maxAge.
// A missing or unreadable timestamp counts as fresh (fail-open), so entries
// are not discarded just because metadata is unavailable.
func (s *Store) IsFresh(url string, maxAge time.Duration) bool {
	var meta models.CacheMeta
	if err := s.db.Where("url = ?", url).First(&meta).Error; err != nil {
		return true
	}
	return s.now().Sub(meta.CachedAt) <= maxAge
}

// Trim deletes oldest-inserted entries until the store holds at most
// maxEntries, removing their metadata in lock-step. Insertion order is the
// eviction order (FIFO), not recency of access.
func (s *Store) Trim(maxEntries int) {
	if maxEntries < 1 {
		return
	}
	var count int64
	if err := s.db.Model(&models.CacheEntry{}).Count(&count).Error; err != nil {
		return
	}
	excess := int(count) - maxEntries
	if excess <= 0 {
		return
	}

	var victims []models.CacheEntry
	if err := s.db.Select("id", "url").Order("id asc").Limit(excess).Find(&victims).Error; err != nil {
		return
	}
	for _, v := range victims {
		if err := s.db.Delete(&models.CacheEntry{}, v.ID).Error; err != nil {
			continue
		}
		_ = s.db.Where("url = ?", v.URL).Delete(&models.CacheMeta{}).Error
		s.hot.Delete(v.URL)
	}
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	var count int64
	if err := s.db.Model(&models.CacheEntry{}).Count(&count).Error; err != nil {
		return 0
	}
	return int(count)
}

// MaxAge returns the configured freshness window.
func (s *Store) MaxAge() time.Duration { return s.maxAge }

// MaxEntries returns the configured size bound.
func (s *Store) MaxEntries() int { return s.maxEntries }

func cacheable(resp *StoredResponse) bool {
	if resp.Opaque {
		return true
	}
	return resp.Status >= 200 && resp.Status < 300
}

func encodeHeader(h http.Header) string {
	if len(h) == 0 {
		return ""
	}
	b, err := json.Marshal(h)
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeHeader(raw string) http.Header {
	h := http.Header{}
	if raw == "" {
		return h
	}
	_ = json.Unmarshal([]byte(raw), &h)
	return h
}
