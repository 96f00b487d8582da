package models

import "time"

// CacheEntry is one stored response representation, keyed by request URL.
// The autoincrement ID doubles as the insertion order used for eviction.
type CacheEntry struct {
	ID      uint   `json:"-" gorm:"primaryKey;autoIncrement"`
	URL     string `json:"url" gorm:"uniqueIndex;not null"`
	Status  int    `json:"status"`
	Headers string `json:"-" gorm:"column:headers"`
	Body    []byte `json:"-"`

	// Opaque marks a cross-origin response whose status is not visible.
	Opaque bool `json:"opaque"`

	CreatedAt time.Time `json:"-"`
}

// TableName specifies the table name for CacheEntry
func (CacheEntry) TableName() string {
	return "cache_entries"
}

// CacheMeta records when a URL was last written to the cache. There is at
// most one record per URL; its age drives TTL eviction independently of the
// entry table's own retention.
type CacheMeta struct {
	URL      string    `json:"url" gorm:"primaryKey"`
	CachedAt time.Time `json:"cachedAt" gorm:"not null"`
}

// TableName specifies the table name for CacheMeta
func (CacheMeta) TableName() string {
	return "cache_meta"
}
