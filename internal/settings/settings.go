package settings

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/careerpilot-app/credits-api/internal/models"

	"gorm.io/gorm"
)

// snapshotTTL bounds how long a cached settings snapshot is reused.
const snapshotTTL = 5 * time.Second

var (
	mu        sync.RWMutex
	conn      *gorm.DB
	cache     map[string]json.RawMessage
	cachedAt  time.Time
	refreshMu sync.Mutex
)

// Bind attaches the database connection used for settings lookups.
func Bind(db *gorm.DB) {
	mu.Lock()
	conn = db
	cache = nil
	cachedAt = time.Time{}
	mu.Unlock()
}

// DBConfigValue returns the raw JSON value for a settings key.
func DBConfigValue(key string) (json.RawMessage, bool) {
	snapshot := loadSnapshot()
	if snapshot == nil {
		return nil, false
	}
	raw, ok := snapshot[key]
	if !ok || len(raw) == 0 {
		return nil, false
	}
	return raw, true
}

// loadSnapshot returns the cached settings map, refreshing it when stale.
func loadSnapshot() map[string]json.RawMessage {
	mu.RLock()
	db := conn
	snapshot := cache
	fresh := !cachedAt.IsZero() && time.Since(cachedAt) < snapshotTTL
	mu.RUnlock()

	if db == nil {
		return nil
	}
	if fresh {
		return snapshot
	}

	refreshMu.Lock()
	defer refreshMu.Unlock()

	mu.RLock()
	fresh = !cachedAt.IsZero() && time.Since(cachedAt) < snapshotTTL
	snapshot = cache
	mu.RUnlock()
	if fresh {
		return snapshot
	}

	var rows []models.Setting
	if errFind := db.Find(&rows).Error; errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			rows = nil
		} else {
			// Serve the stale snapshot rather than dropping settings on a read error.
			return snapshot
		}
	}

	next := make(map[string]json.RawMessage, len(rows))
	for _, row := range rows {
		if row.Key == "" || len(row.Value) == 0 {
			continue
		}
		next[row.Key] = json.RawMessage(row.Value)
	}

	mu.Lock()
	cache = next
	cachedAt = time.Now()
	mu.Unlock()
	return next
}
