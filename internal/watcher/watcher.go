// Package watcher maintains an in-memory directory snapshot so API token
// lookups do not hit the database per request. The snapshot is rebuilt by
// polling for changes and swapped atomically.
package watcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sensorops/userdir/internal/models"
	"github.com/sensorops/userdir/internal/schema"
	"github.com/sensorops/userdir/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Member is one snapshot entry.
type Member struct {
	ID      uint64
	User    *schema.User
	Enabled bool
}

// snapshot is an immutable token index. Replaced wholesale on change.
type snapshot struct {
	byToken map[string]*Member
	builtAt time.Time
}

// fingerprintRow mirrors the change-detection aggregate query.
type fingerprintRow struct {
	Count     int64      `gorm:"column:record_count"`
	UpdatedAt *time.Time `gorm:"column:last_updated_at"`
}

// DirectoryWatcher polls the user records table and keeps the token index
// current.
type DirectoryWatcher struct {
	db       *gorm.DB
	interval time.Duration

	mu          sync.RWMutex
	current     snapshot
	fingerprint string
}

// NewDirectoryWatcher constructs a DirectoryWatcher with default timings.
func NewDirectoryWatcher(db *gorm.DB) *DirectoryWatcher {
	return &DirectoryWatcher{
		db:       db,
		interval: settings.SnapshotPollInterval,
		current:  snapshot{byToken: map[string]*Member{}},
	}
}

// Run refreshes the snapshot until the context is canceled. The first
// refresh happens before the ticker starts so lookups work immediately.
func (w *DirectoryWatcher) Run(ctx context.Context) {
	if errRefresh := w.Refresh(ctx); errRefresh != nil {
		log.WithError(errRefresh).Warn("initial directory snapshot failed")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if errRefresh := w.Refresh(ctx); errRefresh != nil {
				log.WithError(errRefresh).Warn("directory snapshot refresh failed")
			}
		}
	}
}

// LookupToken resolves an API token to its snapshot entry.
func (w *DirectoryWatcher) LookupToken(token string) (*Member, bool) {
	if token == "" {
		return nil, false
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	member, ok := w.current.byToken[token]
	return member, ok
}

// Refresh rebuilds the snapshot when the table changed since the last run.
func (w *DirectoryWatcher) Refresh(ctx context.Context) error {
	queryCtx, cancel := context.WithTimeout(ctx, settings.SnapshotQueryTimeout)
	defer cancel()

	var agg fingerprintRow
	if errAgg := w.db.WithContext(queryCtx).Model(&models.UserRecord{}).
		Select("COUNT(*) AS record_count, MAX(updated_at) AS last_updated_at").
		Scan(&agg).Error; errAgg != nil {
		return fmt.Errorf("directory watcher: fingerprint: %w", errAgg)
	}
	fingerprint := fmt.Sprintf("%d", agg.Count)
	if agg.UpdatedAt != nil {
		fingerprint += "@" + agg.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}

	w.mu.RLock()
	unchanged := fingerprint == w.fingerprint
	w.mu.RUnlock()
	if unchanged {
		return nil
	}

	var rows []models.UserRecord
	if errFind := w.db.WithContext(queryCtx).
		Where("api_token <> ''").
		Find(&rows).Error; errFind != nil {
		return fmt.Errorf("directory watcher: load: %w", errFind)
	}

	byToken := make(map[string]*Member, len(rows))
	for i := range rows {
		row := &rows[i]
		var raw map[string]any
		if errUnmarshal := json.Unmarshal(row.Content, &raw); errUnmarshal != nil {
			log.WithField("name", row.Name).WithError(errUnmarshal).Warn("skip undecodable record")
			continue
		}
		user, errValidate := schema.Deserialize(raw)
		if errValidate != nil {
			log.WithField("name", row.Name).WithError(errValidate).Warn("skip invalid record")
			continue
		}
		byToken[row.APIToken] = &Member{ID: row.ID, User: user, Enabled: row.Enabled}
	}

	w.mu.Lock()
	w.current = snapshot{byToken: byToken, builtAt: time.Now().UTC()}
	w.fingerprint = fingerprint
	w.mu.Unlock()
	return nil
}
