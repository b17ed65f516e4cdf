package storage

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fleet-dashboard/internal/models"
)

// Gorm persists namespaces in the storage_entries table. It has no change
// feed of its own; wrap it with WithLocalEvents.
type Gorm struct {
	db *gorm.DB
}

func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

func (g *Gorm) Get(ctx context.Context, ns, key string) ([]byte, error) {
	var entry models.StorageEntry
	err := g.db.WithContext(ctx).
		Where("namespace = ? AND key = ?", ns, key).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s/%s: %w", ns, key, err)
	}
	return entry.Value, nil
}

func (g *Gorm) Set(ctx context.Context, ns, key string, value []byte) error {
	entry := models.StorageEntry{Namespace: ns, Key: key, Value: value}
	err := g.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "namespace"}, {Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&entry).Error
	if err != nil {
		return fmt.Errorf("save %s/%s: %w", ns, key, err)
	}
	return nil
}

func (g *Gorm) Delete(ctx context.Context, ns, key string) error {
	err := g.db.WithContext(ctx).
		Where("namespace = ? AND key = ?", ns, key).
		Delete(&models.StorageEntry{}).Error
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", ns, key, err)
	}
	return nil
}

func (g *Gorm) Watch(context.Context, string) (*Watcher, error) {
	return nil, ErrWatchUnsupported
}

func (g *Gorm) Close() error {
	return nil
}
