package clip

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var ErrClipNotFound = errors.New("clip not found")

type Repository interface {
	Save(ctx context.Context, r *Record) error
	Get(ctx context.Context, id string) (Record, error)
	ListBySession(ctx context.Context, sessionID string, limit int) ([]Record, error)
}

type GormClipRepo struct {
	db *gorm.DB
}

func NewGormClipRepo(db *gorm.DB) *GormClipRepo {
	return &GormClipRepo{db: db}
}

// Save implements Repository
func (g *GormClipRepo) Save(ctx context.Context, r *Record) error {
	entity := NewClipEntityFromDomain(*r)
	if err := g.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("failed to save clip: %w", err)
	}
	*r = entity.ToDomain()
	return nil
}

// Get implements Repository
func (g *GormClipRepo) Get(ctx context.Context, id string) (Record, error) {
	var entity ClipEntity
	if err := g.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Record{}, ErrClipNotFound
		}
		return Record{}, fmt.Errorf("failed to get clip: %w", err)
	}
	return entity.ToDomain(), nil
}

// ListBySession implements Repository, newest first.
func (g *GormClipRepo) ListBySession(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var entities []ClipEntity
	if err := g.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("failed to list clips: %w", err)
	}

	records := make([]Record, len(entities))
	for i := range entities {
		records[i] = entities[i].ToDomain()
	}
	return records, nil
}
