package repository

import (
	"Zalor/internal/model"
	"context"

	"gorm.io/gorm"
)

type GroupRepo interface {
	Exists(ctx context.Context, id uint64) (bool, error)
}

type groupRepoImpl struct {
	db *gorm.DB
}

func NewGroupRepo(db *gorm.DB) GroupRepo {
	return &groupRepoImpl{db: db}
}

// Exists 群组存在且未解散
func (s *groupRepoImpl) Exists(ctx context.Context, id uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.Group{}).
		Where("id = ? AND is_delete = ?", id, false).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
