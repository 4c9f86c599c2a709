package store

import (
	"context"

	"example.com/postfeed/internal/models"
	"gorm.io/gorm/clause"
)

// --- Follow operations ---

// CreateFollow inserts the edge unless it already exists. The unique
// (user_id, author_id) index makes concurrent duplicates a no-op.
func (s *Store) CreateFollow(ctx context.Context, userID, authorID int64) (bool, error) {
	follow := models.Follow{UserID: userID, AuthorID: authorID}
	res := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&follow)
	if res.Error != nil {
		err := translate(res.Error, "create follow")
		logg.Error("store", "Failed to create follow relationship", err)
		return false, err
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) DeleteFollow(ctx context.Context, userID, authorID int64) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND author_id = ?", userID, authorID).
		Delete(&models.Follow{})
	if res.Error != nil {
		err := translate(res.Error, "delete follow")
		logg.Error("store", "Failed to delete follow relationship", err)
		return false, err
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) FollowExists(ctx context.Context, userID, authorID int64) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).
		Model(&models.Follow{}).
		Where("user_id = ? AND author_id = ?", userID, authorID).
		Count(&n).Error
	return n > 0, translate(err, "follow exists")
}

// GetFollowers returns edges pointing at authorID, with the follower preloaded.
func (s *Store) GetFollowers(ctx context.Context, authorID int64) ([]models.Follow, error) {
	var follows []models.Follow
	err := s.db.WithContext(ctx).
		Preload("User").
		Where("author_id = ?", authorID).
		Order("id ASC").
		Find(&follows).Error
	return follows, translate(err, "get followers")
}

// GetFollowing returns edges leaving userID, with the followed author preloaded.
func (s *Store) GetFollowing(ctx context.Context, userID int64) ([]models.Follow, error) {
	var follows []models.Follow
	err := s.db.WithContext(ctx).
		Preload("Author").
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&follows).Error
	return follows, translate(err, "get following")
}
