package store

import (
	"context"
	"time"

	"example.com/postfeed/internal/models"
	"gorm.io/gorm/clause"
)

// --- User operations ---

func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	user := models.User{
		Username:     username,
		PasswordHash: passwordHash,
		DateJoined:   time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&user).Error; err != nil {
		err = translate(err, "create user")
		logg.Error("store", "Failed to create user", err)
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error
	return user, translate(err, "user by username")
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, id).Error
	return user, translate(err, "user by id")
}

// DeleteUser removes the user; posts, comments and follow edges cascade.
func (s *Store) DeleteUser(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&models.User{}, id)
	if res.Error != nil {
		return translate(res.Error, "delete user")
	}
	if res.RowsAffected == 0 {
		return translate(ErrNotFound, "delete user")
	}
	return nil
}
