package store

import (
	"context"

	"example.com/postfeed/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// --- Group operations ---

func (s *Store) CreateGroup(ctx context.Context, group *models.Group) error {
	if err := s.db.WithContext(ctx).Create(group).Error; err != nil {
		err = translate(err, "create group")
		logg.Error("store", "Failed to create group", err)
		return err
	}
	return nil
}

func (s *Store) GetGroupBySlug(ctx context.Context, slug string) (models.Group, error) {
	var group models.Group
	err := s.db.WithContext(ctx).Where("slug = ?", slug).First(&group).Error
	return group, translate(err, "group by slug")
}

func (s *Store) GetGroupByID(ctx context.Context, id int64) (models.Group, error) {
	var group models.Group
	err := s.db.WithContext(ctx).First(&group, id).Error
	return group, translate(err, "group by id")
}

func (s *Store) ListGroups(ctx context.Context) ([]models.Group, error) {
	var groups []models.Group
	err := s.db.WithContext(ctx).Order("title ASC").Find(&groups).Error
	return groups, translate(err, "list groups")
}

// DeleteGroup removes the group; its posts survive with group_id cleared.
func (s *Store) DeleteGroup(ctx context.Context, slug string) error {
	res := s.db.WithContext(ctx).Where("slug = ?", slug).Delete(&models.Group{})
	if res.Error != nil {
		return translate(res.Error, "delete group")
	}
	if res.RowsAffected == 0 {
		return translate(ErrNotFound, "delete group")
	}
	return nil
}

// --- Post operations ---

func (s *Store) AddPost(ctx context.Context, post *models.Post) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error; err != nil {
		err = translate(err, "add post")
		logg.Error("store", "Failed to add post", err)
		return err
	}
	return nil
}

// UpdatePost writes text, group and image only; pub_date and author are never touched.
func (s *Store) UpdatePost(ctx context.Context, post *models.Post) error {
	res := s.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", post.ID).
		Updates(map[string]any{
			"text":     post.Text,
			"group_id": post.GroupID,
			"image":    post.Image,
		})
	if res.Error != nil {
		err := translate(res.Error, "update post")
		logg.Error("store", "Failed to update post", err)
		return err
	}
	if res.RowsAffected == 0 {
		return translate(ErrNotFound, "update post")
	}
	return nil
}

// GetPost looks a post up by id scoped to its author.
func (s *Store) GetPost(ctx context.Context, authorID, postID int64) (models.Post, error) {
	var post models.Post
	err := s.db.WithContext(ctx).
		Preload("Author").
		Preload("Group").
		Where("id = ? AND author_id = ?", postID, authorID).
		First(&post).Error
	return post, translate(err, "get post")
}

func (s *Store) ListPosts(ctx context.Context, filter models.PostFilter) ([]models.Post, error) {
	var posts []models.Post
	err := s.filtered(ctx, filter).
		Preload("Author").
		Preload("Group").
		Order("pub_date DESC").
		Order("id DESC").
		Find(&posts).Error
	if err != nil {
		err = translate(err, "list posts")
		logg.Error("store", "Failed to list posts", err)
		return nil, err
	}
	return posts, nil
}

func (s *Store) CountPosts(ctx context.Context, filter models.PostFilter) (int64, error) {
	var n int64
	err := s.filtered(ctx, filter).Count(&n).Error
	return n, translate(err, "count posts")
}

// DeletePost removes the post; its comments cascade.
func (s *Store) DeletePost(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&models.Post{}, id)
	if res.Error != nil {
		return translate(res.Error, "delete post")
	}
	if res.RowsAffected == 0 {
		return translate(ErrNotFound, "delete post")
	}
	return nil
}

func (s *Store) filtered(ctx context.Context, filter models.PostFilter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&models.Post{})
	if filter.AuthorID != 0 {
		q = q.Where("author_id = ?", filter.AuthorID)
	}
	if filter.GroupID != 0 {
		q = q.Where("group_id = ?", filter.GroupID)
	}
	if filter.FollowerID != 0 {
		followed := s.db.WithContext(ctx).
			Model(&models.Follow{}).
			Select("author_id").
			Where("user_id = ?", filter.FollowerID)
		q = q.Where("author_id IN (?)", followed)
	}
	return q
}

// --- Comment operations ---

func (s *Store) AddComment(ctx context.Context, comment *models.Comment) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(comment).Error; err != nil {
		err = translate(err, "add comment")
		logg.Error("store", "Failed to add comment", err)
		return err
	}
	return nil
}

func (s *Store) ListComments(ctx context.Context, postID int64) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.db.WithContext(ctx).
		Preload("Author").
		Where("post_id = ?", postID).
		Order("created DESC").
		Order("id DESC").
		Find(&comments).Error
	return comments, translate(err, "list comments")
}
