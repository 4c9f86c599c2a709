// Package content implements posts, groups and comments with their
// ownership and validation rules.
package content

import (
	"context"
	"errors"
	"fmt"
	"time"

	"example.com/postfeed/internal/apperr"
	"example.com/postfeed/internal/logger"
	"example.com/postfeed/internal/media"
	"example.com/postfeed/internal/models"
	"example.com/postfeed/internal/store"
)

var logg = logger.New()

type Service struct {
	store  store.StoreInterface
	images media.ImageStore
	now    func() time.Time
}

func NewService(st store.StoreInterface, images media.ImageStore) *Service {
	return &Service{
		store:  st,
		images: images,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for pub_date and comment timestamps.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// ListAll returns every post, newest first.
func (s *Service) ListAll(ctx context.Context) ([]models.Post, error) {
	return s.store.ListPosts(ctx, models.PostFilter{})
}

func (s *Service) ListByGroup(ctx context.Context, slug string) (models.Group, []models.Post, error) {
	group, err := s.store.GetGroupBySlug(ctx, slug)
	if err != nil {
		return models.Group{}, nil, notFound(err, "group %q", slug)
	}
	posts, err := s.store.ListPosts(ctx, models.PostFilter{GroupID: group.ID})
	if err != nil {
		return models.Group{}, nil, err
	}
	return group, posts, nil
}

func (s *Service) ListByAuthor(ctx context.Context, username string) (models.User, []models.Post, error) {
	author, err := s.Author(ctx, username)
	if err != nil {
		return models.User{}, nil, err
	}
	posts, err := s.store.ListPosts(ctx, models.PostFilter{AuthorID: author.ID})
	if err != nil {
		return models.User{}, nil, err
	}
	return author, posts, nil
}

// Author resolves a username through the identity directory.
func (s *Service) Author(ctx context.Context, username string) (models.User, error) {
	author, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		return models.User{}, notFound(err, "user %q", username)
	}
	return author, nil
}

// GetPost finds postID only under username; an id owned by someone else is not found.
func (s *Service) GetPost(ctx context.Context, username string, postID int64) (models.Post, error) {
	author, err := s.Author(ctx, username)
	if err != nil {
		return models.Post{}, err
	}
	post, err := s.store.GetPost(ctx, author.ID, postID)
	if err != nil {
		return models.Post{}, notFound(err, "post %d of %q", postID, username)
	}
	return post, nil
}

func (s *Service) CountByAuthor(ctx context.Context, authorID int64) (int64, error) {
	return s.store.CountPosts(ctx, models.PostFilter{AuthorID: authorID})
}

func (s *Service) Groups(ctx context.Context) ([]models.Group, error) {
	return s.store.ListGroups(ctx)
}

func (s *Service) Comments(ctx context.Context, postID int64) ([]models.Comment, error) {
	return s.store.ListComments(ctx, postID)
}

// CreatePost publishes a post authored by the principal. Any author sent by
// the client is ignored.
func (s *Service) CreatePost(ctx context.Context, p models.Principal, form PostForm) (models.Post, error) {
	author, err := s.principal(ctx, p)
	if err != nil {
		return models.Post{}, err
	}

	text, groupID, img, err := s.validatePost(ctx, form)
	if err != nil {
		return models.Post{}, err
	}

	post := models.Post{
		Text:     text,
		PubDate:  s.now(),
		AuthorID: author.ID,
		GroupID:  groupID,
	}
	if img != nil {
		if post.Image, err = s.saveImage(ctx, *img); err != nil {
			return models.Post{}, err
		}
	}

	if err := s.store.AddPost(ctx, &post); err != nil {
		s.discardImage(ctx, post.Image)
		return models.Post{}, err
	}
	post.Author = author

	logg.Info("content", "Post created", "post_id", post.ID)
	return post, nil
}

// EditPost replaces text, group and image of a post owned by the principal.
// pub_date is left as it was.
func (s *Service) EditPost(ctx context.Context, p models.Principal, username string, postID int64, form PostForm) (models.Post, error) {
	if _, err := s.principal(ctx, p); err != nil {
		return models.Post{}, err
	}

	post, err := s.GetPost(ctx, username, postID)
	if err != nil {
		return models.Post{}, err
	}
	if post.AuthorID != p.UserID {
		return post, apperr.Forbidden("post %d belongs to %q", postID, username)
	}

	text, groupID, img, err := s.validatePost(ctx, form)
	if err != nil {
		return post, err
	}

	post.Text = text
	post.GroupID = groupID
	var uploaded string
	switch {
	case img != nil:
		if uploaded, err = s.saveImage(ctx, *img); err != nil {
			return models.Post{}, err
		}
		post.Image = uploaded
	case form.ClearImage:
		post.Image = ""
	}

	if err := s.store.UpdatePost(ctx, &post); err != nil {
		s.discardImage(ctx, uploaded)
		return models.Post{}, err
	}

	logg.Info("content", "Post edited", "post_id", post.ID)
	return s.store.GetPost(ctx, post.AuthorID, post.ID)
}

// AddComment attaches a comment by the principal to the post and returns the
// post's comments, newest first.
func (s *Service) AddComment(ctx context.Context, p models.Principal, username string, postID int64, form CommentForm) (models.Comment, []models.Comment, error) {
	author, err := s.principal(ctx, p)
	if err != nil {
		return models.Comment{}, nil, err
	}

	post, err := s.GetPost(ctx, username, postID)
	if err != nil {
		return models.Comment{}, nil, err
	}

	v := apperr.NewValidationError()
	text := form.clean(v)
	if err := v.OrNil(); err != nil {
		comments, lerr := s.store.ListComments(ctx, post.ID)
		if lerr != nil {
			return models.Comment{}, nil, lerr
		}
		return models.Comment{}, comments, err
	}

	comment := models.Comment{
		Text:     text,
		Created:  s.now(),
		AuthorID: author.ID,
		PostID:   post.ID,
	}
	if err := s.store.AddComment(ctx, &comment); err != nil {
		return models.Comment{}, nil, err
	}
	comment.Author = author

	comments, err := s.store.ListComments(ctx, post.ID)
	if err != nil {
		return models.Comment{}, nil, err
	}
	return comment, comments, nil
}

func (s *Service) validatePost(ctx context.Context, form PostForm) (string, *int64, *media.Checked, error) {
	v := apperr.NewValidationError()
	text, groupID, img := form.clean(v)

	if groupID != nil {
		if _, err := s.store.GetGroupByID(ctx, *groupID); err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				return "", nil, nil, err
			}
			v.Add("group", msgInvalidChoice)
		}
	}

	if err := v.OrNil(); err != nil {
		return "", nil, nil, err
	}
	return text, groupID, img, nil
}

func (s *Service) saveImage(ctx context.Context, img media.Checked) (string, error) {
	key := media.ObjectKey(img)
	if err := s.images.Save(ctx, key, img); err != nil {
		return "", fmt.Errorf("save image: %w", err)
	}
	return key, nil
}

// discardImage removes an object uploaded for a write that did not commit.
func (s *Service) discardImage(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := s.images.Delete(context.WithoutCancel(ctx), key); err != nil {
		logg.Warn("content", "Failed to remove orphaned image", err, "key", key)
	}
}

// principal resolves the request identity to a live user.
func (s *Service) principal(ctx context.Context, p models.Principal) (models.User, error) {
	if !p.Authenticated() {
		return models.User{}, apperr.ErrUnauthorized
	}
	user, err := s.store.GetUserByID(ctx, p.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return models.User{}, apperr.ErrUnauthorized
	}
	return user, err
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(format, args...)
	}
	return err
}
