// Package social maintains the follow graph between users and builds the
// personalised feed from it.
package social

import (
	"context"
	"errors"

	"example.com/postfeed/internal/apperr"
	"example.com/postfeed/internal/logger"
	"example.com/postfeed/internal/models"
	"example.com/postfeed/internal/store"
)

var logg = logger.New()

type Service struct {
	store store.StoreInterface
}

func NewService(st store.StoreInterface) *Service {
	return &Service{store: st}
}

// Profile is an author page header: the author and the edge counts around them.
type Profile struct {
	Author    models.User
	Following bool // whether the viewer follows Author
	Followers int
	Follows   int
}

// Follow makes the principal follow username. It returns the target and
// whether a new edge was created; following yourself or someone you already
// follow changes nothing.
func (s *Service) Follow(ctx context.Context, p models.Principal, username string) (models.User, bool, error) {
	user, author, err := s.resolve(ctx, p, username)
	if err != nil {
		return models.User{}, false, err
	}
	if user.ID == author.ID {
		return author, false, nil
	}

	exists, err := s.store.FollowExists(ctx, user.ID, author.ID)
	if err != nil {
		return models.User{}, false, err
	}
	if exists {
		return author, false, nil
	}

	created, err := s.store.CreateFollow(ctx, user.ID, author.ID)
	if err != nil {
		return models.User{}, false, err
	}
	if created {
		logg.Info("social", "Follow created", "user_id", user.ID, "author_id", author.ID)
	}
	return author, created, nil
}

// Unfollow removes the edge if present. Missing edges are not an error.
func (s *Service) Unfollow(ctx context.Context, p models.Principal, username string) (models.User, bool, error) {
	user, author, err := s.resolve(ctx, p, username)
	if err != nil {
		return models.User{}, false, err
	}
	deleted, err := s.store.DeleteFollow(ctx, user.ID, author.ID)
	if err != nil {
		return models.User{}, false, err
	}
	if deleted {
		logg.Info("social", "Follow removed", "user_id", user.ID, "author_id", author.ID)
	}
	return author, deleted, nil
}

// IsFollowing is always false for anonymous viewers.
func (s *Service) IsFollowing(ctx context.Context, p models.Principal, authorID int64) (bool, error) {
	if !p.Authenticated() {
		return false, nil
	}
	return s.store.FollowExists(ctx, p.UserID, authorID)
}

// FollowersOf lists the edges pointing at authorID; Follow.User is the follower.
func (s *Service) FollowersOf(ctx context.Context, authorID int64) ([]models.Follow, error) {
	return s.store.GetFollowers(ctx, authorID)
}

// FollowingOf lists the edges leaving userID; Follow.Author is the followee.
func (s *Service) FollowingOf(ctx context.Context, userID int64) ([]models.Follow, error) {
	return s.store.GetFollowing(ctx, userID)
}

// FeedFor lists posts by every author the principal follows, newest first.
func (s *Service) FeedFor(ctx context.Context, p models.Principal) ([]models.Post, error) {
	if !p.Authenticated() {
		return nil, apperr.ErrUnauthorized
	}
	return s.store.ListPosts(ctx, models.PostFilter{FollowerID: p.UserID})
}

func (s *Service) Profile(ctx context.Context, viewer models.Principal, author models.User) (Profile, error) {
	following, err := s.IsFollowing(ctx, viewer, author.ID)
	if err != nil {
		return Profile{}, err
	}
	followers, err := s.store.GetFollowers(ctx, author.ID)
	if err != nil {
		return Profile{}, err
	}
	follows, err := s.store.GetFollowing(ctx, author.ID)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		Author:    author,
		Following: following,
		Followers: len(followers),
		Follows:   len(follows),
	}, nil
}

func (s *Service) resolve(ctx context.Context, p models.Principal, username string) (models.User, models.User, error) {
	if !p.Authenticated() {
		return models.User{}, models.User{}, apperr.ErrUnauthorized
	}
	user, err := s.store.GetUserByID(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.User{}, models.User{}, apperr.ErrUnauthorized
		}
		return models.User{}, models.User{}, err
	}
	author, err := s.store.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.User{}, models.User{}, apperr.NotFound("user %q", username)
		}
		return models.User{}, models.User{}, err
	}
	return user, author, nil
}
