package social

import (
	"context"
	"sync"
	"testing"
	"time"

	"example.com/postfeed/internal/apperr"
	"example.com/postfeed/internal/models"
	"example.com/postfeed/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Service, *store.MockStore, models.User, models.User) {
	t.Helper()
	st := store.NewMock()
	leia, err := st.CreateUser(context.Background(), "leia", "x")
	require.NoError(t, err)
	han, err := st.CreateUser(context.Background(), "han", "x")
	require.NoError(t, err)
	return NewService(st), st, leia, han
}

func as(u models.User) models.Principal {
	return models.Principal{UserID: u.ID, Username: u.Username}
}

func TestFollow_Idempotent(t *testing.T) {
	svc, st, leia, han := setup(t)
	ctx := context.Background()

	author, created, err := svc.Follow(ctx, as(han), "leia")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, leia.ID, author.ID)

	_, created, err = svc.Follow(ctx, as(han), "leia")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Len(t, st.Follows, 1)
}

func TestFollow_Self(t *testing.T) {
	svc, st, leia, _ := setup(t)
	_, created, err := svc.Follow(context.Background(), as(leia), "leia")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Empty(t, st.Follows)
}

func TestFollow_Errors(t *testing.T) {
	svc, _, _, han := setup(t)
	ctx := context.Background()

	_, _, err := svc.Follow(ctx, models.Principal{}, "leia")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, _, err = svc.Follow(ctx, as(han), "nobody")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, _, err = svc.Unfollow(ctx, models.Principal{}, "leia")
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, _, err = svc.Unfollow(ctx, as(han), "nobody")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestFollow_ConcurrentCreatesOneEdge(t *testing.T) {
	svc, st, _, han := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Follow(ctx, as(han), "leia")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, st.Follows, 1)
}

func TestUnfollow(t *testing.T) {
	svc, st, _, han := setup(t)
	ctx := context.Background()

	_, deleted, err := svc.Unfollow(ctx, as(han), "leia")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, _, err = svc.Follow(ctx, as(han), "leia")
	require.NoError(t, err)
	_, deleted, err = svc.Unfollow(ctx, as(han), "leia")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Empty(t, st.Follows)
}

func TestIsFollowing(t *testing.T) {
	svc, _, leia, han := setup(t)
	ctx := context.Background()

	ok, err := svc.IsFollowing(ctx, models.Principal{}, leia.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = svc.Follow(ctx, as(han), "leia")
	require.NoError(t, err)
	ok, err = svc.IsFollowing(ctx, as(han), leia.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = svc.IsFollowing(ctx, as(leia), han.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFeedFor(t *testing.T) {
	svc, st, leia, han := setup(t)
	ctx := context.Background()
	luke, err := st.CreateUser(ctx, "luke", "x")
	require.NoError(t, err)

	now := time.Now().UTC()
	for i, author := range []models.User{leia, luke, han, leia} {
		require.NoError(t, st.AddPost(ctx, &models.Post{
			Text: author.Username, AuthorID: author.ID, PubDate: now.Add(time.Duration(i) * time.Minute),
		}))
	}

	_, err = svc.FeedFor(ctx, models.Principal{})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	posts, err := svc.FeedFor(ctx, as(han))
	require.NoError(t, err)
	assert.Empty(t, posts)

	_, _, err = svc.Follow(ctx, as(han), "leia")
	require.NoError(t, err)
	posts, err = svc.FeedFor(ctx, as(han))
	require.NoError(t, err)
	require.Len(t, posts, 2)
	for _, p := range posts {
		assert.Equal(t, leia.ID, p.AuthorID)
	}
	assert.True(t, posts[0].PubDate.After(posts[1].PubDate))
}

func TestProfileAndLists(t *testing.T) {
	svc, st, leia, han := setup(t)
	ctx := context.Background()
	luke, err := st.CreateUser(ctx, "luke", "x")
	require.NoError(t, err)

	_, _, err = svc.Follow(ctx, as(han), "leia")
	require.NoError(t, err)
	_, _, err = svc.Follow(ctx, as(luke), "leia")
	require.NoError(t, err)
	_, _, err = svc.Follow(ctx, as(leia), "luke")
	require.NoError(t, err)

	prof, err := svc.Profile(ctx, as(han), leia)
	require.NoError(t, err)
	assert.True(t, prof.Following)
	assert.Equal(t, 2, prof.Followers)
	assert.Equal(t, 1, prof.Follows)

	followers, err := svc.FollowersOf(ctx, leia.ID)
	require.NoError(t, err)
	require.Len(t, followers, 2)
	assert.Equal(t, "han", followers[0].User.Username)

	following, err := svc.FollowingOf(ctx, leia.ID)
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, "luke", following[0].Author.Username)
}
