package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"example.com/postfeed/internal/models"
)

// MockStore simulates the relational store in memory for testing.
// It honours the same cascade rules as the SQL schema.
type MockStore struct {
	mu       sync.RWMutex
	nextID   int64
	Users    map[int64]models.User
	Groups   map[int64]models.Group
	Posts    map[int64]models.Post
	Comments map[int64]models.Comment
	Follows  map[int64]models.Follow
	// AllowDuplicateFollows disables the unique pair index, to simulate a store without it.
	AllowDuplicateFollows bool
	ShouldFail            bool // flag to simulate failures
}

// NewMock initializes a new mock store
func NewMock() *MockStore {
	return &MockStore{
		Users:    make(map[int64]models.User),
		Groups:   make(map[int64]models.Group),
		Posts:    make(map[int64]models.Post),
		Comments: make(map[int64]models.Comment),
		Follows:  make(map[int64]models.Follow),
	}
}

var errMockFailure = errors.New("mock: store failure")

func (m *MockStore) Close() {}

func (m *MockStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MockStore) fail(op string) error {
	if m.ShouldFail {
		return fmt.Errorf("%s: %w", op, errMockFailure)
	}
	return nil
}

// --- Users ---

func (m *MockStore) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("create user"); err != nil {
		return models.User{}, err
	}
	for _, u := range m.Users {
		if u.Username == username {
			return models.User{}, fmt.Errorf("create user: %w", ErrAlreadyExists)
		}
	}
	u := models.User{ID: m.id(), Username: username, PasswordHash: passwordHash, DateJoined: time.Now().UTC()}
	m.Users[u.ID] = u
	return u, nil
}

func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("user by username"); err != nil {
		return models.User{}, err
	}
	for _, u := range m.Users {
		if u.Username == username {
			return u, nil
		}
	}
	return models.User{}, fmt.Errorf("user by username: %w", ErrNotFound)
}

func (m *MockStore) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("user by id"); err != nil {
		return models.User{}, err
	}
	u, ok := m.Users[id]
	if !ok {
		return models.User{}, fmt.Errorf("user by id: %w", ErrNotFound)
	}
	return u, nil
}

func (m *MockStore) DeleteUser(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete user"); err != nil {
		return err
	}
	if _, ok := m.Users[id]; !ok {
		return fmt.Errorf("delete user: %w", ErrNotFound)
	}
	delete(m.Users, id)
	for pid, p := range m.Posts {
		if p.AuthorID == id {
			m.deletePostLocked(pid)
		}
	}
	for cid, c := range m.Comments {
		if c.AuthorID == id {
			delete(m.Comments, cid)
		}
	}
	for fid, f := range m.Follows {
		if f.UserID == id || f.AuthorID == id {
			delete(m.Follows, fid)
		}
	}
	return nil
}

// --- Groups ---

func (m *MockStore) CreateGroup(ctx context.Context, group *models.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("create group"); err != nil {
		return err
	}
	for _, g := range m.Groups {
		if g.Slug == group.Slug {
			return fmt.Errorf("create group: %w", ErrAlreadyExists)
		}
	}
	group.ID = m.id()
	m.Groups[group.ID] = *group
	return nil
}

func (m *MockStore) GetGroupBySlug(ctx context.Context, slug string) (models.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("group by slug"); err != nil {
		return models.Group{}, err
	}
	for _, g := range m.Groups {
		if g.Slug == slug {
			return g, nil
		}
	}
	return models.Group{}, fmt.Errorf("group by slug: %w", ErrNotFound)
}

func (m *MockStore) GetGroupByID(ctx context.Context, id int64) (models.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("group by id"); err != nil {
		return models.Group{}, err
	}
	g, ok := m.Groups[id]
	if !ok {
		return models.Group{}, fmt.Errorf("group by id: %w", ErrNotFound)
	}
	return g, nil
}

func (m *MockStore) ListGroups(ctx context.Context) ([]models.Group, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("list groups"); err != nil {
		return nil, err
	}
	groups := make([]models.Group, 0, len(m.Groups))
	for _, g := range m.Groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Title < groups[j].Title })
	return groups, nil
}

func (m *MockStore) DeleteGroup(ctx context.Context, slug string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete group"); err != nil {
		return err
	}
	for id, g := range m.Groups {
		if g.Slug != slug {
			continue
		}
		delete(m.Groups, id)
		for pid, p := range m.Posts {
			if p.GroupID != nil && *p.GroupID == id {
				p.GroupID = nil
				m.Posts[pid] = p
			}
		}
		return nil
	}
	return fmt.Errorf("delete group: %w", ErrNotFound)
}

// --- Posts ---

func (m *MockStore) AddPost(ctx context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("add post"); err != nil {
		return err
	}
	if _, ok := m.Users[post.AuthorID]; !ok {
		return fmt.Errorf("add post: author %d missing", post.AuthorID)
	}
	post.ID = m.id()
	stored := *post
	stored.Author = models.User{}
	stored.Group = nil
	m.Posts[post.ID] = stored
	return nil
}

func (m *MockStore) UpdatePost(ctx context.Context, post *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("update post"); err != nil {
		return err
	}
	stored, ok := m.Posts[post.ID]
	if !ok {
		return fmt.Errorf("update post: %w", ErrNotFound)
	}
	stored.Text = post.Text
	stored.GroupID = post.GroupID
	stored.Image = post.Image
	m.Posts[post.ID] = stored
	return nil
}

func (m *MockStore) GetPost(ctx context.Context, authorID, postID int64) (models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("get post"); err != nil {
		return models.Post{}, err
	}
	p, ok := m.Posts[postID]
	if !ok || p.AuthorID != authorID {
		return models.Post{}, fmt.Errorf("get post: %w", ErrNotFound)
	}
	return m.hydrate(p), nil
}

func (m *MockStore) ListPosts(ctx context.Context, filter models.PostFilter) ([]models.Post, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("list posts"); err != nil {
		return nil, err
	}
	posts := m.matching(filter)
	for i := range posts {
		posts[i] = m.hydrate(posts[i])
	}
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].PubDate.Equal(posts[j].PubDate) {
			return posts[i].PubDate.After(posts[j].PubDate)
		}
		return posts[i].ID > posts[j].ID
	})
	return posts, nil
}

func (m *MockStore) CountPosts(ctx context.Context, filter models.PostFilter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("count posts"); err != nil {
		return 0, err
	}
	return int64(len(m.matching(filter))), nil
}

func (m *MockStore) DeletePost(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete post"); err != nil {
		return err
	}
	if _, ok := m.Posts[id]; !ok {
		return fmt.Errorf("delete post: %w", ErrNotFound)
	}
	m.deletePostLocked(id)
	return nil
}

func (m *MockStore) deletePostLocked(id int64) {
	delete(m.Posts, id)
	for cid, c := range m.Comments {
		if c.PostID == id {
			delete(m.Comments, cid)
		}
	}
}

func (m *MockStore) matching(filter models.PostFilter) []models.Post {
	var followed map[int64]bool
	if filter.FollowerID != 0 {
		followed = make(map[int64]bool)
		for _, f := range m.Follows {
			if f.UserID == filter.FollowerID {
				followed[f.AuthorID] = true
			}
		}
	}

	var posts []models.Post
	for _, p := range m.Posts {
		if filter.AuthorID != 0 && p.AuthorID != filter.AuthorID {
			continue
		}
		if filter.GroupID != 0 && (p.GroupID == nil || *p.GroupID != filter.GroupID) {
			continue
		}
		if followed != nil && !followed[p.AuthorID] {
			continue
		}
		posts = append(posts, p)
	}
	return posts
}

func (m *MockStore) hydrate(p models.Post) models.Post {
	p.Author = m.Users[p.AuthorID]
	p.Group = nil
	if p.GroupID != nil {
		if g, ok := m.Groups[*p.GroupID]; ok {
			p.Group = &g
		}
	}
	return p
}

// --- Comments ---

func (m *MockStore) AddComment(ctx context.Context, comment *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("add comment"); err != nil {
		return err
	}
	if _, ok := m.Posts[comment.PostID]; !ok {
		return fmt.Errorf("add comment: post %d missing", comment.PostID)
	}
	comment.ID = m.id()
	stored := *comment
	stored.Author = models.User{}
	m.Comments[comment.ID] = stored
	return nil
}

func (m *MockStore) ListComments(ctx context.Context, postID int64) ([]models.Comment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("list comments"); err != nil {
		return nil, err
	}
	var comments []models.Comment
	for _, c := range m.Comments {
		if c.PostID == postID {
			c.Author = m.Users[c.AuthorID]
			comments = append(comments, c)
		}
	}
	sort.Slice(comments, func(i, j int) bool {
		if !comments[i].Created.Equal(comments[j].Created) {
			return comments[i].Created.After(comments[j].Created)
		}
		return comments[i].ID > comments[j].ID
	})
	return comments, nil
}

// --- Follows ---

func (m *MockStore) CreateFollow(ctx context.Context, userID, authorID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("create follow"); err != nil {
		return false, err
	}
	if !m.AllowDuplicateFollows {
		for _, f := range m.Follows {
			if f.UserID == userID && f.AuthorID == authorID {
				return false, nil
			}
		}
	}
	f := models.Follow{ID: m.id(), UserID: userID, AuthorID: authorID}
	m.Follows[f.ID] = f
	return true, nil
}

func (m *MockStore) DeleteFollow(ctx context.Context, userID, authorID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("delete follow"); err != nil {
		return false, err
	}
	deleted := false
	for id, f := range m.Follows {
		if f.UserID == userID && f.AuthorID == authorID {
			delete(m.Follows, id)
			deleted = true
		}
	}
	return deleted, nil
}

func (m *MockStore) FollowExists(ctx context.Context, userID, authorID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail("follow exists"); err != nil {
		return false, err
	}
	for _, f := range m.Follows {
		if f.UserID == userID && f.AuthorID == authorID {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStore) GetFollowers(ctx context.Context, authorID int64) ([]models.Follow, error) {
	return m.edges("get followers", func(f models.Follow) bool { return f.AuthorID == authorID })
}

func (m *MockStore) GetFollowing(ctx context.Context, userID int64) ([]models.Follow, error) {
	return m.edges("get following", func(f models.Follow) bool { return f.UserID == userID })
}

func (m *MockStore) edges(op string, keep func(models.Follow) bool) ([]models.Follow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.fail(op); err != nil {
		return nil, err
	}
	var out []models.Follow
	for _, f := range m.Follows {
		if keep(f) {
			f.User = m.Users[f.UserID]
			f.Author = m.Users[f.AuthorID]
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ---------------------------------------------
// MockStoreFail always returns errors for negative tests
type MockStoreFail struct{}

var errFail = errors.New("mock store failed")

func (m *MockStoreFail) Close() {}

func (m *MockStoreFail) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	return models.User{}, errFail
}

func (m *MockStoreFail) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return models.User{}, errFail
}

func (m *MockStoreFail) GetUserByID(ctx context.Context, id int64) (models.User, error) {
	return models.User{}, errFail
}

func (m *MockStoreFail) DeleteUser(ctx context.Context, id int64) error { return errFail }

func (m *MockStoreFail) CreateGroup(ctx context.Context, group *models.Group) error { return errFail }

func (m *MockStoreFail) GetGroupBySlug(ctx context.Context, slug string) (models.Group, error) {
	return models.Group{}, errFail
}

func (m *MockStoreFail) GetGroupByID(ctx context.Context, id int64) (models.Group, error) {
	return models.Group{}, errFail
}

func (m *MockStoreFail) ListGroups(ctx context.Context) ([]models.Group, error) { return nil, errFail }

func (m *MockStoreFail) DeleteGroup(ctx context.Context, slug string) error { return errFail }

func (m *MockStoreFail) AddPost(ctx context.Context, post *models.Post) error { return errFail }

func (m *MockStoreFail) UpdatePost(ctx context.Context, post *models.Post) error { return errFail }

func (m *MockStoreFail) GetPost(ctx context.Context, authorID, postID int64) (models.Post, error) {
	return models.Post{}, errFail
}

func (m *MockStoreFail) ListPosts(ctx context.Context, filter models.PostFilter) ([]models.Post, error) {
	return nil, errFail
}

func (m *MockStoreFail) CountPosts(ctx context.Context, filter models.PostFilter) (int64, error) {
	return 0, errFail
}

func (m *MockStoreFail) DeletePost(ctx context.Context, id int64) error { return errFail }

func (m *MockStoreFail) AddComment(ctx context.Context, comment *models.Comment) error { return errFail }

func (m *MockStoreFail) ListComments(ctx context.Context, postID int64) ([]models.Comment, error) {
	return nil, errFail
}

func (m *MockStoreFail) CreateFollow(ctx context.Context, userID, authorID int64) (bool, error) {
	return false, errFail
}

func (m *MockStoreFail) DeleteFollow(ctx context.Context, userID, authorID int64) (bool, error) {
	return false, errFail
}

func (m *MockStoreFail) FollowExists(ctx context.Context, userID, authorID int64) (bool, error) {
	return false, errFail
}

func (m *MockStoreFail) GetFollowers(ctx context.Context, authorID int64) ([]models.Follow, error) {
	return nil, errFail
}

func (m *MockStoreFail) GetFollowing(ctx context.Context, userID int64) ([]models.Follow, error) {
	return nil, errFail
}
