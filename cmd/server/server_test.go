package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	appkafka "example.com/postfeed/internal/broker"
	"example.com/postfeed/internal/cache"
	"example.com/postfeed/internal/journal"
	"example.com/postfeed/internal/media"
	"example.com/postfeed/internal/middleware"
	"example.com/postfeed/internal/models"
	"example.com/postfeed/internal/store"
	"golang.org/x/crypto/bcrypt"
)

//
// --- Helpers ---
//

// smallGIF is a 1x1 transparent GIF.
var smallGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x21, 0xf9, 0x04,
	0x01, 0x0a, 0x00, 0x01, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02,
	0x02, 0x4c, 0x01, 0x00, 0x3b,
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	srv     *Server
	handler http.Handler
	store   *store.MockStore
	images  *media.MemoryStore
	kafka   *appkafka.MockKafka
	journal *journal.MockJournal
	pages   *cache.PageCache
	clock   *testClock
	auth    *middleware.Authenticator
}

func setupTestServer(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:   store.NewMock(),
		images:  media.NewMemoryStore("/media/"),
		kafka:   &appkafka.MockKafka{},
		journal: journal.NewMock(),
		clock:   &testClock{now: time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)},
		auth:    middleware.NewAuthenticator("test-secret", time.Hour),
	}
	cacheStore := cache.NewMemoryStore()
	cacheStore.Now = env.clock.Now
	env.pages = cache.NewPageCache(cacheStore, 20*time.Second)

	srv, err := New(Options{
		Store:   env.store,
		Images:  env.images,
		Pages:   env.pages,
		Auth:    env.auth,
		Events:  appkafka.NewEventPublisher(env.kafka),
		Journal: env.journal,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	env.srv = srv
	env.handler = srv.Routes()
	return env
}

func (env *testEnv) user(t *testing.T, username string) models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	u, err := env.store.CreateUser(context.Background(), username, string(hash))
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return u
}

func (env *testEnv) group(t *testing.T, slug string) models.Group {
	t.Helper()
	g := models.Group{Title: "Group " + slug, Slug: slug, Description: "about " + slug}
	if err := env.store.CreateGroup(context.Background(), &g); err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	return g
}

func (env *testEnv) post(t *testing.T, author models.User, text string, at time.Time) models.Post {
	t.Helper()
	p := models.Post{Text: text, AuthorID: author.ID, PubDate: at}
	if err := env.store.AddPost(context.Background(), &p); err != nil {
		t.Fatalf("AddPost failed: %v", err)
	}
	return p
}

// do sends req as u (anonymous when u is nil) and returns the recorded response.
func (env *testEnv) do(t *testing.T, req *http.Request, u *models.User) *httptest.ResponseRecorder {
	t.Helper()
	if u != nil {
		token, _, err := env.auth.IssueToken(*u)
		if err != nil {
			t.Fatalf("IssueToken failed: %v", err)
		}
		req.AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: token})
	}
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	return rr
}

func get(path string) *http.Request {
	return httptest.NewRequest(http.MethodGet, path, nil)
}

func postForm(path string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func postMultipart(t *testing.T, path string, fields map[string]string, filename string, file []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("image", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(file)
	}
	mw.Close()
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rr.Code, rr.Body.String())
	}
}

func expectRedirect(t *testing.T, rr *httptest.ResponseRecorder, location string) {
	t.Helper()
	expectStatus(t, rr, http.StatusFound)
	if got := rr.Header().Get("Location"); got != location {
		t.Fatalf("expected redirect to %q, got %q", location, got)
	}
}

func expectBody(t *testing.T, rr *httptest.ResponseRecorder, substr string, present bool) {
	t.Helper()
	if strings.Contains(rr.Body.String(), substr) != present {
		t.Fatalf("body contains %q = %v, want %v:\n%s", substr, !present, present, rr.Body.String())
	}
}

func postPath(p models.Post, username string) string {
	return "/" + username + "/" + strconv.FormatInt(p.ID, 10) + "/"
}

//
// --- Creating posts ---
//

func TestNewPost_AnonymousRedirectsToLogin(t *testing.T) {
	env := setupTestServer(t)

	rr := env.do(t, postForm("/new/", url.Values{"text": {"hi"}}), nil)
	expectRedirect(t, rr, "/login/?next=/new/")

	if len(env.store.Posts) != 0 {
		t.Fatalf("anonymous request created a post")
	}
}

func TestNewPost_GroupScenario(t *testing.T) {
	env := setupTestServer(t)
	leia := env.user(t, "leia")
	g := env.group(t, "may4")
	text := "May the Force be with you!"

	rr := env.do(t, postMultipart(t, "/new/", map[string]string{
		"text":  text,
		"group": strconv.FormatInt(g.ID, 10),
	}, "", nil), &leia)
	expectRedirect(t, rr, "/")

	if len(env.store.Posts) != 1 {
		t.Fatalf("expected 1 post, got %d", len(env.store.Posts))
	}
	var created models.Post
	for _, p := range env.store.Posts {
		created = p
	}
	if created.AuthorID != leia.ID || created.GroupID == nil || *created.GroupID != g.ID {
		t.Fatalf("post stored with wrong author/group: %+v", created)
	}

	for _, path := range []string{"/", "/group/may4/", "/leia/", postPath(created, "leia")} {
		rr = env.do(t, get(path), nil)
		expectStatus(t, rr, http.StatusOK)
		expectBody(t, rr, text, true)
	}

	events := env.kafka.Events()
	if len(events) != 1 || events[0].Kind != models.EventPostCreated || events[0].PostID != created.ID {
		t.Fatalf("expected a post_created event, got %+v", events)
	}
}

func TestNewPost_NonImageUploadRejected(t *testing.T) {
	env := setupTestServer(t)
	leia := env.user(t, "leia")

	rr := env.do(t, postMultipart(t, "/new/", map[string]string{"text": "with file"}, "notes.gif", []byte("not an image")), &leia)
	expectStatus(t, rr, http.StatusOK)
	expectBody(t, rr, media.InvalidImageMessage, true)
	expectBody(t, rr, "with file", true)

	if len(env.store.Posts) != 0 || env.images.Len() != 0 {
		t.Fatalf("rejected form persisted something: posts=%d images=%d", len(env.store.Posts), env.images.Len())
	}
	if len(env.kafka.WrittenMessages) != 0 {
		t.Fatalf("rejected form published an event")
	}
}

func TestNewPost_WithImage(t *testing.T) {
	env := setupTestServer(t)
	leia := env.user(t, "leia")

	rr := env.do(t, postMultipart(t, "/new/", map[string]string{"text": "pic"}, "small.gif", smallGIF), &leia)
	expectRedirect(t, rr, "/")

	if env.images.Len() != 1 {
		t.Fatalf("expected image to be stored")
	}
	for _, p := range env.store.Posts {
		if !strings.HasPrefix(p.Image, "posts/") {
			t.Fatalf("unexpected image key %q", p.Image)
		}
		rr = env.do(t, get(postPath(p, "leia")), nil)
		expectBody(t, rr, "/media/"+p.Image, true)
	}
}

func TestNewPost_UploadTooLargeShowsFieldError(t *testing.T) {
	env := setupTestServer(t)
	env.srv.maxUpload = 1024
	leia := env.user(t, "leia")

	big := append(append([]byte{}, smallGIF...), bytes.Repeat([]byte{0}, 4096)...)
	rr := env.do(t, postMultipart(t, "/new/", map[string]string{"text": "huge"}, "big.gif", big), &leia)
	expectStatus(t, rr, http.StatusOK)
	expectBody(t, rr, "The uploaded file is too large.", true)

	if len(env.store.Posts) != 0 || env.images.Len() != 0 {
		t.Fatalf("oversized upload persisted something: posts=%d images=%d", len(env.store.Posts), env.images.Len())
	}
}

func TestEditPost_UploadTooLargeKeepsPost(t *testing.T) {
	env := setupTestServer(t)
	env.srv.maxUpload = 1024
	leia := env.user(t, "leia")
	p := env.post(t, leia, "original", time.Now())

	big := append(append([]byte{}, smallGIF...), bytes.Repeat([]byte{0}, 4096)...)
	rr := env.do(t, postMultipart(t, postPath(p, "leia")+"edit/", map[string]string{"text": "changed"}, "big.gif", big), &leia)
	expectStatus(t, rr, http.StatusOK)
	expectBody(t, rr, "The uploaded file is too large.", true)
	expectBody(t, rr, "original", true)

	if got := env.store.Posts[p.ID].Text; got != "original" {
		t.Fatalf("oversized upload changed the post: %q", got)
	}
}

func TestNewPost_BlankTextShowsError(t *testing.T) {
	env := setupTestServer(t)
	leia := env.user(t, "leia")

	rr := env.do(t, postForm("/new/", url.Values{"text": {"   "}}), &leia)
	expectStatus(t, rr, http.StatusOK)
	expectBody(t, rr, "This field is required.", true)
}

func TestNewPost_Form(t *testing.T) {
	env := setupTestServer(t)
	leia := env.user(t, "leia")
	env.group(t, "may4")

	rr := env.do(t, get("/new/"), &leia)
	expectStatus(t, rr, http.StatusOK)
	expectBody(t, rr, "Group may4", true)
}

//
// --- Page cache ---
//

func TestIndex_ServesStaleListWithinWindow(t *testing.T) {
	env := setupTestServer(t)
	leia := env.user(t, "leia")

	rr := env.do(t, get("/"), nil)
	expectBody(t, rr, "No posts yet.", true)

	env.post(t, leia, "fresh news", env.clock.Now())

	env.clock.Advance(19 * time.Second)
	rr = env.do(t, get("/"), nil)
	expectBody(t, rr, "fresh news", false)

	env.clock.Advance(2 * time.Second)
	rr = env.do(t, get("/"), nil)
	expectBody(t, rr, "fresh news", true)
}

func TestIndex_ClearRefreshes(t *testing.T) {
	env := setupTestServer(t)
	leia := env.user(t, "leia")

	env.do(t, get("/"), nil)
	env.post(t, leia, "after clear", env.clock.Now())

	if err := env.pages.Clear(context.Background(), cache.IndexPageKey); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	rr := env.do(t, get("/"), nil)
	expectBody(t, rr, "after clear", true)
}

func TestIndex_ViewerChromeNotCached(t *testing.T) {
	env := setupTestServer(t)
	leia := env.user(t, "leia")

	env.do(t, get("/"), &leia)
	rr := env.do(t, get("/"), nil)
	expectBody(t, rr, "Log out", false)
	expectBody(t, rr, "Log in", true)
}

//
// --- Pagination ---
//

func TestPagination_ClampsToLastPage(t *testing.T) {
	env := setupTestServer(t)
	leia := env.user(t, "leia")
	g := env.group(t, "may4")
	base := time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 11; i++ {
		p := models.Post{Text: "post " + strconv.Itoa(i), AuthorID: leia.ID, GroupID: &g.ID, PubDate: base.Add(time.Duration(i) * time.Minute)}
		if err := env.store.AddPost(context.Background(), &p); err != nil {
			t.Fatalf("AddPost: %v", err)
		}
	}

	rr := env.do(t, get("/group/may4/"), nil)
	if n := strings.Count(rr.Body.String(), `class="post"`); n != 10 {
		t.Fatalf("expected 10 posts on page 1, got %d", n)
	}

	for _, page := range []string{"2", "99"} {
		rr = env.do(t, get("/group/may4/?page="+page), nil)
		expectStatus(t, rr, http.StatusOK)
		if n := strings.Count(rr.Body.String(), `class="post"`); n != 1 {
			t.Fatalf("page %s: expected 1 post, got %d", page, n)
		}
		expectBody(t, rr, "post 0<", true)
	}

	rr = env.do(t, get("/?page=2"), nil)
	expectBody(t, rr, "post 0<", true)

	rr = env.do(t, get("/leia/?page=3"), nil)
	if n := strings.Count(rr.Body.String(), `class="post"`); n != 1 {
		t.Fatalf("profile page 3: expected 1 post, got %d", n)
	}
}

//
// --- Viewing ---
//

func TestPostView_AuthorMismatchIs404(t *testing.T) {
	env := setupTestServer(t)
	leia := env.user(t, "leia")
	env.user(t, "han")
	p := env.post(t, leia, "mine", time.Now())

	rr := env.do(t, get(postPath(p, "han")), nil)
	expectStatus(t, rr, http.StatusNotFound)
	expectBody(t, rr, "Error 404", true)

	rr = env.do(t, get("/leia/abc/"), nil)
	expectStatus(t, rr, http.StatusNotFound)

	rr = env.do(t, get(postPath(p, "leia")), nil)
	expectStatus(t, rr, http.StatusOK)
	expectBody(t, rr, "leia has 1 posts.", true)
}

func TestUnknownPages404(t *testing.T) {
	env := setupTestServer(t)
	for _, path := range []string{"/nobody/", "/group/nope/", "/a/b/c/d/"} {
		rr := env.do(t, get(path), nil)
		expectStatus(t, rr, http.StatusNotFound)
	}
}

//
// --- Editing ---
//

func TestEditPost_NonOwnerRedirectedWithoutChange(t *testing.T) {
	env := setupTestServer(t)
	leia := env.user(t, "leia")
	han := env.user(t, "han")
	p := env.post(t, leia, "original", time.Now())
	editPath := postPath(p, "leia") + "edit/"

	rr := env.do(t, get(editPath), &han)
	expectRedirect(t, rr, postPath(p, "leia"))

	rr = env.do(t, postForm(editPath, url.Values{"text": {"hijacked"}}), &han)
	expectRedirect(t, rr, postPath(p, "leia"))

	if got := env.store.Posts[p.ID].Text; got != "original" {
		t.Fatalf("non-owner changed the post: %q", got)
	}
}

func TestEditPost_OwnerKeepsPubDate(t *testing.T) {
	env := setupTestServer(t)
	leia := env.user(t, "leia")
	published := time.Date(2020, 9, 3, 19, 4, 0, 0, time.UTC)
	p := env.post(t, leia, "original", published)
	editPath := postPath(p, "leia") + "edit/"

	rr := env.do(t, get(editPath), &leia)
	expectStatus(t, rr, http.StatusOK)
	expectBody(t, rr, "original", true)

	rr = env.do(t, postForm(editPath, url.Values{"text": {"edited"}}), &leia)
	expectRedirect(t, rr, postPath(p, "leia"))

	stored := env.store.Posts[p.ID]
	if stored.Text != "edited" || !stored.PubDate.Equal(published) {
		t.Fatalf("unexpected post after edit: %+v", stored)
	}

	events := env.kafka.Events()
	if len(events) != 1 || events[0].Kind != models.EventPostEdited {
		t.Fatalf("expected a post_edited event, got %+v", events)
	}
}

func TestEditPost_AnonymousRedirectsToLogin(t *testing.T) {
	env := setupTestServer(t)
	leia := env.user(t, "leia")
	p := env.post(t, leia, "original", time.Now())

	rr := env.do(t, get(postPath(p, "leia")+"edit/"), nil)
	expectRedirect(t, rr, "/login/?next="+postPath(p, "leia")+"edit/")
}

//
// --- Comments ---
//

func TestAddComment(t *testing.T) {
	env := setupTestServer(t)
	leia := env.user(t, "leia")
	han := env.user(t, "han")
	p := env.post(t, leia, "hello", time.Now())
	commentPath := postPath(p, "leia") + "comment"

	rr := env.do(t, postForm(commentPath, url.Values{"text": {"nice one"}}), &han)
	expectRedirect(t, rr, postPath(p, "leia"))

	rr = env.do(t, get(postPath(p, "leia")), nil)
	expectBody(t, rr, "nice one", true)

	events := env.kafka.Events()
	if len(events) != 1 || events[0].Kind != models.EventCommentAdded || events[0].TargetUserID != leia.ID {
		t.Fatalf("expected a comment_added event targeting the author, got %+v", events)
	}

	rr = env.do(t, postForm(commentPath, url.Values{"text": {""}}), &han)
	expectStatus(t, rr, http.StatusOK)
	expectBody(t, rr, "This field is required.", true)
	if len(env.store.Comments) != 1 {
		t.Fatalf("invalid comment was stored")
	}

	rr = env.do(t, postForm(commentPath, url.Values{"text": {"x"}}), nil)
	expectRedirect(t, rr, "/login/?next="+commentPath)
}

//
// --- Follow graph ---
//

func TestFollow_Idempotent(t *testing.T) {
	env := setupTestServer(t)
	env.user(t, "leia")
	han := env.user(t, "han")

	for i := 0; i < 2; i++ {
		rr := env.do(t, postForm("/leia/follow/", nil), &han)
		expectRedirect(t, rr, "/leia/")
	}
	if len(env.store.Follows) != 1 {
		t.Fatalf("expected exactly one edge, got %d", len(env.store.Follows))
	}
	if n := len(env.kafka.Events()); n != 1 {
		t.Fatalf("expected one followed event, got %d", n)
	}

	rr := env.do(t, get("/leia/"), &han)
	expectBody(t, rr, "Followers: 1", true)
	expectBody(t, rr, "/leia/unfollow/", true)
}

func TestFollow_SelfCreatesNothing(t *testing.T) {
	env := setupTestServer(t)
	leia := env.user(t, "leia")

	rr := env.do(t, get("/leia/follow/"), &leia)
	expectRedirect(t, rr, "/leia/")
	if len(env.store.Follows) != 0 {
		t.Fatalf("self-follow created an edge")
	}
}

func TestUnfollow_WithoutEdgeIsNoop(t *testing.T) {
	env := setupTestServer(t)
	env.user(t, "leia")
	han := env.user(t, "han")

	rr := env.do(t, postForm("/leia/unfollow/", nil), &han)
	expectRedirect(t, rr, "/leia/")

	env.do(t, postForm("/leia/follow/", nil), &han)
	rr = env.do(t, postForm("/leia/unfollow/", nil), &han)
	expectRedirect(t, rr, "/leia/")
	if len(env.store.Follows) != 0 {
		t.Fatalf("unfollow left the edge in place")
	}
}

func TestFollow_UnknownAuthor404(t *testing.T) {
	env := setupTestServer(t)
	han := env.user(t, "han")
	rr := env.do(t, postForm("/nobody/follow/", nil), &han)
	expectStatus(t, rr, http.StatusNotFound)
}

func TestFollowIndex_OnlyFollowedAuthors(t *testing.T) {
	env := setupTestServer(t)
	leia := env.user(t, "leia")
	luke := env.user(t, "luke")
	han := env.user(t, "han")
	env.post(t, leia, "from leia", time.Now())
	env.post(t, luke, "from luke", time.Now())

	rr := env.do(t, get("/follow/"), &han)
	expectStatus(t, rr, http.StatusOK)
	expectBody(t, rr, "No posts yet.", true)

	env.do(t, postForm("/leia/follow/", nil), &han)
	rr = env.do(t, get("/follow/"), &han)
	expectBody(t, rr, "from leia", true)
	expectBody(t, rr, "from luke", false)

	rr = env.do(t, get("/follow/"), nil)
	expectRedirect(t, rr, "/login/?next=/follow/")
}

//
// --- Identity ---
//

func TestSignupAndLogin(t *testing.T) {
	env := setupTestServer(t)

	rr := env.do(t, postForm("/signup/", url.Values{
		"username": {"rey"}, "password1": {"password123"}, "password2": {"password123"},
	}), nil)
	expectRedirect(t, rr, "/")
	if len(rr.Result().Cookies()) != 1 {
		t.Fatalf("signup did not set a session cookie")
	}

	rr = env.do(t, postForm("/login/", url.Values{
		"username": {"rey"}, "password": {"password123"}, "next": {"/new/"},
	}), nil)
	expectRedirect(t, rr, "/new/")

	rr = env.do(t, postForm("/login/", url.Values{
		"username": {"rey"}, "password": {"password123"}, "next": {"//evil.example"},
	}), nil)
	expectRedirect(t, rr, "/")

	rr = env.do(t, postForm("/login/", url.Values{"username": {"rey"}, "password": {"wrong"}}), nil)
	expectStatus(t, rr, http.StatusOK)
	expectBody(t, rr, "Please enter a correct username and password.", true)
}

func TestSignup_Rejects(t *testing.T) {
	env := setupTestServer(t)
	env.user(t, "leia")

	cases := map[string]url.Values{
		"reserved": {"username": {"follow"}, "password1": {"password123"}, "password2": {"password123"}},
		"taken":    {"username": {"leia"}, "password1": {"password123"}, "password2": {"password123"}},
		"short":    {"username": {"finn"}, "password1": {"short"}, "password2": {"short"}},
		"format":   {"username": {"bad name"}, "password1": {"password123"}, "password2": {"password123"}},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			rr := env.do(t, postForm("/signup/", values), nil)
			expectStatus(t, rr, http.StatusOK)
			expectBody(t, rr, `class="error"`, true)
		})
	}
	if len(env.store.Users) != 1 {
		t.Fatalf("rejected signups created users")
	}
}

func TestLogout(t *testing.T) {
	env := setupTestServer(t)
	leia := env.user(t, "leia")
	rr := env.do(t, get("/logout/"), &leia)
	expectRedirect(t, rr, "/")
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge >= 0 {
		t.Fatalf("logout did not expire the session cookie: %+v", cookies)
	}
}

//
// --- API ---
//

func TestActivity(t *testing.T) {
	env := setupTestServer(t)
	leia := env.user(t, "leia")

	rr := env.do(t, get("/api/activity/"), nil)
	expectStatus(t, rr, http.StatusUnauthorized)

	ev := models.Event{Kind: models.EventFollowed, ActorID: 2, Actor: "han", TargetUserID: leia.ID, OccurredAt: time.Now().UTC()}
	if err := env.journal.Append(context.Background(), leia.ID, ev); err != nil {
		t.Fatalf("Append: %v", err)
	}

	rr = env.do(t, get("/api/activity/?limit=5"), &leia)
	expectStatus(t, rr, http.StatusOK)

	var body struct {
		UserID int64          `json:"user_id"`
		Events []models.Event `json:"events"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.UserID != leia.ID || len(body.Events) != 1 || body.Events[0].Actor != "han" {
		t.Fatalf("unexpected activity: %+v", body)
	}
}

func TestHealthz(t *testing.T) {
	env := setupTestServer(t)
	rr := env.do(t, get("/healthz"), nil)
	expectStatus(t, rr, http.StatusOK)
	expectBody(t, rr, "ok", true)
}

//
// --- Failures ---
//

func TestStoreFailureRenders500(t *testing.T) {
	env := setupTestServer(t)
	env.store.ShouldFail = true

	rr := env.do(t, get("/group/may4/"), nil)
	expectStatus(t, rr, http.StatusInternalServerError)
	expectBody(t, rr, "Error 500", true)
}

func TestEventFailureDoesNotFailWrite(t *testing.T) {
	env := setupTestServer(t)
	env.kafka.ShouldFail = true
	leia := env.user(t, "leia")

	rr := env.do(t, postForm("/new/", url.Values{"text": {"still saved"}}), &leia)
	expectRedirect(t, rr, "/")
	if len(env.store.Posts) != 1 {
		t.Fatalf("post not saved when broker failed")
	}
}
