package server

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strconv"

	"example.com/postfeed/internal/apperr"
	"example.com/postfeed/internal/cache"
	"example.com/postfeed/internal/content"
	"example.com/postfeed/internal/feed"
	"example.com/postfeed/internal/media"
	"example.com/postfeed/internal/middleware"
	"example.com/postfeed/internal/models"
	"github.com/go-chi/chi/v5"
)

// --- Listings ---

// indexHandler renders the global feed. The first page's post list comes
// from the page cache and may lag behind new posts for up to one TTL.
func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	rawPage := r.URL.Query().Get("page")
	renderList := func(ctx context.Context) ([]byte, error) {
		posts, err := s.content.ListAll(ctx)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		err = s.tmpl.execute(&buf, "index.html", "post_list", listView{
			Page: feed.Paginate(posts, feed.GlobalPageSize, rawPage),
		})
		return buf.Bytes(), err
	}

	var (
		fragment []byte
		err      error
	)
	if feed.ParsePage(rawPage) == 1 {
		fragment, err = s.pages.Fetch(r.Context(), cache.IndexPageKey, renderList)
	} else {
		fragment, err = renderList(r.Context())
	}
	if err != nil {
		s.fail(w, r, "http/index", err)
		return
	}

	s.render(w, r, http.StatusOK, "index.html", listView{
		base:     viewer(r),
		PostList: template.HTML(fragment),
	})
}

func (s *Server) groupHandler(w http.ResponseWriter, r *http.Request) {
	group, posts, err := s.content.ListByGroup(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.fail(w, r, "http/group", err)
		return
	}
	s.render(w, r, http.StatusOK, "group.html", listView{
		base:  viewer(r),
		Group: group,
		Page:  feed.Paginate(posts, feed.GroupPageSize, r.URL.Query().Get("page")),
	})
}

// --- Single post ---

func (s *Server) postViewHandler(w http.ResponseWriter, r *http.Request) {
	username, postID, ok := s.postParams(w, r)
	if !ok {
		return
	}
	post, err := s.content.GetPost(r.Context(), username, postID)
	if err != nil {
		s.fail(w, r, "http/post", err)
		return
	}
	comments, err := s.content.Comments(r.Context(), post.ID)
	if err != nil {
		s.fail(w, r, "http/post", err)
		return
	}
	count, err := s.content.CountByAuthor(r.Context(), post.AuthorID)
	if err != nil {
		s.fail(w, r, "http/post", err)
		return
	}
	s.render(w, r, http.StatusOK, "post.html", postView{
		base:       viewer(r),
		Post:       post,
		PostsCount: count,
		Comments:   comments,
	})
}

func (s *Server) newPostHandler(w http.ResponseWriter, r *http.Request) {
	view := postFormView{base: viewer(r)}
	if r.Method != http.MethodPost {
		s.renderPostForm(w, r, view)
		return
	}

	form, err := s.readPostForm(w, r)
	if errors.Is(err, errUploadTooLarge) {
		view.Errors = map[string][]string{"image": {msgUploadTooLarge}}
		s.renderPostForm(w, r, view)
		return
	}
	if err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	post, err := s.content.CreatePost(r.Context(), view.Viewer, form)
	if verr, ok := apperr.AsValidation(err); ok {
		view.Text, view.Group, view.Errors = form.Text, form.Group, verr.Fields
		s.renderPostForm(w, r, view)
		return
	}
	if err != nil {
		s.fail(w, r, "http/new", err)
		return
	}

	s.publish(r.Context(), models.Event{
		Kind:       models.EventPostCreated,
		ActorID:    post.AuthorID,
		Actor:      view.Viewer.Username,
		PostID:     post.ID,
		Summary:    summary(post.Text),
		OccurredAt: post.PubDate,
	})
	http.Redirect(w, r, "/", http.StatusFound)
}

// editPostHandler lets the author change a post. Anyone else is sent back
// to the read-only view.
func (s *Server) editPostHandler(w http.ResponseWriter, r *http.Request) {
	username, postID, ok := s.postParams(w, r)
	if !ok {
		return
	}
	principal := middleware.PrincipalFromContext(r.Context())
	postURL := "/" + username + "/" + strconv.FormatInt(postID, 10) + "/"

	post, err := s.content.GetPost(r.Context(), username, postID)
	if err != nil {
		s.fail(w, r, "http/edit", err)
		return
	}
	if post.AuthorID != principal.UserID {
		http.Redirect(w, r, postURL, http.StatusFound)
		return
	}

	view := postFormView{base: viewer(r), IsEdit: true, Text: post.Text, Image: post.Image}
	if post.GroupID != nil {
		view.Group = strconv.FormatInt(*post.GroupID, 10)
	}
	if r.Method != http.MethodPost {
		s.renderPostForm(w, r, view)
		return
	}

	form, err := s.readPostForm(w, r)
	if errors.Is(err, errUploadTooLarge) {
		view.Errors = map[string][]string{"image": {msgUploadTooLarge}}
		s.renderPostForm(w, r, view)
		return
	}
	if err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	edited, err := s.content.EditPost(r.Context(), principal, username, postID, form)
	if verr, ok := apperr.AsValidation(err); ok {
		view.Text, view.Group, view.Errors = form.Text, form.Group, verr.Fields
		s.renderPostForm(w, r, view)
		return
	}
	if errors.Is(err, apperr.ErrForbidden) {
		http.Redirect(w, r, postURL, http.StatusFound)
		return
	}
	if err != nil {
		s.fail(w, r, "http/edit", err)
		return
	}

	s.publish(r.Context(), models.Event{
		Kind:       models.EventPostEdited,
		ActorID:    edited.AuthorID,
		Actor:      principal.Username,
		PostID:     edited.ID,
		Summary:    summary(edited.Text),
		OccurredAt: s.now(),
	})
	http.Redirect(w, r, postURL, http.StatusFound)
}

func (s *Server) addCommentHandler(w http.ResponseWriter, r *http.Request) {
	username, postID, ok := s.postParams(w, r)
	if !ok {
		return
	}
	postURL := "/" + username + "/" + strconv.FormatInt(postID, 10) + "/"
	if r.Method != http.MethodPost {
		http.Redirect(w, r, postURL, http.StatusFound)
		return
	}

	principal := middleware.PrincipalFromContext(r.Context())
	form := content.CommentForm{Text: r.PostFormValue("text")}

	comment, comments, err := s.content.AddComment(r.Context(), principal, username, postID, form)
	if verr, ok := apperr.AsValidation(err); ok {
		post, perr := s.content.GetPost(r.Context(), username, postID)
		if perr != nil {
			s.fail(w, r, "http/comment", perr)
			return
		}
		count, cerr := s.content.CountByAuthor(r.Context(), post.AuthorID)
		if cerr != nil {
			s.fail(w, r, "http/comment", cerr)
			return
		}
		s.render(w, r, http.StatusOK, "post.html", postView{
			base:       viewer(r),
			Post:       post,
			PostsCount: count,
			Comments:   comments,
			Comment:    form.Text,
			Errors:     verr.Fields,
		})
		return
	}
	if err != nil {
		s.fail(w, r, "http/comment", err)
		return
	}

	post, err := s.content.GetPost(r.Context(), username, postID)
	if err == nil {
		s.publish(r.Context(), models.Event{
			Kind:         models.EventCommentAdded,
			ActorID:      comment.AuthorID,
			Actor:        principal.Username,
			TargetUserID: post.AuthorID,
			PostID:       post.ID,
			Summary:      summary(comment.Text),
			OccurredAt:   comment.Created,
		})
	}
	http.Redirect(w, r, postURL, http.StatusFound)
}

// --- Helpers ---

func (s *Server) renderPostForm(w http.ResponseWriter, r *http.Request, view postFormView) {
	groups, err := s.content.Groups(r.Context())
	if err != nil {
		s.fail(w, r, "http/new", err)
		return
	}
	view.Groups = groups
	s.render(w, r, http.StatusOK, "new.html", view)
}

const msgUploadTooLarge = "The uploaded file is too large."

var errUploadTooLarge = errors.New("upload too large")

// readPostForm parses a multipart or urlencoded post form. A missing file
// leaves Image nil. A body over the upload limit yields errUploadTooLarge.
func (s *Server) readPostForm(w http.ResponseWriter, r *http.Request) (content.PostForm, error) {
	if r.ContentLength > s.maxUpload {
		return content.PostForm{}, errUploadTooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return content.PostForm{}, errUploadTooLarge
		}
		return content.PostForm{}, err
	}

	form := content.PostForm{
		Text:       r.PostFormValue("text"),
		Group:      r.PostFormValue("group"),
		ClearImage: r.PostFormValue("image-clear") != "",
	}

	file, header, err := r.FormFile("image")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return form, nil
	case err != nil:
		return content.PostForm{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return content.PostForm{}, err
	}
	form.Image = &media.Upload{Filename: header.Filename, Data: data}
	return form, nil
}

// postParams reads {username} and {postID}; a malformed id is a 404.
func (s *Server) postParams(w http.ResponseWriter, r *http.Request) (string, int64, bool) {
	postID, err := strconv.ParseInt(chi.URLParam(r, "postID"), 10, 64)
	if err != nil || postID < 1 {
		s.notFound(w, r)
		return "", 0, false
	}
	return chi.URLParam(r, "username"), postID, true
}

// publish emits ev without failing the request; the write already happened.
func (s *Server) publish(ctx context.Context, ev models.Event) {
	if err := s.events.Publish(ctx, ev); err != nil {
		logg.Warn("http/events", "Failed to publish event", err, "kind", string(ev.Kind))
	}
}

func summary(text string) string {
	const limit = 80
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "…"
}
