package server

import (
	"net/http"

	"example.com/postfeed/internal/feed"
	"example.com/postfeed/internal/middleware"
	"example.com/postfeed/internal/models"
	"github.com/go-chi/chi/v5"
)

func (s *Server) profileHandler(w http.ResponseWriter, r *http.Request) {
	author, posts, err := s.content.ListByAuthor(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		s.fail(w, r, "http/profile", err)
		return
	}
	v := viewer(r)
	profile, err := s.social.Profile(r.Context(), v.Viewer, author)
	if err != nil {
		s.fail(w, r, "http/profile", err)
		return
	}
	s.render(w, r, http.StatusOK, "profile.html", profileView{
		base:    v,
		Profile: profile,
		Page:    feed.Paginate(posts, feed.ProfilePageSize, r.URL.Query().Get("page")),
	})
}

func (s *Server) followIndexHandler(w http.ResponseWriter, r *http.Request) {
	v := viewer(r)
	posts, err := s.social.FeedFor(r.Context(), v.Viewer)
	if err != nil {
		s.fail(w, r, "http/follow", err)
		return
	}
	s.render(w, r, http.StatusOK, "follow.html", listView{
		base: v,
		Page: feed.Paginate(posts, feed.FollowPageSize, r.URL.Query().Get("page")),
	})
}

func (s *Server) followHandler(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	author, created, err := s.social.Follow(r.Context(), principal, chi.URLParam(r, "username"))
	if err != nil {
		s.fail(w, r, "http/follow", err)
		return
	}
	if created {
		s.publish(r.Context(), models.Event{
			Kind:         models.EventFollowed,
			ActorID:      principal.UserID,
			Actor:        principal.Username,
			TargetUserID: author.ID,
			Summary:      author.Username,
			OccurredAt:   s.now(),
		})
	}
	http.Redirect(w, r, "/"+author.Username+"/", http.StatusFound)
}

func (s *Server) unfollowHandler(w http.ResponseWriter, r *http.Request) {
	principal := middleware.PrincipalFromContext(r.Context())
	author, deleted, err := s.social.Unfollow(r.Context(), principal, chi.URLParam(r, "username"))
	if err != nil {
		s.fail(w, r, "http/unfollow", err)
		return
	}
	if deleted {
		s.publish(r.Context(), models.Event{
			Kind:         models.EventUnfollowed,
			ActorID:      principal.UserID,
			Actor:        principal.Username,
			TargetUserID: author.ID,
			Summary:      author.Username,
			OccurredAt:   s.now(),
		})
	}
	http.Redirect(w, r, "/"+author.Username+"/", http.StatusFound)
}
