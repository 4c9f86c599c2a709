package server

import (
	"context"
	"net/http"
	"time"

	appkafka "example.com/postfeed/internal/broker"
	"example.com/postfeed/internal/cache"
	"example.com/postfeed/internal/content"
	"example.com/postfeed/internal/journal"
	"example.com/postfeed/internal/logger"
	"example.com/postfeed/internal/media"
	"example.com/postfeed/internal/middleware"
	"example.com/postfeed/internal/social"
	"example.com/postfeed/internal/store"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

var logg = logger.New()

const defaultMaxUpload = 10 << 20

type Server struct {
	store   store.StoreInterface
	content *content.Service
	social  *social.Service
	auth    *middleware.Authenticator
	pages   *cache.PageCache
	events  appkafka.Publisher
	journal journal.Journal
	tmpl    *templates

	maxUpload int64
	now       func() time.Time
}

// Options carries the pre-initialized dependencies. Events and Journal may be
// nil: events are then dropped and the activity API answers 503.
type Options struct {
	Store         store.StoreInterface
	Images        media.ImageStore
	Pages         *cache.PageCache
	Auth          *middleware.Authenticator
	Events        appkafka.Publisher
	Journal       journal.Journal
	MaxUploadSize int64
}

func New(opts Options) (*Server, error) {
	tmpl, err := parseTemplates(templateFuncs(opts.Images.URL))
	if err != nil {
		return nil, err
	}
	events := opts.Events
	if events == nil {
		events = appkafka.NopPublisher{}
	}
	maxUpload := opts.MaxUploadSize
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &Server{
		store:     opts.Store,
		content:   content.NewService(opts.Store, opts.Images),
		social:    social.NewService(opts.Store),
		auth:      opts.Auth,
		pages:     opts.Pages,
		events:    events,
		journal:   opts.Journal,
		tmpl:      tmpl,
		maxUpload: maxUpload,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Routes builds the HTTP router. Static segments win over {username}, so
// reserved usernames can never shadow them.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(s.auth.Session)

	r.NotFound(s.notFound)

	r.Get("/healthz", s.healthzHandler)
	r.With(s.auth.JWTAuth).Get("/api/activity/", s.activityHandler)

	r.Get("/", s.indexHandler)
	r.Get("/group/{slug}/", s.groupHandler)

	r.Get("/login/", s.loginHandler)
	r.Post("/login/", s.loginHandler)
	r.Get("/signup/", s.signupHandler)
	r.Post("/signup/", s.signupHandler)
	r.Get("/logout/", s.logoutHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireLogin)

		r.Get("/new/", s.newPostHandler)
		r.Post("/new/", s.newPostHandler)
		r.Get("/follow/", s.followIndexHandler)

		r.Get("/{username}/{postID}/edit/", s.editPostHandler)
		r.Post("/{username}/{postID}/edit/", s.editPostHandler)
		r.Get("/{username}/{postID}/comment", s.addCommentHandler)
		r.Post("/{username}/{postID}/comment", s.addCommentHandler)

		r.Get("/{username}/follow/", s.followHandler)
		r.Post("/{username}/follow/", s.followHandler)
		r.Get("/{username}/unfollow/", s.unfollowHandler)
		r.Post("/{username}/unfollow/", s.unfollowHandler)
	})

	r.Get("/{username}/", s.profileHandler)
	r.Get("/{username}/{postID}/", s.postViewHandler)

	return r
}

// Run serves until ctx is canceled, then shuts down gracefully. TLS is used
// when both certFile and keyFile are set.
func Run(ctx context.Context, s *Server, addr, certFile, keyFile string) {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Routes(),
		ReadTimeout:  10 * time.Second, // prevent slowloris attacks
		WriteTimeout: 10 * time.Second,
	}

	// --- Start server in a goroutine ---
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			logg.Info("server", "Starting HTTPS server on "+addr)
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			logg.Info("server", "Starting HTTP server on "+addr)
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logg.Error("server", "Server stopped unexpectedly", err)
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	logg.Info("server", "Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("server", "Error during server shutdown", err)
	} else {
		logg.Info("server", "Server stopped gracefully")
	}
}
