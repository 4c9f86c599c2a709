package server

import (
	"errors"
	"net/http"
	"regexp"
	"strings"
	"unicode/utf8"

	"example.com/postfeed/internal/middleware"
	"example.com/postfeed/internal/store"
	"golang.org/x/crypto/bcrypt"
)

const (
	maxUsernameLength = 150
	minPasswordLength = 8

	msgBadCredentials   = "Please enter a correct username and password. Note that both fields may be case-sensitive."
	msgUsernameTaken    = "A user with that username already exists."
	msgUsernameFormat   = "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	msgUsernameReserved = "This username is reserved."
	msgPasswordShort    = "This password is too short. It must contain at least 8 characters."
	msgPasswordMatch    = "The two password fields didn't match."
)

var usernamePattern = regexp.MustCompile(`^[\w.@+-]+$`)

// reservedUsernames would collide with top-level routes.
var reservedUsernames = map[string]bool{
	"login": true, "logout": true, "signup": true, "new": true, "follow": true,
	"group": true, "api": true, "healthz": true, "media": true, "static": true,
}

func (s *Server) loginHandler(w http.ResponseWriter, r *http.Request) {
	view := authView{base: viewer(r), Next: r.URL.Query().Get("next")}
	if r.Method != http.MethodPost {
		s.render(w, r, http.StatusOK, "login.html", view)
		return
	}

	view.Username = strings.TrimSpace(r.PostFormValue("username"))
	view.Next = r.PostFormValue("next")
	password := r.PostFormValue("password")

	user, err := s.store.GetUserByUsername(r.Context(), view.Username)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.fail(w, r, "http/login", err)
		return
	}
	if err != nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		logg.Info("http/login", "Rejected login attempt")
		view.Errors = map[string][]string{"__all__": {msgBadCredentials}}
		s.render(w, r, http.StatusOK, "login.html", view)
		return
	}

	if err := s.auth.SetSession(w, user); err != nil {
		s.fail(w, r, "http/login", err)
		return
	}
	logg.Info("http/login", "User logged in", "user_id", user.ID)
	http.Redirect(w, r, safeNext(view.Next), http.StatusFound)
}

func (s *Server) signupHandler(w http.ResponseWriter, r *http.Request) {
	view := authView{base: viewer(r)}
	if r.Method != http.MethodPost {
		s.render(w, r, http.StatusOK, "signup.html", view)
		return
	}

	view.Username = strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password1")
	errs := map[string][]string{}

	switch {
	case view.Username == "":
		errs["username"] = []string{"This field is required."}
	case utf8.RuneCountInString(view.Username) > maxUsernameLength || !usernamePattern.MatchString(view.Username):
		errs["username"] = []string{msgUsernameFormat}
	case reservedUsernames[strings.ToLower(view.Username)]:
		errs["username"] = []string{msgUsernameReserved}
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		errs["password1"] = []string{msgPasswordShort}
	}
	if password != r.PostFormValue("password2") {
		errs["password2"] = []string{msgPasswordMatch}
	}
	if len(errs) > 0 {
		view.Errors = errs
		s.render(w, r, http.StatusOK, "signup.html", view)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		s.fail(w, r, "http/signup", err)
		return
	}
	user, err := s.store.CreateUser(r.Context(), view.Username, string(hash))
	if errors.Is(err, store.ErrAlreadyExists) {
		view.Errors = map[string][]string{"username": {msgUsernameTaken}}
		s.render(w, r, http.StatusOK, "signup.html", view)
		return
	}
	if err != nil {
		s.fail(w, r, "http/signup", err)
		return
	}

	if err := s.auth.SetSession(w, user); err != nil {
		s.fail(w, r, "http/signup", err)
		return
	}
	logg.Info("http/signup", "User created", "user_id", user.ID)
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	middleware.ClearSession(w)
	http.Redirect(w, r, "/", http.StatusFound)
}

// safeNext only follows local absolute paths.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return "/"
	}
	return next
}
