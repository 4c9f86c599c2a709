package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"example.com/postfeed/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const principalCtxKey = contextKey("principal")

// SessionCookie carries the signed session token for browser clients.
const SessionCookie = "session"

// LoginPath is where anonymous visitors are sent by RequireLogin.
const LoginPath = "/login/"

var ErrInvalidToken = errors.New("invalid token")

// Authenticator issues and verifies HS256 session tokens.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// IssueToken signs a token for u that expires after the session TTL.
func (a *Authenticator) IssueToken(u models.User) (string, time.Time, error) {
	exp := a.now().Add(a.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  strconv.FormatInt(u.ID, 10),
		"username": u.Username,
		"exp":      exp.Unix(),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseToken verifies raw and returns the identity it was issued for.
func (a *Authenticator) ParseToken(raw string) (models.Principal, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return models.Principal{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return models.Principal{}, ErrInvalidToken
	}
	rawID, ok := claims["user_id"].(string)
	if !ok {
		return models.Principal{}, ErrInvalidToken
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id < 1 {
		return models.Principal{}, ErrInvalidToken
	}
	username, _ := claims["username"].(string)
	return models.Principal{UserID: id, Username: username}, nil
}

// SetSession issues a token for u and stores it in the session cookie.
func (a *Authenticator) SetSession(w http.ResponseWriter, u models.User) error {
	token, exp, err := a.IssueToken(u)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  exp,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// Session resolves the caller from a Bearer header or the session cookie.
// Requests without a valid token continue as anonymous.
func (a *Authenticator) Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			if c, err := r.Cookie(SessionCookie); err == nil {
				raw = c.Value
			}
		}
		if raw != "" {
			if p, err := a.ParseToken(raw); err == nil {
				r = r.WithContext(WithPrincipal(r.Context(), p))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// JWTAuth rejects requests that carry no valid token with 401. Used for
// API routes where a redirect makes no sense.
func (a *Authenticator) JWTAuth(next http.Handler) http.Handler {
	return a.Session(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !PrincipalFromContext(r.Context()).Authenticated() {
			http.Error(w, "invalid or missing token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	}))
}

// RequireLogin redirects anonymous visitors to the login page, remembering
// where they were going.
func RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !PrincipalFromContext(r.Context()).Authenticated() {
			http.Redirect(w, r, LoginURL(r.URL.RequestURI()), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// LoginURL builds /login/?next=<target> keeping slashes readable.
func LoginURL(target string) string {
	return LoginPath + "?next=" + strings.ReplaceAll(url.QueryEscape(target), "%2F", "/")
}

func WithPrincipal(ctx context.Context, p models.Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, p)
}

// PrincipalFromContext returns the anonymous principal when none is set.
func PrincipalFromContext(ctx context.Context) models.Principal {
	p, _ := ctx.Value(principalCtxKey).(models.Principal)
	return p
}

func bearerToken(r *http.Request) string {
	parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
