package server

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionCookieName = "gazette_session"

type contextKey string

const userContextKey contextKey = "user"

type loginRequest struct {
	User     string `json:"user"`
	Password string `json:"password"`
}

// handleLogin checks the dashboard password and sets the session cookie.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.User == "" {
		req.User = "admin"
	}

	expected := s.cfg.Auth.DashboardPassword
	if expected == "" || subtle.ConstantTimeCompare([]byte(req.Password), []byte(expected)) != 1 {
		s.log.Warn("Failed login attempt", "user", req.User)
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	ttl := s.cfg.Auth.SessionTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}

	claims := jwt.RegisteredClaims{
		Subject:   req.User,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(s.cfg.Auth.SessionSecret))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(ttl),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	s.respondJSON(w, http.StatusOK, map[string]string{"user": req.User})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	w.WriteHeader(http.StatusNoContent)
}

// sessionAuth requires a valid session cookie on dashboard routes.
func (s *Server) sessionAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookieName)
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		token, err := jwt.ParseWithClaims(cookie.Value, &jwt.RegisteredClaims{},
			func(t *jwt.Token) (any, error) {
				if t.Method != jwt.SigningMethodHS256 {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(s.cfg.Auth.SessionSecret), nil
			})
		if err != nil || !token.Valid {
			s.respondError(w, http.StatusUnauthorized, "session expired or invalid")
			return
		}

		user := "admin"
		if claims, ok := token.Claims.(*jwt.RegisteredClaims); ok && claims.Subject != "" {
			user = claims.Subject
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

// cronAuth requires the shared scheduler token as a bearer header.
func (s *Server) cronAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		expected := s.cfg.Auth.CronToken
		if expected == "" || subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
			s.respondError(w, http.StatusUnauthorized, "invalid cron token")
			return
		}
		next.ServeHTTP(w, r)
	})
}
