package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

const sessionCookieName = "family100_session"

type webSession struct {
	username string
	role     Role
	expires  time.Time
}

// sessionStore holds the cookie-backed login sessions for the HTTP
// surface. It is independent of websocket authentication: a connection
// still authenticates in-band even when a cookie session exists.
type sessionStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]webSession
}

func newSessionStore(ttl time.Duration) *sessionStore {
	s := &sessionStore{
		ttl:      ttl,
		sessions: make(map[string]webSession),
	}
	if ttl > 0 {
		go s.reaperLoop()
	}
	return s
}

func (s *sessionStore) create(username string, role Role) string {
	token := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[token] = webSession{
		username: username,
		role:     role,
		expires:  time.Now().Add(s.ttl),
	}

	return token
}

func (s *sessionStore) get(token string) (webSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[token]
	if !ok {
		return webSession{}, false
	}
	if time.Now().After(session.expires) {
		delete(s.sessions, token)
		return webSession{}, false
	}

	return session, true
}

func (s *sessionStore) destroy(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
}

// reaperLoop periodically removes expired sessions.
func (s *sessionStore) reaperLoop() {
	ticker := time.NewTicker(s.ttl / 2)
	for range ticker.C {
		now := time.Now()

		s.mu.Lock()
		for token, session := range s.sessions {
			if now.After(session.expires) {
				delete(s.sessions, token)
			}
		}
		s.mu.Unlock()
	}
}

// fromRequest resolves the session referenced by the request cookie, if
// any.
func (s *sessionStore) fromRequest(r *http.Request) (webSession, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return webSession{}, false
	}
	return s.get(cookie.Value)
}

func (s *sessionStore) setCookie(cfg *Config, w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.ttl.Seconds()),
		HttpOnly: true,
		Secure:   cfg.scheme() == "https",
		SameSite: http.SameSiteLaxMode,
	})
}

func clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}
