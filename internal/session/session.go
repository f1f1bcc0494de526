// Package session resolves an optional user identity from a cookie.
// Absence of a logged-in user never blocks simulated trading: anonymous
// visitors get a stable per-browser guest id instead.
package session

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
)

const (
	cookieName  = "sessionid"
	keyUserID   = "userID"
	keyUsername = "username"
	keyGuestID  = "guestID"
)

// Manager wraps the cookie store. One per server.
type Manager struct {
	store *sessions.CookieStore
}

// NewManager creates a session manager. An empty secret gets an
// ephemeral random key; sessions then reset on restart.
func NewManager(secret string) *Manager {
	if secret == "" {
		secret = uuid.New().String()
		slog.Warn("SECRET_KEY not set, sessions will not survive restarts")
	}
	return &Manager{store: sessions.NewCookieStore([]byte(secret))}
}

// Identify returns the stable user id for this request: the logged-in
// user id when present, otherwise a guest id minted on first visit and
// persisted in the cookie.
func (m *Manager) Identify(w http.ResponseWriter, r *http.Request) string {
	sess, _ := m.store.Get(r, cookieName)

	if id, ok := sess.Values[keyUserID].(string); ok && id != "" {
		return id
	}
	if id, ok := sess.Values[keyGuestID].(string); ok && id != "" {
		return id
	}

	id := "guest-" + uuid.New().String()
	sess.Values[keyGuestID] = id
	if err := sess.Save(r, w); err != nil {
		slog.Warn("failed to persist guest session", "err", err)
	}
	return id
}

// Username returns the logged-in display name, or "" for guests.
func (m *Manager) Username(r *http.Request) string {
	sess, _ := m.store.Get(r, cookieName)
	name, _ := sess.Values[keyUsername].(string)
	return name
}

// Login records the user identity in the session cookie.
func (m *Manager) Login(w http.ResponseWriter, r *http.Request, username string) (string, error) {
	sess, _ := m.store.Get(r, cookieName)
	id := "user-" + username
	sess.Values[keyUserID] = id
	sess.Values[keyUsername] = username
	return id, sess.Save(r, w)
}

// Logout clears the session.
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, cookieName)
	for key := range sess.Values {
		delete(sess.Values, key)
	}
	return sess.Save(r, w)
}
