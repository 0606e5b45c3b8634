// Package session binds browser cookies to workspace IDs.
package session

import (
	"errors"
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	cookieName   = "quizgenius-session"
	workspaceKey = "workspace"
	maxAgeSecs   = 7 * 24 * 60 * 60
)

// ErrNoSession is returned when the request carries no workspace binding.
var ErrNoSession = errors.New("no session")

// Manager reads and writes the signed session cookie.
type Manager struct {
	store *sessions.CookieStore
}

// NewManager creates a cookie manager signed with secret. Secure cookies are
// only issued when secure is true so local development works over http.
func NewManager(secret string, secure bool) *Manager {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   maxAgeSecs,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return &Manager{store: store}
}

// WorkspaceID returns the workspace bound to the request.
func (m *Manager) WorkspaceID(r *http.Request) (string, error) {
	sess, err := m.store.Get(r, cookieName)
	if err != nil {
		// a cookie signed with an old secret decodes as an error; treat as absent
		return "", ErrNoSession
	}
	id, ok := sess.Values[workspaceKey].(string)
	if !ok || id == "" {
		return "", ErrNoSession
	}
	return id, nil
}

// Bind stores workspaceID in the session cookie.
func (m *Manager) Bind(w http.ResponseWriter, r *http.Request, workspaceID string) error {
	sess, _ := m.store.Get(r, cookieName)
	sess.Values[workspaceKey] = workspaceID
	sess.Options.MaxAge = maxAgeSecs
	return sess.Save(r, w)
}

// Clear expires the session cookie.
func (m *Manager) Clear(w http.ResponseWriter, r *http.Request) error {
	sess, _ := m.store.Get(r, cookieName)
	delete(sess.Values, workspaceKey)
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}
