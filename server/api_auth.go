package main

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func (a *api) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct{ Name, Username, Email, Password string }
	if err := readJSON(w, r, &req); err != nil ||
		strings.TrimSpace(req.Username) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, 400, "invalid payload")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, 400, "password too short")
		return
	}
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.log.Error("bcrypt", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	u, err := a.store.CreateUser(r.Context(),
		strings.TrimSpace(req.Name), strings.TrimSpace(req.Username), strings.TrimSpace(req.Email), string(hashBytes))
	if err != nil {
		a.log.Error("register", "err", err)
		writeError(w, 400, "cannot create user")
		return
	}
	if err := a.startSession(w, r, u); err != nil {
		a.log.Error("sign session", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 201, map[string]any{"ok": true, "user": u})
}

func (a *api) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct{ Login, Password string }
	if err := readJSON(w, r, &req); err != nil || req.Login == "" || req.Password == "" {
		writeError(w, 400, "invalid payload")
		return
	}
	u, err := a.store.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		writeError(w, 401, "invalid credentials")
		return
	}
	if err := a.startSession(w, r, u); err != nil {
		a.log.Error("sign session", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true, "user": u})
}

// startSession issues the JWT cookie and moves the user into the presence
// heartbeating state. It never writes to the response body; the caller owns
// the status and envelope.
func (a *api) startSession(w http.ResponseWriter, r *http.Request, u User) error {
	expires := time.Now().Add(a.sessionTTL())
	token, err := a.signSession(u.ID, expires)
	if err != nil {
		return err
	}
	a.setSessionCookie(w, token, expires)
	a.tracker.StartSession(r.Context(), u.ID)
	return nil
}

func (a *api) handleLogout(w http.ResponseWriter, r *http.Request) {
	if u, err := a.currentUser(r); err == nil {
		a.tracker.StopSession(r.Context(), u.ID)
	}
	a.clearSessionCookie(w)
	writeJSON(w, 200, map[string]any{"ok": true})
}

func (a *api) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := a.currentUser(r)
	if err != nil {
		// Anonymous gets 200 with user: null to avoid noisy 401s on public pages
		writeJSON(w, 200, map[string]any{"user": nil})
		return
	}
	writeJSON(w, 200, map[string]any{"user": u})
}
