package main

import (
	"errors"
	"net/http"
	"strconv"
	"time"
)

// profile is the public view of a user plus presence classification.
type profile struct {
	User     User   `json:"user"`
	Online   bool   `json:"online"`
	LastSeen string `json:"last_seen_label"`
}

func (a *api) profileOf(r *http.Request, u User) profile {
	now := time.Now()
	lastSeen := a.presence.lastSeenFor(r.Context(), &u)
	return profile{
		User:     u,
		Online:   a.tracker.Config().Online(lastSeen, now),
		LastSeen: LastSeenLabel(lastSeen, now),
	}
}

func (a *api) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	u, err := a.store.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, 404, "not found")
			return
		}
		a.log.Error("get user", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, a.profileOf(r, u))
}

// GET /api/users/{id}/presence
func (a *api) handleUserPresence(w http.ResponseWriter, r *http.Request) {
	u, err := a.store.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, 404, "not found")
			return
		}
		a.log.Error("get user", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	now := time.Now()
	lastSeen := a.presence.lastSeenFor(r.Context(), &u)
	writeJSON(w, 200, map[string]any{
		"user_id":         u.ID,
		"online":          a.tracker.Config().Online(lastSeen, now),
		"last_seen":       lastSeen,
		"last_seen_label": LastSeenLabel(lastSeen, now),
	})
}

func (a *api) handleAdminListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	items, err := a.store.ListUsers(r.Context(), q, limit)
	if err != nil {
		a.log.Error("admin list users", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, items)
}

// PATCH /api/admin/users/{id}/role {role}
// Role changes are admin-only; the role itself was assigned once at signup.
func (a *api) handleAdminSetRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Role string `json:"role"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	role := Role(req.Role)
	if role != RoleAdmin && role != RoleUser {
		writeError(w, 400, "invalid role")
		return
	}
	if err := a.store.UpdateUserRole(r.Context(), r.PathValue("id"), role); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, 404, "not found")
			return
		}
		a.log.Error("update user role", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true})
}
