package main

import (
	"errors"
	"net/http"
	"strings"
)

// GET /api/adventures?q=&status=
// Policy-filtered listing; the status refinement is admin-only and ignored
// for everyone else.
func (a *api) handleListAdventures(w http.ResponseWriter, r *http.Request) {
	id := a.identity(r)
	m := a.membershipFor(r, id)
	items, err := a.store.ListAdventures(r.Context())
	if err != nil {
		// fail closed: an unavailable collection renders as empty
		a.log.Error("list adventures", "err", err)
		writeJSON(w, 200, []Adventure{})
		return
	}
	q := Query{Search: r.URL.Query().Get("q")}
	if a.policy.IsAdmin(id) {
		q.Status = r.URL.Query().Get("status")
	}
	writeJSON(w, 200, FilterAdventures(a.policy, id, m, items, q))
}

func (a *api) handleGetAdventure(w http.ResponseWriter, r *http.Request) {
	id := a.identity(r)
	adv, err := a.store.GetAdventure(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, 404, "not found")
			return
		}
		a.log.Error("get adventure", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	m := a.membershipFor(r, id)
	if !a.policy.CanViewAdventure(id, adv, m).CanView {
		// authorization failures are indistinguishable from absence
		writeError(w, 404, "not found")
		return
	}
	writeJSON(w, 200, adv)
}

func (a *api) handleCreateAdventure(w http.ResponseWriter, r *http.Request) {
	id := a.identity(r)
	var req struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		IsPublic    bool   `json:"is_public"`
	}
	if err := readJSON(w, r, &req); err != nil || strings.TrimSpace(req.Title) == "" {
		writeError(w, 400, "invalid payload")
		return
	}
	adv, err := a.store.CreateAdventure(r.Context(), strings.TrimSpace(req.Title), req.Description, req.IsPublic, id.User.ID)
	if err != nil {
		a.log.Error("create adventure", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 201, adv)
}

func (a *api) handleUpdateAdventure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		Status      *string `json:"status"`
		IsPublic    *bool   `json:"is_public"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		writeError(w, 400, "title cannot be empty")
		return
	}
	var status *AdventureStatus
	if req.Status != nil {
		st := AdventureStatus(*req.Status)
		if st != StatusActive && st != StatusInactive {
			writeError(w, 400, "invalid status")
			return
		}
		status = &st
	}
	err := a.store.UpdateAdventure(r.Context(), r.PathValue("id"), req.Title, req.Description, status, req.IsPublic)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, 404, "not found")
			return
		}
		a.log.Error("update adventure", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true})
}

func (a *api) handleDeleteAdventure(w http.ResponseWriter, r *http.Request) {
	if err := a.store.DeleteAdventure(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, 404, "not found")
			return
		}
		a.log.Error("delete adventure", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true})
}

// POST /api/adventures/{id}/visibility {is_public}
func (a *api) handleAdventureVisibility(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsPublic bool `json:"is_public"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	if err := a.store.SetAdventureVisibility(r.Context(), r.PathValue("id"), req.IsPublic); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, 404, "not found")
			return
		}
		a.log.Error("set adventure visibility", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true})
}

func (a *api) handleListParticipants(w http.ResponseWriter, r *http.Request) {
	items, err := a.store.ParticipantsByAdventure(r.Context(), r.PathValue("id"))
	if err != nil {
		a.log.Error("list participants", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, items)
}

func (a *api) handleAddParticipant(w http.ResponseWriter, r *http.Request) {
	id := a.identity(r)
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := readJSON(w, r, &req); err != nil || req.UserID == "" {
		writeError(w, 400, "invalid payload")
		return
	}
	if _, err := a.store.GetAdventure(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, 404, "not found")
		return
	}
	p, err := a.store.AddParticipant(r.Context(), r.PathValue("id"), req.UserID, id.User.ID)
	if err != nil {
		a.log.Error("add participant", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 201, p)
}

func (a *api) handleRemoveParticipant(w http.ResponseWriter, r *http.Request) {
	err := a.store.RemoveParticipant(r.Context(), r.PathValue("id"), r.PathValue("uid"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, 404, "not found")
			return
		}
		a.log.Error("remove participant", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true})
}

// GET /api/my/adventures — the adventures the caller can currently see
func (a *api) handleMyAdventures(w http.ResponseWriter, r *http.Request) {
	id := a.identity(r)
	m := a.membershipFor(r, id)
	items, err := a.store.ListAdventures(r.Context())
	if err != nil {
		a.log.Error("list adventures", "err", err)
		writeJSON(w, 200, []Adventure{})
		return
	}
	writeJSON(w, 200, FilterAdventures(a.policy, id, m, items, Query{}))
}
