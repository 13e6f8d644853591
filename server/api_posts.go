package main

import (
	"errors"
	"net/http"
	"strings"
)

// GET /api/feed?q=&tag=&adventure=
// The aggregate visible-posts union, then free-text/tag/scope refinement.
func (a *api) handleFeed(w http.ResponseWriter, r *http.Request) {
	id := a.identity(r)
	m := a.membershipFor(r, id)
	posts, err := a.store.ListPosts(r.Context())
	if err != nil {
		a.log.Error("list posts", "err", err)
		writeJSON(w, 200, []Post{})
		return
	}
	feed := VisiblePosts(a.policy, id, m, posts)
	q := Query{
		Search:      r.URL.Query().Get("q"),
		Tag:         r.URL.Query().Get("tag"),
		AdventureID: r.URL.Query().Get("adventure"),
	}
	if q.Search != "" || q.Tag != "" || q.AdventureID != "" {
		feed = FilterPosts(a.policy, id, m, feed, q)
	}
	writeJSON(w, 200, feed)
}

func (a *api) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	id := a.identity(r)
	if !a.policy.CanCreatePost(id) {
		writeError(w, 403, "forbidden")
		return
	}
	var req struct {
		Title      string   `json:"title"`
		Captions   string   `json:"captions"`
		Tags       []string `json:"tags"`
		Adventures []string `json:"adventures"`
	}
	if err := readJSON(w, r, &req); err != nil || strings.TrimSpace(req.Title) == "" {
		writeError(w, 400, "invalid payload")
		return
	}
	m := a.membershipFor(r, id)
	// reject the whole submission before any write; report every blocked ID
	if dec := a.policy.CanPostInAdventures(id, req.Adventures, m); !dec.CanPost {
		writeJSON(w, 403, dec)
		return
	}
	p, err := a.store.CreatePost(r.Context(), id.User.ID, strings.TrimSpace(req.Title), req.Captions, req.Tags, req.Adventures)
	if err != nil {
		a.log.Error("create post", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 201, p)
}

func (a *api) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id := a.identity(r)
	p, err := a.store.GetPost(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, 404, "not found")
			return
		}
		a.log.Error("get post", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	m := a.membershipFor(r, id)
	if !a.policy.CanViewPost(id, p, m).CanView {
		writeError(w, 404, "not found")
		return
	}
	writeJSON(w, 200, p)
}

func (a *api) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	id := a.identity(r)
	p, err := a.store.GetPost(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, 404, "not found")
			return
		}
		a.log.Error("get post", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	if !a.policy.CanEditPost(id, p) {
		writeError(w, 403, "forbidden")
		return
	}
	var req struct {
		Title      *string  `json:"title"`
		Captions   *string  `json:"captions"`
		Tags       []string `json:"tags"`
		Adventures []string `json:"adventures"`
	}
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, 400, "invalid payload")
		return
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		writeError(w, 400, "title cannot be empty")
		return
	}
	if req.Adventures != nil {
		m := a.membershipFor(r, id)
		if dec := a.policy.CanPostInAdventures(id, req.Adventures, m); !dec.CanPost {
			writeJSON(w, 403, dec)
			return
		}
	}
	if err := a.store.UpdatePost(r.Context(), p.ID, req.Title, req.Captions, req.Tags, req.Adventures); err != nil {
		a.log.Error("update post", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true})
}

func (a *api) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	id := a.identity(r)
	p, err := a.store.GetPost(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, 404, "not found")
			return
		}
		a.log.Error("get post", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	if !a.policy.CanDeletePost(id, p) {
		writeError(w, 403, "forbidden")
		return
	}
	if err := a.store.DeletePost(r.Context(), p.ID); err != nil {
		a.log.Error("delete post", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, map[string]any{"ok": true})
}

func (a *api) handleLikePost(w http.ResponseWriter, r *http.Request) {
	a.setLike(w, r, true)
}

func (a *api) handleUnlikePost(w http.ResponseWriter, r *http.Request) {
	a.setLike(w, r, false)
}

func (a *api) setLike(w http.ResponseWriter, r *http.Request, liked bool) {
	id := a.identity(r)
	p, err := a.store.GetPost(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, 404, "not found")
			return
		}
		a.log.Error("get post", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	m := a.membershipFor(r, id)
	if !a.policy.CanViewPost(id, p, m).CanView {
		writeError(w, 404, "not found")
		return
	}
	p, err = a.store.SetPostLike(r.Context(), p.ID, id.User.ID, liked)
	if err != nil {
		a.log.Error("set post like", "err", err)
		writeError(w, 500, "internal error")
		return
	}
	writeJSON(w, 200, p)
}
