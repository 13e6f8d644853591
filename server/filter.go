package main

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Query is the optional refinement layered on top of the policy filter.
type Query struct {
	// Search matches case- and accent-insensitively against title,
	// description/captions and tags
	Search string
	// Tag keeps items whose tags contain a case-insensitive substring match
	Tag string
	// Status is an exact adventure status match: active, inactive or all.
	// Only exposed to admins.
	Status string
	// AdventureID scopes posts to one adventure
	AdventureID string
}

// foldText lowercases and strips diacritics via Unicode decomposition, so
// "Épée" matches "epee". A fresh transformer per call: chained transformers
// carry internal state and are not safe for concurrent reuse.
func foldText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

func matchesSearch(needle string, fields ...string) bool {
	n := foldText(needle)
	for _, f := range fields {
		if f != "" && strings.Contains(foldText(f), n) {
			return true
		}
	}
	return false
}

func matchesTag(needle string, tags []string) bool {
	n := foldText(needle)
	for _, t := range tags {
		if strings.Contains(foldText(t), n) {
			return true
		}
	}
	return false
}

func containsString(items []string, want string) bool {
	for _, s := range items {
		if s == want {
			return true
		}
	}
	return false
}

// FilterAdventures narrows the collection in fixed order: policy, free text,
// status. Input is never mutated; the result is a fresh, sorted slice.
func FilterAdventures(p Policy, id Identity, m Membership, items []Adventure, q Query) []Adventure {
	out := make([]Adventure, 0, len(items))
	for _, a := range items {
		if !p.CanViewAdventure(id, a, m).CanView {
			continue
		}
		if q.Search != "" && !matchesSearch(q.Search, a.Title, a.Description) {
			continue
		}
		if q.Status != "" && q.Status != "all" && string(a.Status) != q.Status {
			continue
		}
		out = append(out, a)
	}
	sortAdventures(out)
	return out
}

// FilterPosts narrows the collection in fixed order: policy, free text, tag,
// adventure scope. Input is never mutated.
func FilterPosts(p Policy, id Identity, m Membership, items []Post, q Query) []Post {
	out := make([]Post, 0, len(items))
	for _, post := range items {
		if !p.CanViewPost(id, post, m).CanView {
			continue
		}
		if q.Search != "" && !matchesSearch(q.Search, post.Title, post.Captions, strings.Join(post.Tags, " ")) {
			continue
		}
		if q.Tag != "" && !matchesTag(q.Tag, post.Tags) {
			continue
		}
		if q.AdventureID != "" && !containsString(post.Adventures, q.AdventureID) {
			continue
		}
		out = append(out, post)
	}
	sortPosts(out)
	return out
}

// VisiblePosts computes the aggregate feed for one user: public posts plus
// posts reachable through membership or a public-active adventure,
// deduplicated by ID (first occurrence wins) and sorted. Admins bypass the
// union and get the whole sorted collection.
func VisiblePosts(p Policy, id Identity, m Membership, posts []Post) []Post {
	out := make([]Post, 0, len(posts))
	if p.IsAdmin(id) {
		out = append(out, posts...)
		sortPosts(out)
		return out
	}
	seen := make(map[string]struct{}, len(posts))
	for _, post := range posts {
		if _, dup := seen[post.ID]; dup {
			continue
		}
		if !p.CanViewPost(id, post, m).CanView {
			continue
		}
		seen[post.ID] = struct{}{}
		out = append(out, post)
	}
	sortPosts(out)
	return out
}

// Stable sorts: ties keep their original collection order, which is a
// correctness requirement for reproducible feeds, not an optimization.

// active first, then most recent first
func sortAdventures(items []Adventure) {
	sort.SliceStable(items, func(i, j int) bool {
		ia, ja := items[i].Status == StatusActive, items[j].Status == StatusActive
		if ia != ja {
			return ia
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

// most recent first
func sortPosts(items []Post) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}
