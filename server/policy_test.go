package main

import (
	"testing"
	"time"
)

func identFor(role Role) Identity {
	return Identity{
		User:            User{ID: "u-" + string(role), Role: role, CreatedAt: time.Now()},
		IsAuthenticated: true,
	}
}

func membershipOf(userIDs, publicIDs []string) Membership {
	m := Membership{
		UserAdventureIDs:   map[string]struct{}{},
		PublicAdventureIDs: map[string]struct{}{},
	}
	for _, id := range userIDs {
		m.UserAdventureIDs[id] = struct{}{}
	}
	for _, id := range publicIDs {
		m.PublicAdventureIDs[id] = struct{}{}
	}
	return m
}

func TestAdminSupremacy(t *testing.T) {
	p := Policy{}
	admin := identFor(RoleAdmin)
	none := membershipOf(nil, nil)
	adventures := []Adventure{
		{ID: "a1", Status: StatusActive},
		{ID: "a2", Status: StatusInactive},
		{ID: "a3", Status: StatusInactive, IsPublic: true},
	}
	for _, adv := range adventures {
		if dec := p.CanViewAdventure(admin, adv, none); !dec.CanView || dec.Reason != ReasonAdmin {
			t.Fatalf("admin blocked from adventure %s: %+v", adv.ID, dec)
		}
	}
	posts := []Post{
		{ID: "p1"},
		{ID: "p2", Adventures: []string{"a1"}},
		{ID: "p3", Adventures: []string{"nope"}},
	}
	for _, post := range posts {
		if dec := p.CanViewPost(admin, post, none); !dec.CanView || dec.Reason != ReasonAdmin {
			t.Fatalf("admin blocked from post %s: %+v", post.ID, dec)
		}
	}
}

func TestInactiveExclusion(t *testing.T) {
	p := Policy{}
	user := identFor(RoleUser)
	// participant of a1, which is inactive
	m := membershipOf([]string{"a1"}, nil)
	adv := Adventure{ID: "a1", Status: StatusInactive, IsPublic: true}
	dec := p.CanViewAdventure(user, adv, m)
	if dec.CanView {
		t.Fatalf("inactive adventure visible to participant: %+v", dec)
	}
	if dec.Reason != ReasonInactive {
		t.Fatalf("reason = %q, want %q", dec.Reason, ReasonInactive)
	}
}

func TestPublicPostUniversality(t *testing.T) {
	p := Policy{}
	post := Post{ID: "p1", Adventures: []string{}}
	none := membershipOf(nil, nil)
	for _, id := range []Identity{identFor(RoleUser), identFor(RoleAdmin), Anonymous()} {
		dec := p.CanViewPost(id, post, none)
		if !dec.CanView {
			t.Fatalf("public post hidden from %+v: %+v", id, dec)
		}
	}
	if dec := p.CanViewPost(identFor(RoleUser), post, none); dec.Reason != ReasonPublicPost {
		t.Fatalf("reason = %q, want %q", dec.Reason, ReasonPublicPost)
	}
}

func TestMembershipSufficiency(t *testing.T) {
	p := Policy{}
	u1 := Identity{User: User{ID: "u1", Role: RoleUser}, IsAuthenticated: true}
	u2 := Identity{User: User{ID: "u2", Role: RoleUser}, IsAuthenticated: true}
	admin := identFor(RoleAdmin)

	// A1: active, private; U1 participates, U2 does not
	m1 := membershipOf([]string{"a1"}, nil)
	m2 := membershipOf(nil, nil)
	p1 := Post{ID: "p1", Adventures: []string{"a1"}}

	if dec := p.CanViewPost(u1, p1, m1); !dec.CanView || dec.Reason != ReasonParticipant {
		t.Fatalf("u1 view p1 = %+v, want participant grant", dec)
	}
	if dec := p.CanViewPost(u2, p1, m2); dec.CanView || dec.Reason != ReasonNoAccess {
		t.Fatalf("u2 view p1 = %+v, want no_access", dec)
	}
	if dec := p.CanViewPost(admin, p1, m2); !dec.CanView || dec.Reason != ReasonAdmin {
		t.Fatalf("admin view p1 = %+v, want admin grant", dec)
	}
}

func TestPublicActiveAdventureGrantsPostAccess(t *testing.T) {
	p := Policy{}
	// A2: active, public, no participants
	m := membershipOf(nil, []string{"a2"})
	p2 := Post{ID: "p2", Adventures: []string{"a2"}}
	dec := p.CanViewPost(identFor(RoleUser), p2, m)
	if !dec.CanView || dec.Reason != ReasonPublicAdventure {
		t.Fatalf("view p2 = %+v, want public_adventure grant", dec)
	}
}

func TestAdventureViewReasons(t *testing.T) {
	p := Policy{}
	user := identFor(RoleUser)
	m := membershipOf([]string{"mine"}, nil)

	cases := []struct {
		name string
		adv  Adventure
		want ViewDecision
	}{
		{"public active", Adventure{ID: "x", Status: StatusActive, IsPublic: true}, ViewDecision{true, ReasonPublicAdventure}},
		{"participant", Adventure{ID: "mine", Status: StatusActive}, ViewDecision{true, ReasonParticipant}},
		{"private", Adventure{ID: "other", Status: StatusActive}, ViewDecision{false, ReasonNoAccess}},
		{"inactive", Adventure{ID: "mine", Status: StatusInactive}, ViewDecision{false, ReasonInactive}},
	}
	for _, tc := range cases {
		if got := p.CanViewAdventure(user, tc.adv, m); got != tc.want {
			t.Fatalf("%s: got %+v, want %+v", tc.name, got, tc.want)
		}
	}
}

func TestAdminExclusiveCapabilities(t *testing.T) {
	p := Policy{}
	admin := identFor(RoleAdmin)
	user := identFor(RoleUser)
	anon := Anonymous()

	checks := []struct {
		name string
		fn   func(Identity) bool
	}{
		{"create adventure", p.CanCreateAdventure},
		{"edit adventure", p.CanEditAdventure},
		{"delete adventure", p.CanDeleteAdventure},
		{"manage participants", p.CanManageParticipants},
		{"toggle visibility", p.CanToggleAdventureVisibility},
	}
	for _, c := range checks {
		if !c.fn(admin) {
			t.Fatalf("%s: admin denied", c.name)
		}
		if c.fn(user) || c.fn(anon) {
			t.Fatalf("%s: non-admin allowed", c.name)
		}
	}
}

func TestCanCreatePostLegacyPublishers(t *testing.T) {
	p := Policy{Legacy: LegacyAccess{PublisherIDs: map[string]struct{}{"scribe": {}}}}
	scribe := Identity{User: User{ID: "scribe", Role: RoleUser}, IsAuthenticated: true}
	other := Identity{User: User{ID: "other", Role: RoleUser}, IsAuthenticated: true}

	if !p.CanCreatePost(identFor(RoleAdmin)) {
		t.Fatal("admin cannot create post")
	}
	if !p.CanCreatePost(scribe) {
		t.Fatal("legacy publisher cannot create post")
	}
	if p.CanCreatePost(other) {
		t.Fatal("plain user can create post")
	}
	if p.CanCreatePost(Anonymous()) {
		t.Fatal("anonymous can create post")
	}
	if p.CanCreatePublicPost(other) {
		t.Fatal("plain user can create public post")
	}
}

func TestCanEditDeletePost(t *testing.T) {
	p := Policy{}
	creator := Identity{User: User{ID: "u1", Role: RoleUser}, IsAuthenticated: true}
	other := Identity{User: User{ID: "u2", Role: RoleUser}, IsAuthenticated: true}
	post := Post{ID: "p1", CreatorID: "u1"}

	if !p.CanEditPost(creator, post) || !p.CanDeletePost(creator, post) {
		t.Fatal("creator denied")
	}
	if p.CanEditPost(other, post) || p.CanDeletePost(other, post) {
		t.Fatal("non-creator allowed")
	}
	if !p.CanEditPost(identFor(RoleAdmin), post) {
		t.Fatal("admin denied")
	}
	if p.CanEditPost(Anonymous(), Post{CreatorID: ""}) {
		t.Fatal("anonymous matched empty creator id")
	}
}

func TestCanPostInAdventures(t *testing.T) {
	p := Policy{}
	user := identFor(RoleUser)
	m := membershipOf([]string{"a1"}, []string{"a2"})

	if dec := p.CanPostInAdventures(user, []string{"a1", "a2"}, m); !dec.CanPost {
		t.Fatalf("reachable selection rejected: %+v", dec)
	}
	dec := p.CanPostInAdventures(user, []string{"a1", "a3", "a4"}, m)
	if dec.CanPost {
		t.Fatalf("blocked selection accepted: %+v", dec)
	}
	if dec.Reason != ReasonBlockedAdventures {
		t.Fatalf("reason = %q", dec.Reason)
	}
	if len(dec.BlockedAdventures) != 2 || dec.BlockedAdventures[0] != "a3" || dec.BlockedAdventures[1] != "a4" {
		t.Fatalf("blocked = %v, want [a3 a4]", dec.BlockedAdventures)
	}
	// admins post anywhere
	if dec := p.CanPostInAdventures(identFor(RoleAdmin), []string{"anything"}, membershipOf(nil, nil)); !dec.CanPost {
		t.Fatalf("admin blocked: %+v", dec)
	}
	// empty selection is a public post, always fine
	if dec := p.CanPostInAdventures(user, nil, membershipOf(nil, nil)); !dec.CanPost {
		t.Fatalf("empty selection rejected: %+v", dec)
	}
}
