package main

type AccessReason string

const (
	ReasonAdmin             AccessReason = "admin"
	ReasonPublicPost        AccessReason = "public_post"
	ReasonPublicAdventure   AccessReason = "public_adventure"
	ReasonParticipant       AccessReason = "participant"
	ReasonInactive          AccessReason = "inactive"
	ReasonNoAccess          AccessReason = "no_access"
	ReasonBlockedAdventures AccessReason = "no_access_to_adventures"
)

// ViewDecision is a reason-tagged boolean. Callers gate on CanView alone; the
// reason exists for tests and debugging.
type ViewDecision struct {
	CanView bool         `json:"can_view"`
	Reason  AccessReason `json:"reason"`
}

// PostDecision reports whether a submission may target its selected
// adventures. On refusal BlockedAdventures lists every offending ID so the
// caller can explain exactly which selections were invalid. Submissions are
// all-or-nothing; there is no partial posting.
type PostDecision struct {
	CanPost           bool         `json:"can_post"`
	Reason            AccessReason `json:"reason,omitempty"`
	BlockedAdventures []string     `json:"blocked_adventures,omitempty"`
}

// Policy evaluates content access for resolved identities. Every method is
// pure and total: no I/O, no mutation, never panics on malformed input.
type Policy struct {
	Legacy LegacyAccess
}

func (Policy) IsAdmin(id Identity) bool {
	return id.IsAuthenticated && id.User.Role == RoleAdmin
}

// CanViewAdventure: admins see everything; an inactive adventure is rejected
// for everyone else, participants included; then public or participant grants
// access.
func (p Policy) CanViewAdventure(id Identity, adv Adventure, m Membership) ViewDecision {
	if p.IsAdmin(id) {
		return ViewDecision{CanView: true, Reason: ReasonAdmin}
	}
	if adv.Status != StatusActive {
		return ViewDecision{CanView: false, Reason: ReasonInactive}
	}
	if adv.IsPublic {
		return ViewDecision{CanView: true, Reason: ReasonPublicAdventure}
	}
	if m.IsParticipant(adv.ID) {
		return ViewDecision{CanView: true, Reason: ReasonParticipant}
	}
	return ViewDecision{CanView: false, Reason: ReasonNoAccess}
}

// CanViewPost: a post with no adventure scope is public to everyone;
// otherwise any overlap between the post's adventures and the user's reach
// (participation first, then public-active) grants access.
func (p Policy) CanViewPost(id Identity, post Post, m Membership) ViewDecision {
	if p.IsAdmin(id) {
		return ViewDecision{CanView: true, Reason: ReasonAdmin}
	}
	if len(post.Adventures) == 0 {
		return ViewDecision{CanView: true, Reason: ReasonPublicPost}
	}
	for _, aid := range post.Adventures {
		if m.IsParticipant(aid) {
			return ViewDecision{CanView: true, Reason: ReasonParticipant}
		}
	}
	for _, aid := range post.Adventures {
		if m.IsPublicActive(aid) {
			return ViewDecision{CanView: true, Reason: ReasonPublicAdventure}
		}
	}
	return ViewDecision{CanView: false, Reason: ReasonNoAccess}
}

// Adventure administration is admin-exclusive; there is no per-adventure
// ownership delegation.
func (p Policy) CanCreateAdventure(id Identity) bool           { return p.IsAdmin(id) }
func (p Policy) CanEditAdventure(id Identity) bool             { return p.IsAdmin(id) }
func (p Policy) CanDeleteAdventure(id Identity) bool           { return p.IsAdmin(id) }
func (p Policy) CanManageParticipants(id Identity) bool        { return p.IsAdmin(id) }
func (p Policy) CanToggleAdventureVisibility(id Identity) bool { return p.IsAdmin(id) }

// CanCreatePost is admin-only plus the legacy publisher allow-list.
func (p Policy) CanCreatePost(id Identity) bool {
	if p.IsAdmin(id) {
		return true
	}
	return id.IsAuthenticated && p.Legacy.IsLegacyPublisher(id.User.ID)
}

func (p Policy) CanCreatePublicPost(id Identity) bool { return p.CanCreatePost(id) }

func (p Policy) CanEditPost(id Identity, post Post) bool {
	if p.IsAdmin(id) {
		return true
	}
	return id.IsAuthenticated && id.User.ID != "" && id.User.ID == post.CreatorID
}

func (p Policy) CanDeletePost(id Identity, post Post) bool {
	return p.CanEditPost(id, post)
}

// CanPostInAdventures: admins post anywhere; for everyone else every selected
// adventure must be reachable through membership or a public-active adventure.
func (p Policy) CanPostInAdventures(id Identity, selected []string, m Membership) PostDecision {
	if p.IsAdmin(id) {
		return PostDecision{CanPost: true, Reason: ReasonAdmin}
	}
	var blocked []string
	for _, aid := range selected {
		if !m.CanReach(aid) {
			blocked = append(blocked, aid)
		}
	}
	if len(blocked) > 0 {
		return PostDecision{CanPost: false, Reason: ReasonBlockedAdventures, BlockedAdventures: blocked}
	}
	return PostDecision{CanPost: true}
}
