package main

// Membership holds the adventure sets derived for one user: the adventures
// they participate in (any status) and the adventures that are public and
// active, which is user-independent. Callers rebuild it whenever the
// underlying participant or adventure collections change; it carries no cache
// of its own.
type Membership struct {
	UserAdventureIDs   map[string]struct{}
	PublicAdventureIDs map[string]struct{}
}

// BuildMembership derives the sets from raw rows. Duplicate participant rows
// collapse into the set, so a double-added user is a harmless no-op for
// visibility.
func BuildMembership(userID string, participants []AdventureParticipant, adventures []Adventure) Membership {
	m := Membership{
		UserAdventureIDs:   make(map[string]struct{}),
		PublicAdventureIDs: make(map[string]struct{}),
	}
	for _, p := range participants {
		if p.UserID == userID && p.AdventureID != "" {
			m.UserAdventureIDs[p.AdventureID] = struct{}{}
		}
	}
	for _, a := range adventures {
		if a.IsPublic && a.Status == StatusActive {
			m.PublicAdventureIDs[a.ID] = struct{}{}
		}
	}
	return m
}

func (m Membership) IsParticipant(adventureID string) bool {
	_, ok := m.UserAdventureIDs[adventureID]
	return ok
}

func (m Membership) IsPublicActive(adventureID string) bool {
	_, ok := m.PublicAdventureIDs[adventureID]
	return ok
}

// CanReach reports whether the adventure is in either set.
func (m Membership) CanReach(adventureID string) bool {
	return m.IsParticipant(adventureID) || m.IsPublicActive(adventureID)
}
