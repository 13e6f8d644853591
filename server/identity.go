package main

// LegacyAccess carries the migration-era allow-lists: account IDs that keep
// admin or publisher rights even though their stored record predates the role
// column. Injected config rather than a constant so the shim can be swapped
// out in tests and retired without touching the policy code.
type LegacyAccess struct {
	AdminIDs     map[string]struct{}
	PublisherIDs map[string]struct{}
}

func (l LegacyAccess) IsLegacyAdmin(userID string) bool {
	_, ok := l.AdminIDs[userID]
	return ok
}

func (l LegacyAccess) IsLegacyPublisher(userID string) bool {
	_, ok := l.PublisherIDs[userID]
	return ok
}

// Identity is the resolved, role-bearing view of an account that the policy
// engine consumes.
type Identity struct {
	User            User
	IsAuthenticated bool
}

// Anonymous is the sentinel identity for requests without an account.
func Anonymous() Identity { return Identity{} }

// ResolveIdentity maps a raw account record onto an Identity. A nil record
// resolves to the anonymous sentinel, never an error. Records stored without
// a role fall back to the legacy admin allow-list, then to plain user.
func ResolveIdentity(raw *User, legacy LegacyAccess) Identity {
	if raw == nil {
		return Anonymous()
	}
	u := *raw
	if u.Role == "" {
		if legacy.IsLegacyAdmin(u.ID) {
			u.Role = RoleAdmin
		} else {
			u.Role = RoleUser
		}
	}
	return Identity{User: u, IsAuthenticated: true}
}
