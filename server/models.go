package main

import "time"

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

type User struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	// LastSeen is written only by the presence tracker
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type AdventureStatus string

const (
	StatusActive   AdventureStatus = "active"
	StatusInactive AdventureStatus = "inactive"
)

type Adventure struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Status      AdventureStatus `json:"status"`
	// IsPublic only grants access while Status is active; an inactive public
	// adventure is admin-only
	IsPublic  bool      `json:"is_public"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type AdventureParticipant struct {
	ID          string    `json:"id"`
	AdventureID string    `json:"adventure_id"`
	UserID      string    `json:"user_id"`
	AddedBy     string    `json:"added_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type Post struct {
	ID        string   `json:"id"`
	CreatorID string   `json:"creator_id"`
	Title     string   `json:"title"`
	Captions  string   `json:"captions"`
	Tags      []string `json:"tags"`
	// Adventures scopes the post to those adventures' audiences; an empty
	// list means the post is public to everyone
	Adventures []string  `json:"adventures"`
	Likes      []string  `json:"likes"`
	CreatedAt  time.Time `json:"created_at"`
}
