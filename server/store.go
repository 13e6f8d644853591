package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// --- Users ---

const userCols = `id, name, username, email, role, last_seen, created_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.Role, &u.LastSeen, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (s *Store) CreateUser(ctx context.Context, name, username, email, passwordHash string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`insert into users(id, name, username, email, password_hash) values($1,$2,$3,$4,$5)
		 returning `+userCols,
		uuid.NewString(), name, username, email, passwordHash))
}

func (s *Store) GetUser(ctx context.Context, id string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `select `+userCols+` from users where id=$1`, id))
}

// userCredsByLogin matches username or email, returning the password hash too.
func (s *Store) userCredsByLogin(ctx context.Context, login string) (User, string, error) {
	var u User
	var hash string
	err := s.db.QueryRowContext(ctx,
		`select `+userCols+`, password_hash from users where lower(email)=lower($1) or lower(username)=lower($1)`,
		login).
		Scan(&u.ID, &u.Name, &u.Username, &u.Email, &u.Role, &u.LastSeen, &u.CreatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, "", ErrNotFound
	}
	return u, hash, err
}

// Authenticate verifies the password and returns the user if ok.
func (s *Store) Authenticate(ctx context.Context, login, password string) (User, error) {
	u, hash, err := s.userCredsByLogin(ctx, login)
	if err != nil {
		return User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context, q string, limit int) ([]User, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`select `+userCols+` from users
		 where $1='' or name ilike '%'||$1||'%' or username ilike '%'||$1||'%' or email ilike '%'||$1||'%'
		 order by created_at desc limit $2`, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) UpdateUserRole(ctx context.Context, id string, role Role) error {
	res, err := s.db.ExecContext(ctx, `update users set role=$1 where id=$2`, role, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateUserLastSeen(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `update users set last_seen=$1 where id=$2`, at.UTC(), id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Adventures ---

const adventureCols = `id, title, description, status, is_public, created_by, created_at, updated_at`

func scanAdventure(row interface{ Scan(...any) error }) (Adventure, error) {
	var a Adventure
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.Status, &a.IsPublic, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Adventure{}, ErrNotFound
	}
	return a, err
}

func (s *Store) CreateAdventure(ctx context.Context, title, description string, isPublic bool, createdBy string) (Adventure, error) {
	return scanAdventure(s.db.QueryRowContext(ctx,
		`insert into adventures(id, title, description, is_public, created_by) values($1,$2,$3,$4,$5)
		 returning `+adventureCols,
		uuid.NewString(), title, description, isPublic, createdBy))
}

func (s *Store) GetAdventure(ctx context.Context, id string) (Adventure, error) {
	return scanAdventure(s.db.QueryRowContext(ctx, `select `+adventureCols+` from adventures where id=$1`, id))
}

func (s *Store) ListAdventures(ctx context.Context) ([]Adventure, error) {
	rows, err := s.db.QueryContext(ctx, `select `+adventureCols+` from adventures order by created_at desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Adventure
	for rows.Next() {
		a, err := scanAdventure(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpdateAdventure(ctx context.Context, id string, title, description *string, status *AdventureStatus, isPublic *bool) error {
	set := []string{}
	args := []any{}
	idx := 1
	if title != nil {
		set = append(set, fmt.Sprintf("title=$%d", idx))
		args = append(args, *title)
		idx++
	}
	if description != nil {
		set = append(set, fmt.Sprintf("description=$%d", idx))
		args = append(args, *description)
		idx++
	}
	if status != nil {
		set = append(set, fmt.Sprintf("status=$%d", idx))
		args = append(args, *status)
		idx++
	}
	if isPublic != nil {
		set = append(set, fmt.Sprintf("is_public=$%d", idx))
		args = append(args, *isPublic)
		idx++
	}
	if len(set) == 0 {
		return nil
	}
	set = append(set, "updated_at=now()")
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("update adventures set %s where id=$%d", joinComma(set), idx), args...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetAdventureVisibility(ctx context.Context, id string, isPublic bool) error {
	res, err := s.db.ExecContext(ctx,
		`update adventures set is_public=$1, updated_at=now() where id=$2`, isPublic, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteAdventure(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from adventures where id=$1`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Participants ---

const participantCols = `id, adventure_id, user_id, added_by, created_at`

func scanParticipant(row interface{ Scan(...any) error }) (AdventureParticipant, error) {
	var p AdventureParticipant
	err := row.Scan(&p.ID, &p.AdventureID, &p.UserID, &p.AddedBy, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AdventureParticipant{}, ErrNotFound
	}
	return p, err
}

// AddParticipant is idempotent per (adventure, user); re-adding updates
// added_by and returns the existing row.
func (s *Store) AddParticipant(ctx context.Context, adventureID, userID, addedBy string) (AdventureParticipant, error) {
	return scanParticipant(s.db.QueryRowContext(ctx,
		`insert into adventure_participants(id, adventure_id, user_id, added_by) values($1,$2,$3,$4)
		 on conflict (adventure_id, user_id) do update set added_by=excluded.added_by
		 returning `+participantCols,
		uuid.NewString(), adventureID, userID, addedBy))
}

func (s *Store) RemoveParticipant(ctx context.Context, adventureID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`delete from adventure_participants where adventure_id=$1 and user_id=$2`, adventureID, userID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) participantsWhere(ctx context.Context, where string, arg any) ([]AdventureParticipant, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+participantCols+` from adventure_participants where `+where+` order by created_at`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AdventureParticipant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) ParticipantsByAdventure(ctx context.Context, adventureID string) ([]AdventureParticipant, error) {
	return s.participantsWhere(ctx, "adventure_id=$1", adventureID)
}

func (s *Store) ParticipantsByUser(ctx context.Context, userID string) ([]AdventureParticipant, error) {
	return s.participantsWhere(ctx, "user_id=$1", userID)
}

// --- Posts ---

const postCols = `id, creator_id, title, captions, tags, adventures, likes, created_at`

func scanPost(row interface{ Scan(...any) error }) (Post, error) {
	var p Post
	var tags, adventures, likes []byte
	err := row.Scan(&p.ID, &p.CreatorID, &p.Title, &p.Captions, &tags, &adventures, &likes, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, err
	}
	p.Tags = decodeStrings(tags)
	p.Adventures = decodeStrings(adventures)
	p.Likes = decodeStrings(likes)
	return p, nil
}

// decodeStrings tolerates malformed documents: anything that does not parse
// as a string array is treated as empty, which for adventure scopes means
// "unscoped" and never grants extra visibility.
func decodeStrings(raw []byte) []string {
	if len(raw) == 0 {
		return []string{}
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return []string{}
	}
	return out
}

func encodeStrings(items []string) []byte {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return b
}

func (s *Store) CreatePost(ctx context.Context, creatorID, title, captions string, tags, adventures []string) (Post, error) {
	return scanPost(s.db.QueryRowContext(ctx,
		`insert into posts(id, creator_id, title, captions, tags, adventures) values($1,$2,$3,$4,$5,$6)
		 returning `+postCols,
		uuid.NewString(), creatorID, title, captions, encodeStrings(tags), encodeStrings(adventures)))
}

func (s *Store) GetPost(ctx context.Context, id string) (Post, error) {
	return scanPost(s.db.QueryRowContext(ctx, `select `+postCols+` from posts where id=$1`, id))
}

func (s *Store) ListPosts(ctx context.Context) ([]Post, error) {
	rows, err := s.db.QueryContext(ctx, `select `+postCols+` from posts order by created_at desc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePost(ctx context.Context, id string, title, captions *string, tags, adventures []string) error {
	set := []string{}
	args := []any{}
	idx := 1
	if title != nil {
		set = append(set, fmt.Sprintf("title=$%d", idx))
		args = append(args, *title)
		idx++
	}
	if captions != nil {
		set = append(set, fmt.Sprintf("captions=$%d", idx))
		args = append(args, *captions)
		idx++
	}
	if tags != nil {
		set = append(set, fmt.Sprintf("tags=$%d", idx))
		args = append(args, encodeStrings(tags))
		idx++
	}
	if adventures != nil {
		set = append(set, fmt.Sprintf("adventures=$%d", idx))
		args = append(args, encodeStrings(adventures))
		idx++
	}
	if len(set) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("update posts set %s where id=$%d", joinComma(set), idx), args...)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeletePost(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from posts where id=$1`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPostLike adds or removes userID in the post's likes, read-modify-write
// inside a transaction so concurrent toggles don't clobber each other.
func (s *Store) SetPostLike(ctx context.Context, postID, userID string, liked bool) (Post, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Post{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var likes []byte
	err = tx.QueryRowContext(ctx, `select likes from posts where id=$1 for update`, postID).Scan(&likes)
	if errors.Is(err, sql.ErrNoRows) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, err
	}
	cur := decodeStrings(likes)
	next := make([]string, 0, len(cur)+1)
	for _, id := range cur {
		if id != userID {
			next = append(next, id)
		}
	}
	if liked {
		next = append(next, userID)
	}
	p, err := scanPost(tx.QueryRowContext(ctx,
		`update posts set likes=$1 where id=$2 returning `+postCols, encodeStrings(next), postID))
	if err != nil {
		return Post{}, err
	}
	return p, tx.Commit()
}

var ErrNotFound = errors.New("not found")

func joinComma(parts []string) string { return strings.Join(parts, ", ") }

const schema = `
create table if not exists users(
	id text primary key,
	name text not null default '',
	username text not null unique,
	email text not null unique,
	password_hash text not null,
	role text not null default 'user',
	last_seen timestamptz,
	created_at timestamptz not null default now()
);

create table if not exists adventures(
	id text primary key,
	title text not null,
	description text not null default '',
	status text not null default 'active',
	is_public boolean not null default false,
	created_by text not null references users(id) on delete cascade,
	created_at timestamptz not null default now(),
	updated_at timestamptz not null default now()
);

create table if not exists adventure_participants(
	id text primary key,
	adventure_id text not null references adventures(id) on delete cascade,
	user_id text not null references users(id) on delete cascade,
	added_by text not null,
	created_at timestamptz not null default now(),
	unique (adventure_id, user_id)
);

create table if not exists posts(
	id text primary key,
	creator_id text not null references users(id) on delete cascade,
	title text not null,
	captions text not null default '',
	tags jsonb not null default '[]',
	adventures jsonb not null default '[]',
	likes jsonb not null default '[]',
	created_at timestamptz not null default now()
);
create index if not exists posts_created_at_idx on posts (created_at desc);
create index if not exists participants_user_idx on adventure_participants (user_id);
`
