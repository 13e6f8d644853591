package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type api struct {
	store     *Store
	log       *slog.Logger
	policy    Policy
	tracker   *Tracker
	presence  *presenceWriter
	jwtSecret []byte
	// rate limiting buckets per IP:key
	rlMu sync.Mutex
	rl   map[string]*rateBucket
}

func newAPI(store *Store, log *slog.Logger, policy Policy, tracker *Tracker, presence *presenceWriter, jwtSecret []byte) *api {
	return &api{
		store:     store,
		log:       log,
		policy:    policy,
		tracker:   tracker,
		presence:  presence,
		jwtSecret: jwtSecret,
		rl:        map[string]*rateBucket{},
	}
}

type rateBucket struct {
	count   int
	resetAt time.Time
}

func (a *api) allow(ip, key string, max int, window time.Duration) bool {
	now := time.Now()
	rk := ip + ":" + key
	a.rlMu.Lock()
	b, ok := a.rl[rk]
	if !ok || now.After(b.resetAt) {
		b = &rateBucket{count: 0, resetAt: now.Add(window)}
		a.rl[rk] = b
	}
	if b.count >= max {
		a.rlMu.Unlock()
		return false
	}
	b.count++
	a.rlMu.Unlock()
	return true
}

func (a *api) withRateLimit(name string, max int, window time.Duration, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if !a.allow(ip, name, max, window) {
			writeError(w, 429, "too many requests")
			return
		}
		next(w, r)
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, r.Body)
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}

// cookie/session helpers
func (a *api) sessionCookieName() string { return getenv("SESSION_COOKIE_NAME", "questfeed_sess") }
func (a *api) sessionTTL() time.Duration {
	if v := getenv("SESSION_TTL", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return 14 * 24 * time.Hour
}
func (a *api) secureCookie() bool { return getenv("COOKIE_SECURE", "false") == "true" }
func (a *api) sameSite() http.SameSite {
	switch strings.ToLower(getenv("COOKIE_SAMESITE", "lax")) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

type sessionClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

func (a *api) signSession(userID string, expires time.Time) (string, error) {
	claims := &sessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.jwtSecret)
}

func (a *api) parseSession(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		return a.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if c, ok := token.Claims.(*sessionClaims); ok && token.Valid && c.UserID != "" {
		return c.UserID, nil
	}
	return "", errors.New("invalid session token")
}

func (a *api) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.sessionCookieName(),
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secureCookie(),
		SameSite: a.sameSite(),
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
	})
}

func (a *api) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     a.sessionCookieName(),
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secureCookie(),
		SameSite: a.sameSite(),
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

func (a *api) currentUser(r *http.Request) (*User, error) {
	c, err := r.Cookie(a.sessionCookieName())
	if err != nil || c.Value == "" {
		return nil, ErrNotFound
	}
	uid, err := a.parseSession(c.Value)
	if err != nil {
		return nil, ErrNotFound
	}
	u, err := a.store.GetUser(r.Context(), uid)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// identity resolves the caller, falling back to the anonymous sentinel.
func (a *api) identity(r *http.Request) Identity {
	u, err := a.currentUser(r)
	if err != nil {
		return Anonymous()
	}
	return ResolveIdentity(u, a.policy.Legacy)
}

// membershipFor builds the membership index for the identity from current
// participant/adventure rows. A failed fetch yields empty sets: fail closed.
func (a *api) membershipFor(r *http.Request, id Identity) Membership {
	var participants []AdventureParticipant
	var adventures []Adventure
	if id.IsAuthenticated {
		if rows, err := a.store.ParticipantsByUser(r.Context(), id.User.ID); err == nil {
			participants = rows
		} else {
			a.log.Error("participants by user", "err", err)
		}
	}
	if rows, err := a.store.ListAdventures(r.Context()); err == nil {
		adventures = rows
	} else {
		a.log.Error("list adventures", "err", err)
	}
	return BuildMembership(id.User.ID, participants, adventures)
}

// requireAuth wraps a handler and enforces a valid session
func (a *api) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := a.currentUser(r); err != nil {
			writeError(w, 401, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (a *api) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := a.identity(r)
		if !id.IsAuthenticated {
			writeError(w, 401, "unauthorized")
			return
		}
		if !a.policy.IsAdmin(id) {
			writeError(w, 403, "forbidden")
			return
		}
		next(w, r)
	}
}

func (a *api) routes(mux *http.ServeMux) {
	// Auth
	mux.HandleFunc("POST /api/auth/register", a.withRateLimit("auth", 20, time.Minute, a.handleRegister))
	mux.HandleFunc("POST /api/auth/login", a.withRateLimit("auth", 30, time.Minute, a.handleLogin))
	mux.HandleFunc("POST /api/auth/logout", a.handleLogout)
	mux.HandleFunc("GET /api/auth/me", a.handleMe)

	mux.HandleFunc("GET /api/health", a.handleHealth)

	// Adventures
	mux.HandleFunc("GET /api/adventures", a.requireAuth(a.handleListAdventures))
	mux.HandleFunc("POST /api/adventures", a.requireAdmin(a.handleCreateAdventure))
	mux.HandleFunc("GET /api/adventures/{id}", a.requireAuth(a.handleGetAdventure))
	mux.HandleFunc("PATCH /api/adventures/{id}", a.requireAdmin(a.handleUpdateAdventure))
	mux.HandleFunc("DELETE /api/adventures/{id}", a.requireAdmin(a.handleDeleteAdventure))
	mux.HandleFunc("POST /api/adventures/{id}/visibility", a.requireAdmin(a.handleAdventureVisibility))
	mux.HandleFunc("GET /api/adventures/{id}/participants", a.requireAdmin(a.handleListParticipants))
	mux.HandleFunc("POST /api/adventures/{id}/participants", a.requireAdmin(a.handleAddParticipant))
	mux.HandleFunc("DELETE /api/adventures/{id}/participants/{uid}", a.requireAdmin(a.handleRemoveParticipant))
	mux.HandleFunc("GET /api/my/adventures", a.requireAuth(a.handleMyAdventures))

	// Posts
	mux.HandleFunc("GET /api/feed", a.requireAuth(a.handleFeed))
	mux.HandleFunc("POST /api/posts", a.requireAuth(a.handleCreatePost))
	mux.HandleFunc("GET /api/posts/{id}", a.requireAuth(a.handleGetPost))
	mux.HandleFunc("PATCH /api/posts/{id}", a.requireAuth(a.handleUpdatePost))
	mux.HandleFunc("DELETE /api/posts/{id}", a.requireAuth(a.handleDeletePost))
	mux.HandleFunc("POST /api/posts/{id}/like", a.requireAuth(a.handleLikePost))
	mux.HandleFunc("DELETE /api/posts/{id}/like", a.requireAuth(a.handleUnlikePost))

	// Users & admin
	mux.HandleFunc("GET /api/users/{id}", a.requireAuth(a.handleGetProfile))
	mux.HandleFunc("GET /api/users/{id}/presence", a.requireAuth(a.handleUserPresence))
	mux.HandleFunc("GET /api/admin/users", a.requireAdmin(a.handleAdminListUsers))
	mux.HandleFunc("PATCH /api/admin/users/{id}/role", a.requireAdmin(a.handleAdminSetRole))

	// Presence heartbeat
	mux.HandleFunc("POST /api/presence/heartbeat", a.requireAuth(a.handleHeartbeat))
}

func withLogging(log *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: 200}
		start := time.Now()
		next.ServeHTTP(sw, r)
		log.Info("http", "method", r.Method, "path", r.URL.Path, "status", sw.status, "dur_ms", time.Since(start).Milliseconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) { w.status = code; w.ResponseWriter.WriteHeader(code) }
