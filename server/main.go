package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func getenv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := getenv(key, ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// idSet parses a comma-separated env list into a set; used for the legacy
// allow-lists.
func idSet(raw string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range strings.Split(raw, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}

func main() {
	_ = godotenv.Load() // load .env if present (ok if missing in prod)

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	addr := getenv("ADDR", ":8080")
	dsn := getenv("DATABASE_URL", "postgres://postgres:postgres@db:5432/questfeed?sslmode=disable")
	jwtSecret := getenv("JWT_SECRET", "")
	if jwtSecret == "" {
		log.Error("missing required env JWT_SECRET")
		os.Exit(1)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Error("db open", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Error("db ping", "err", err)
		os.Exit(1)
	}

	store := NewStore(db)
	if err := store.Migrate(context.Background()); err != nil {
		log.Error("migrate", "err", err)
		os.Exit(1)
	}

	policy := Policy{Legacy: LegacyAccess{
		AdminIDs:     idSet(getenv("LEGACY_ADMIN_IDS", "")),
		PublisherIDs: idSet(getenv("LEGACY_PUBLISHER_IDS", "")),
	}}

	presenceCfg := PresenceConfig{
		Interval:  getenvDuration("PRESENCE_INTERVAL", 2*time.Minute),
		Throttle:  getenvDuration("PRESENCE_THROTTLE", time.Minute),
		Freshness: getenvDuration("PRESENCE_FRESHNESS", 5*time.Minute),
	}.withDefaults()

	// optional redis mirror for last-seen lookups
	var cache *presenceCache
	if url := getenv("REDIS_URL", ""); url != "" {
		cache, err = newPresenceCache(url, presenceCfg.Freshness)
		if err != nil {
			log.Error("redis", "err", err)
			os.Exit(1)
		}
		defer cache.Close()
	}

	presence := &presenceWriter{store: store, cache: cache, log: log}
	tracker := NewTracker(presence, log, presenceCfg)

	api := newAPI(store, log, policy, tracker, presence, []byte(jwtSecret))
	mux := http.NewServeMux()
	api.routes(mux)

	srv := &http.Server{Addr: addr, Handler: withLogging(log, mux),
		ReadTimeout: 15 * time.Second, ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout: 30 * time.Second, IdleTimeout: 120 * time.Second}

	go func() {
		log.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) && err != nil {
			log.Error("listen", "err", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
	log.Info("shutting down")
	ctxSh, cancelSh := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSh()
	if err := srv.Shutdown(ctxSh); err != nil {
		log.Error("shutdown", "err", err)
	}
}
