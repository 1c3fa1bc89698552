// devtoken mints operator credentials for local testing: a bearer token, and
// optionally a redis-backed app_session cookie value.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"hardware_ledger/app"
	"hardware_ledger/config"
	"hardware_ledger/session"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func main() {
	config.LoadEnv()
	cfg := app.LoadConfig()

	userID := flag.String("user", "", "operator id (defaults to a fresh uuid)")
	username := flag.String("name", "lab-desk", "operator display name")
	role := flag.String("role", "staff", "operator role")
	withSession := flag.Bool("session", false, "also create an app_session in redis")
	revoke := flag.Bool("revoke", false, "revoke every redis session of -user and exit")
	flag.Parse()

	if *userID == "" {
		if *revoke {
			log.Fatal("-revoke needs -user")
		}
		*userID = uuid.NewString()
	}

	if *withSession || *revoke {
		if cfg.RedisAddr == "" {
			log.Fatal("REDIS_ADDR is not set")
		}
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPwd})
		defer rdb.Close()
		store := session.NewAppSessionStore(rdb, cfg.SessionTTL)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if *revoke {
			if err := store.RevokeAllForUser(ctx, *userID); err != nil {
				log.Fatalf("revoke sessions: %v", err)
			}
			fmt.Printf("revoked sessions for %s\n", *userID)
			return
		}

		sid := uuid.NewString()
		if err := store.Create(ctx, sid, session.AppSession{UserID: *userID, Username: *username, Role: *role}); err != nil {
			log.Fatalf("create session: %v", err)
		}
		fmt.Printf("cookie: %s=%s\n", app.AppSessionCookie, sid)
	}

	tokens := app.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL)
	tok, err := tokens.Generate(*userID, *username, *role)
	if err != nil {
		fmt.Fprintf(os.Stderr, "token not minted: %v\n", err)
		if !*withSession {
			os.Exit(1)
		}
		return
	}
	fmt.Printf("user:  %s\ntoken: %s\n", *userID, tok)
}
