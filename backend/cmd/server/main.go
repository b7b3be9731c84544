// Copyright (C) 2025 veil.chat <dev@veil.chat>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/veilchat/veil/backend/integration"
	"github.com/veilchat/veil/backend/middleware"
	"github.com/veilchat/veil/backend/relay"
	"github.com/veilchat/veil/backend/session"
)

func main() {
	// Database connection
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://localhost/veil?sslmode=disable"
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	// Redis connection
	redisAddr := os.Getenv("REDIS_URL")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Account identity. Without a seed a fresh throwaway identity is
	// generated; recovery then needs a credential generated elsewhere.
	var identity *session.Identity
	if seedHex := os.Getenv("IDENTITY_SEED"); seedHex != "" {
		identity, err = session.IdentityFromSeedHex(seedHex)
		if err != nil {
			log.Fatalf("Invalid IDENTITY_SEED: %v", err)
		}
	} else {
		identity, err = session.NewIdentity()
		if err != nil {
			log.Fatalf("Failed to generate identity: %v", err)
		}
		log.Printf("Generated ephemeral identity %s (set IDENTITY_SEED to persist)", identity.Pub)
	}

	// Relay connection. Without RELAY_URL everything stays in-process,
	// which is the offline/development mode.
	var rel relay.Relay
	if relayURL := os.Getenv("RELAY_URL"); relayURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		ws, err := relay.DialWS(ctx, relayURL)
		cancel()
		if err != nil {
			log.Fatalf("Failed to connect to relay %s: %v", relayURL, err)
		}
		defer ws.Close()
		rel = ws
	} else {
		log.Printf("RELAY_URL not set, using in-memory relay")
		rel = relay.NewMemoryRelay()
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}
	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "veil"
	}

	veil, err := integration.NewIntegration(&integration.Config{
		DB:        db,
		Redis:     rdb,
		Relay:     rel,
		Identity:  identity,
		JWTSecret: jwtSecret,
		JWTIssuer: jwtIssuer,
	})
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}

	if err := veil.WarmUp(200); err != nil {
		log.Printf("Timeline warm-up failed: %v", err)
	}

	r := mux.NewRouter()
	r.Use(middleware.CORS)
	veil.RegisterRoutes(r, nil)

	// Health check (no auth required)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("Database unavailable"))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	log.Printf("veil daemon starting on port %s", port)
	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
