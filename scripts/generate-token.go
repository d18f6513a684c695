//go:build ignore

// This script generates an admin bearer token for the settlement agent API.
// Run with: go run scripts/generate-token.go

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/vouchnet/settlement-middleware/pkg/auth"
)

func main() {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET must be set")
		os.Exit(1)
	}

	subject := os.Getenv("JWT_SUBJECT")
	if subject == "" {
		subject = "admin"
	}

	ttl := 24 * time.Hour
	if raw := os.Getenv("JWT_TTL"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid JWT_TTL: %v\n", err)
			os.Exit(1)
		}
		ttl = parsed
	}

	token, err := auth.NewTokenIssuer(secret, ttl).Issue(subject)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to issue token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "\nUse with: curl -H \"Authorization: Bearer <token>\" ...\n")
	fmt.Fprintf(os.Stderr, "Expires: %s\n", time.Now().Add(ttl).Format(time.RFC3339))
}
