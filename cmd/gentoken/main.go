// Test program to generate JWT tokens for exercising the API in token mode.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/loopteam/server/internal/auth"
	"github.com/loopteam/server/internal/config"
)

func main() {
	userID := flag.String("user", "", "user id to mint the token for (required)")
	email := flag.String("email", "dev@example.com", "email claim")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "Error: --user is required")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	manager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, cfg.Auth.JWTIssuer)
	token, err := manager.Generate(*userID, *email)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("JWT Token:")
	fmt.Println(token)
	fmt.Println("\nTest with:")
	fmt.Printf("curl -H 'Authorization: Bearer %s' http://localhost:8080/api/v1/workspaces\n", token)
}
