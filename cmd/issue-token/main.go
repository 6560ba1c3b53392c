// Command issue-token mints an access token signed with the configured
// JWT secret. Identity is owned by an upstream service; this is for local
// runs and smoke tests.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/noah-isme/batch-enrollment-api/internal/models"
	"github.com/noah-isme/batch-enrollment-api/internal/service"
	"github.com/noah-isme/batch-enrollment-api/pkg/config"
	"github.com/noah-isme/batch-enrollment-api/pkg/logger"
)

func main() {
	var (
		userID   string
		role     string
		email    string
		fullName string
		ttl      time.Duration
	)
	flag.StringVar(&userID, "user", "", "User ID placed in the token (required)")
	flag.StringVar(&role, "role", string(models.RoleStudent), "SUPERADMIN, ADMIN, INSTRUCTOR or STUDENT")
	flag.StringVar(&email, "email", "", "Optional email claim")
	flag.StringVar(&fullName, "name", "", "Optional full name claim")
	flag.DurationVar(&ttl, "ttl", 0, "Token lifetime; defaults to JWT_EXPIRATION")
	flag.Parse()

	if strings.TrimSpace(userID) == "" {
		flag.Usage()
		os.Exit(2)
	}
	actor := models.Actor{UserID: userID, Role: models.UserRole(strings.ToUpper(role))}
	switch actor.Role {
	case models.RoleSuperAdmin, models.RoleAdmin, models.RoleInstructor, models.RoleStudent:
	default:
		log.Fatalf("unknown role %q", role)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	expiry := cfg.JWT.Expiration
	if ttl > 0 {
		expiry = ttl
	}
	auth := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: expiry,
		Issuer:            cfg.JWT.Issuer,
	})
	token, expiresAt, err := auth.IssueToken(actor, email, fullName)
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}
	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires at %s\n", expiresAt.Format(time.RFC3339))
}
