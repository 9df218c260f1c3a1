package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/reelhub/review-api/internal/models"
	"github.com/reelhub/review-api/internal/service"
	"github.com/reelhub/review-api/pkg/config"
)

// devtoken prints a bearer token signed with the configured JWT secret, for
// calling a local server without the identity provider.
func main() {
	var (
		userID string
		role   string
		ttl    time.Duration
	)

	flag.StringVar(&userID, "user", "", "User ID placed in the token")
	flag.StringVar(&role, "role", string(models.RoleAdmin), "SUPERADMIN, ADMIN or WORKER")
	flag.DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	flag.Parse()

	if strings.TrimSpace(userID) == "" {
		log.Fatal("-user is required")
	}

	userRole := models.UserRole(strings.ToUpper(role))
	if !userRole.Valid() {
		log.Fatalf("unknown role %q", role)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Env == config.EnvProduction {
		log.Fatal("refusing to mint tokens in production")
	}

	token, err := service.NewAuthService(cfg.JWT).SignToken(userID, userRole, ttl)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}
	fmt.Println(token)
}
