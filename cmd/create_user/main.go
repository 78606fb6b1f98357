// Command create_user provisions an account from the shell, against
// whichever backend the environment selects. Useful for seeding a fresh
// deployment or a local fallback store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"receiptvault/models"
	"receiptvault/pkg/blob"
	"receiptvault/store"
)

// bcryptCost must match the server's hashing cost so seeded accounts are
// indistinguishable from signed-up ones.
const bcryptCost = 12

func hashPassword(password string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
}

func main() {
	if len(os.Args) < 3 {
		fmt.Println("usage: go run ./cmd/create_user <email> <password> [tier]")
		os.Exit(2)
	}
	_ = godotenv.Load()
	email := os.Args[1]
	password := os.Args[2]
	tier := models.TierFree
	if len(os.Args) > 3 && os.Args[3] == models.TierPro {
		tier = models.TierPro
	}

	var s store.Store
	if dbURL, key := os.Getenv("SUPABASE_DB_URL"), os.Getenv("SUPABASE_SERVICE_KEY"); dbURL != "" && key != "" {
		dsn, err := store.BuildDSN(dbURL, key)
		if err != nil {
			log.Fatalf("bad SUPABASE_DB_URL: %v", err)
		}
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to open db: %v", err)
		}
		s = store.NewPostgres(db)
	} else {
		dataDir := os.Getenv("DATA_DIR")
		if dataDir == "" {
			dataDir = "data"
		}
		fs, err := blob.NewFileStore(dataDir)
		if err != nil {
			log.Fatalf("failed to open local store: %v", err)
		}
		s = store.NewLocal(fs)
	}

	hpw, err := hashPassword(password)
	if err != nil {
		log.Fatalf("bcrypt failed: %v", err)
	}
	u, err := s.CreateUser(context.Background(), &models.UserProfile{
		Email:            email,
		PasswordHash:     hpw,
		SubscriptionTier: tier,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			fmt.Printf("user %s already exists\n", email)
			os.Exit(0)
		}
		log.Fatalf("failed to create user: %v", err)
	}
	fmt.Printf("created user %s id=%s tier=%s\n", u.Email, u.ID, u.SubscriptionTier)
}
