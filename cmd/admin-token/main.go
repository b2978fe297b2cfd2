// Command admin-token signs admin bearer tokens and hashes admin passwords
// for ADMIN_PASSWORD_HASH.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"manuscript-review-api/config"
	"manuscript-review-api/middleware"

	"github.com/joho/godotenv"
	"golang.org/x/crypto/bcrypt"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	var (
		subject  string
		ttl      time.Duration
		password string
		hashOnly bool
	)
	flag.StringVar(&subject, "subject", "operator", "token subject recorded in admin logs")
	flag.DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	flag.StringVar(&password, "password", "", "password to hash (with -hash)")
	flag.BoolVar(&hashOnly, "hash", false, "print a bcrypt hash of -password instead of a token")
	flag.Parse()

	if hashOnly {
		if strings.TrimSpace(password) == "" {
			log.Fatal("-password is required with -hash")
		}
		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		fmt.Println(string(hashed))
		return
	}

	if ttl <= 0 {
		log.Fatal("ttl must be positive")
	}
	settings, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	token, err := middleware.GenerateAdminToken(settings.JWTSecret, subject, ttl)
	if err != nil {
		log.Printf("sign token: %v", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
