// Command expire-sweep expires submissions whose revision deadline has passed.
// It runs one pass and exits, for use from cron.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"manuscript-review-api/config"
	"manuscript-review-api/models"
	"manuscript-review-api/services"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	var (
		timeout time.Duration
		migrate bool
	)
	flag.DurationVar(&timeout, "timeout", time.Minute, "maximum time for the sweep")
	flag.BoolVar(&migrate, "migrate", false, "run schema migration before sweeping")
	flag.Parse()

	settings, err := config.Load()
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}
	if err := config.InitDB(settings); err != nil {
		log.Fatalf("connect database: %v", err)
	}
	if migrate {
		if err := models.AutoMigrate(config.DB); err != nil {
			log.Fatalf("migrate: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	sweeper := services.NewExpirySweeper(services.NewSubmissionService(config.DB, nil), 0)
	n, err := sweeper.SweepOnce(ctx)
	if err != nil {
		log.Printf("expire sweep failed: %v", err)
		os.Exit(1)
	}
	fmt.Printf("Submissions expired: %d\n", n)
}
