package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/drishti/backend/config"
	"github.com/drishti/backend/database"
	"github.com/drishti/backend/models"
	"github.com/drishti/backend/store"
	"github.com/joho/godotenv"
)

func main() {
	eventID := flag.String("event", "", "event whose analysis data is cleared")
	all := flag.Bool("all", false, "also delete the cameras, commanders and emergency status of the event")
	flag.Parse()

	if *eventID == "" {
		log.Fatal("❌ -event is required")
	}

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	// Connect to database
	if err := database.Connect(cfg.Database.Driver, cfg.Database.URL, false); err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fmt.Printf("Resetting analysis of %s...\n", *eventID)

	st := store.New(database.DB, nil)
	if err := st.ResetAnalysis(ctx, *eventID); err != nil {
		log.Fatalf("Failed to reset analysis: %v", err)
	}
	fmt.Println("✅ Deleted analysis results, detections, history, incidents and alerts")

	if *all {
		db := database.DB.WithContext(ctx)
		if err := db.Where("event_id = ?", *eventID).Delete(&models.Commander{}).Error; err != nil {
			log.Fatalf("Failed to delete commanders: %v", err)
		}
		fmt.Println("✅ Deleted commanders")

		if err := db.Where("event_id = ?", *eventID).Delete(&models.Camera{}).Error; err != nil {
			log.Fatalf("Failed to delete cameras: %v", err)
		}
		fmt.Println("✅ Deleted cameras")

		if err := db.Where("scope = ?", *eventID).Delete(&models.IoTStatus{}).Error; err != nil {
			log.Fatalf("Failed to delete emergency status: %v", err)
		}
		fmt.Println("✅ Deleted emergency status")
	}

	fmt.Println("Reset finished successfully")
}
