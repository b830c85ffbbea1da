package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/drishti/backend/config"
	"github.com/drishti/backend/database"
	"github.com/drishti/backend/handlers"
	"github.com/drishti/backend/models"
	"github.com/drishti/backend/store"
	"github.com/joho/godotenv"
)

var sampleUsers = []models.User{
	{Name: "Admin User", Email: "admin@drishti.ai", Role: models.RoleAdmin},
	{Name: "Ravi Kumar", Email: "ravi.kumar@drishti.ai", Role: models.RoleSecurityOfficer},
	{Name: "Priya Sharma", Email: "priya.sharma@drishti.ai", Role: models.RoleOperator},
}

var sampleCameras = []models.Camera{
	{Name: "Main Entrance", Location: "Gate 1", Zone: "North", Coordinates: models.Coordinates{Lat: 12.9784, Lng: 77.6408}},
	{Name: "Stage Front", Location: "Main Stage", Zone: "Central", Coordinates: models.Coordinates{Lat: 12.9789, Lng: 77.6412}},
	{Name: "Food Court", Location: "Food Court", Zone: "East", Coordinates: models.Coordinates{Lat: 12.9781, Lng: 77.6419}},
	{Name: "Parking Exit", Location: "Parking Lot B", Zone: "South", Coordinates: models.Coordinates{Lat: 12.9775, Lng: 77.6403}},
}

var sampleCommanders = []string{"Asha Menon", "Vikram Rao", "Sana Iqbal", "Arjun Das"}

func main() {
	eventName := flag.String("event", "Demo Festival", "name of the demo event")
	password := flag.String("password", "drishti123", "password for the seeded users")
	history := flag.Int("history", 60, "minutes of crowd history to generate")
	flag.Parse()

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

	st := store.New(database.DB, nil)
	fmt.Println("🌱 Starting demo seed...")

	hashed, err := handlers.HashPassword(*password)
	if err != nil {
		log.Fatalf("Failed to hash password: %v", err)
	}

	var owner string
	for _, u := range sampleUsers {
		u.PasswordHash = hashed
		if err := st.AddUser(ctx, &u); err != nil {
			if errors.Is(err, store.ErrDuplicateEmail) {
				existing, lookupErr := st.GetUserByEmail(ctx, u.Email)
				if lookupErr == nil && owner == "" && existing.Role == models.RoleAdmin {
					owner = existing.ID
				}
				fmt.Printf("⏭️  User %s already exists\n", u.Email)
				continue
			}
			log.Fatalf("Failed to create user %s: %v", u.Email, err)
		}
		if owner == "" && u.Role == models.RoleAdmin {
			owner = u.ID
		}
	}
	fmt.Printf("✅ Seeded %d users\n", len(sampleUsers))

	ev, err := st.CreateEvent(ctx, *eventName, owner)
	if err != nil {
		log.Fatalf("Failed to create event: %v", err)
	}
	fmt.Printf("✅ Created event %s (%s)\n", ev.Name, ev.ID)

	for i, cam := range sampleCameras {
		cam.ID = fmt.Sprintf("cam-%s-%d", ev.ID[:8], i+1)
		cam.EventID = ev.ID
		if err := st.AddCamera(ctx, &cam); err != nil {
			log.Fatalf("Failed to create camera %s: %v", cam.Name, err)
		}

		commander := models.Commander{
			EventID:          ev.ID,
			Name:             sampleCommanders[i%len(sampleCommanders)],
			ContactNumber:    fmt.Sprintf("+91 98450 %05d", rand.Intn(100000)),
			AssignedCameraID: cam.ID,
		}
		if err := st.AddCommander(ctx, &commander); err != nil {
			log.Fatalf("Failed to create commander: %v", err)
		}
	}
	fmt.Printf("✅ Created %d cameras with commanders\n", len(sampleCameras))

	// Crowd trend points, one per minute, quieter at both ends
	now := time.Now()
	for i := *history; i > 0; i-- {
		at := now.Add(-time.Duration(i) * time.Minute)
		base := 40
		if i > *history/4 && i < *history*3/4 {
			base = 120
		}
		st.SetClock(func() time.Time { return at })
		if err := st.LogCrowdCount(ctx, ev.ID, base+rand.Intn(40)); err != nil {
			log.Fatalf("Failed to create history point: %v", err)
		}
	}
	st.SetClock(time.Now)
	fmt.Printf("✅ Created %d crowd history points\n", *history)

	fmt.Println("🎉 Seed finished successfully")
}
