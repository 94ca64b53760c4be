package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"go-cropwatch/advisory"
	"go-cropwatch/config"
	"go-cropwatch/cronjobs"
	"go-cropwatch/db"
	"go-cropwatch/epidemic"
	"go-cropwatch/geocode"
	"go-cropwatch/ledger"
	"go-cropwatch/routes"
	"go-cropwatch/store"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	cfg := config.Load()
	log.Printf("Detection config: eps=%.2fkm minPoints=%d minConfidence=%.2f window=%dd",
		cfg.EpsKM, cfg.MinPoints, cfg.MinConfidence, cfg.WindowDays)

	eventStore := store.NewEventStore()

	// Durable storage is optional: without credentials the engine
	// runs memory-only and the rolling window starts empty.
	var opts []epidemic.Option
	var led *ledger.Ledger

	if os.Getenv("FIREBASE_CREDENTIALS") != "" {
		firestoreClient, err := db.InitFirestore()
		if err != nil {
			log.Fatalf("Failed to initialize Firestore: %v", err)
		}
		defer db.CloseFirestore() // Firestore client is closed on exit

		durable := db.NewStore(firestoreClient)
		led = ledger.New(cfg, durable)
		opts = append(opts, epidemic.WithEventSink(durable))

		ctx := context.Background()

		// The rolling window is reconstructed from durable events;
		// replay covers the heatmap lookback so history views survive
		// restarts too.
		since := time.Now().UTC().Add(-cfg.HeatmapLookback())
		events, err := durable.ObservationsSince(ctx, since)
		if err != nil {
			log.Fatalf("Failed to replay observations: %v", err)
		}
		replayed := 0
		for _, e := range events {
			if err := eventStore.Replay(e); err != nil {
				log.Printf("Warning: skipping invalid stored observation: %v", err)
				continue
			}
			replayed++
		}
		log.Printf("Replayed %d observations into the event store", replayed)

		alerts, err := durable.ActiveAlerts(ctx)
		if err != nil {
			log.Fatalf("Failed to load active alerts: %v", err)
		}
		led.Restore(alerts)
	} else {
		log.Println("FIREBASE_CREDENTIALS not set, running memory-only")
		led = ledger.New(cfg, nil)
	}

	if os.Getenv("MAPS_CREDENTIALS") != "" {
		resolver, err := geocode.NewResolver()
		if err != nil {
			log.Printf("Warning: geocoder unavailable: %v", err)
		} else {
			opts = append(opts, epidemic.WithGeocoder(resolver))
		}
	}

	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		log.Println("OPENAI_API_KEY loaded, alert advisories enabled")
		opts = append(opts, epidemic.WithAdvisor(advisory.NewAdvisor(apiKey)))
	}

	svc := epidemic.NewService(cfg, eventStore, led, opts...)

	// Initialize cron jobs
	sweeper := cronjobs.InitCronJobs(svc, cfg.SweepSpec)
	defer sweeper.Stop()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	r := routes.SetupRouter(svc)
	if err := r.Run(":" + port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
