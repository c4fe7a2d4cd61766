package main

import (
	"context"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/nearlist/nearlist/internal/auth"
	"github.com/nearlist/nearlist/internal/config"
	"github.com/nearlist/nearlist/internal/db"
	"github.com/nearlist/nearlist/internal/dispatch"
	"github.com/nearlist/nearlist/internal/handlers"
	"github.com/nearlist/nearlist/internal/middleware"
	"github.com/nearlist/nearlist/internal/models"
	"github.com/nearlist/nearlist/internal/push"
	"github.com/nearlist/nearlist/internal/stream"
)

func main() {
	cfg := config.Load()

	client, err := db.ConnectMongo()
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MongoDB")
	}
	defer client.Disconnect(context.Background())
	log.Info("Connected to MongoDB")

	database := client.Database("nearlist")
	registrations := &db.MongoRegistrationCollection{Collection: database.Collection("registrations")}
	listings := &db.MongoListingCollection{Collection: database.Collection("listings")}
	users := &db.MongoUserCollection{Collection: database.Collection("users")}

	events, err := stream.ConnectMQTT(cfg.MQTTBrokerURL, "nearlist-server")
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MQTT broker")
	}
	defer events.Close()
	log.WithField("broker", cfg.MQTTBrokerURL).Info("Connected to MQTT broker")

	sender := push.NewGatewaySender(cfg.PushGatewayURL, cfg.PushAPIKey)
	dispatcher := dispatch.New(registrations, sender, cfg.FanoutWorkers)

	sub, err := events.SubscribeCreated(func(event models.ListingEvent) {
		result, err := dispatcher.HandleListingCreated(context.Background(), event)
		if err != nil {
			log.WithError(err).WithField("listing_id", event.ID).Error("Fan-out failed")
			return
		}
		log.WithFields(log.Fields{
			"listing_id": event.ID,
			"evaluated":  result.Evaluated,
			"sent":       result.Sent,
			"pruned":     result.Pruned,
			"failed":     result.Failed,
		}).Info("Fan-out complete")
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to subscribe to listing events")
	}
	defer sub.Close()

	authService, err := auth.NewService()
	if err != nil {
		log.WithError(err).Fatal("Failed to create auth service")
	}

	authHandler := handlers.NewAuthHandler(authService, users)
	deviceHandler := handlers.NewDeviceHandler(registrations)
	listingHandler := handlers.NewListingHandler(listings, events)

	authMiddleware := middleware.NewAuthMiddleware(authService)
	rateLimiter := middleware.NewRateLimitMiddleware()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/auth/login", authHandler.Login)
	mux.HandleFunc("/api/auth/register", authHandler.Register)
	mux.HandleFunc("/api/devices", deviceHandler.Register)
	mux.HandleFunc("/api/devices/", deviceHandler.Device)
	mux.HandleFunc("/api/listings", listingHandler.Create)
	mux.HandleFunc("/api/listings/nearby", listingHandler.Nearby)
	mux.HandleFunc("/api/listings/", listingHandler.Listing)

	handler := rateLimiter.RateLimit(100, 60)(authMiddleware.Authenticate(mux))

	log.WithField("port", cfg.Port).Info("HTTP server listening")
	if err := http.ListenAndServe(":"+cfg.Port, handler); err != nil {
		log.WithError(err).Fatal("HTTP server failed")
	}
}
