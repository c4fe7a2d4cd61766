// feedwatch is a terminal viewer for the live listing feed: it subscribes to
// the listing stream, tracks a (simulated) device position, and prints each
// feed snapshot as it changes.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nearlist/nearlist/internal/config"
	"github.com/nearlist/nearlist/internal/feed"
	"github.com/nearlist/nearlist/internal/geocode"
	"github.com/nearlist/nearlist/internal/location"
	"github.com/nearlist/nearlist/internal/models"
	"github.com/nearlist/nearlist/internal/stream"
)

// envProvider is a location.Provider pinned to coordinates from the
// environment, re-emitting them periodically the way a real GPS source
// re-reports its fix.
type envProvider struct {
	position models.Location
}

func (p *envProvider) Current(ctx context.Context, opts location.AcquireOptions) (models.Location, error) {
	return p.position, nil
}

func (p *envProvider) Watch(ctx context.Context) (<-chan location.Update, error) {
	out := make(chan location.Update)
	go func() {
		defer close(out)
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()

		// Emit the initial fix immediately.
		select {
		case out <- location.Update{Location: p.position}:
		case <-ctx.Done():
			return
		}
		for {
			select {
			case <-ticker.C:
				select {
				case out <- location.Update{Location: p.position}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func envFloat(key string, fallback float64) float64 {
	if raw := os.Getenv(key); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func main() {
	cfg := config.Load()

	position := models.Location{
		Lat: envFloat("VIEWER_LAT", 37.7749),
		Lon: envFloat("VIEWER_LON", -122.4194),
	}
	radius := envFloat("VIEWER_RADIUS", models.DefaultRadiusMiles)

	events, err := stream.ConnectMQTT(cfg.MQTTBrokerURL, "nearlist-feedwatch")
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to MQTT broker")
	}
	defer events.Close()

	tracker := location.NewTracker(&envProvider{position: position})
	resolver := geocode.NewHTTPResolver(cfg.GeocoderURL)

	sync := feed.NewSynchronizer(events, tracker, resolver, radius)
	if err := sync.Start(context.Background()); err != nil {
		log.WithError(err).Fatal("Failed to start feed")
	}
	defer sync.Close()

	log.WithFields(log.Fields{
		"lat":    position.Lat,
		"lon":    position.Lon,
		"radius": radius,
	}).Info("Watching feed")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	for {
		select {
		case items, ok := <-sync.Updates():
			if !ok {
				if err := sync.Err(); err != nil {
					log.WithError(err).Error("Feed session ended")
				}
				return
			}
			fmt.Printf("--- %d listings within %.0f mi ---\n", len(items), radius)
			for _, item := range items {
				address := item.Address
				if address == "" {
					address = "(resolving address)"
				}
				fmt.Printf("%6.2f mi  %-10s %s\n", item.DistanceMiles, item.Category, address)
			}
		case <-ctx.Done():
			return
		}
	}
}
