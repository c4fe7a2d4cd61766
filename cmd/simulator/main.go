package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
)

// Location represents a geographical location with latitude and longitude coordinates.
type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Cities used as seed points so simulated devices and listings cluster the
// way real users do.
var cities = []Location{
	{Lat: 51.5074, Lon: -0.1278},   // London
	{Lat: 40.7128, Lon: -74.0060},  // New York
	{Lat: 37.7749, Lon: -122.4194}, // San Francisco
	{Lat: 34.0522, Lon: -118.2437}, // Los Angeles
	{Lat: 48.8566, Lon: 2.3522},    // Paris
	{Lat: 52.5200, Lon: 13.4050},   // Berlin
	{Lat: 35.6762, Lon: 139.6503},  // Tokyo
	{Lat: -33.8688, Lon: 151.2093}, // Sydney
	{Lat: 43.6532, Lon: -79.3832},  // Toronto
	{Lat: 41.0082, Lon: 28.9784},   // Istanbul
}

var categories = []string{"bakery", "vintage", "produce", "coffee", "books", "plants"}

func jitterLocation(base Location, miles float64) Location {
	milesPerDegLat := 69.172
	milesPerDegLon := 69.172 * math.Cos(base.Lat*math.Pi/180)
	dLat := (rand.Float64()*2 - 1) * (miles / milesPerDegLat)
	dLon := (rand.Float64()*2 - 1) * (miles / milesPerDegLon)
	return Location{Lat: base.Lat + dLat, Lon: base.Lon + dLon}
}

func randomCity() Location {
	return cities[rand.Intn(len(cities))]
}

var authToken string

func authorizedRequest(method, url string, body *bytes.Buffer) (*http.Response, error) {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	return client.Do(req)
}

func login(apiURL, username, password string) error {
	creds := map[string]string{"username": username, "password": password}
	body, _ := json.Marshal(creds)

	resp, err := authorizedRequest(http.MethodPost, apiURL+"/api/auth/login", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("login failed (%d): %s", resp.StatusCode, msg)
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return err
	}
	authToken = loginResp.Token
	return nil
}

func registerDevice(apiURL string, index int, near Location) error {
	payload := map[string]interface{}{
		"token":    fmt.Sprintf("sim-device-%d-%d", index, time.Now().UnixNano()),
		"location": jitterLocation(near, 3),
		"radius":   float64(5 + rand.Intn(20)),
	}
	body, _ := json.Marshal(payload)

	resp, err := authorizedRequest(http.MethodPost, apiURL+"/api/devices", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("device registration failed (%d): %s", resp.StatusCode, msg)
	}
	return nil
}

func createListing(apiURL string, near Location) error {
	category := categories[rand.Intn(len(categories))]
	payload := map[string]interface{}{
		"coordinates": jitterLocation(near, 2),
		"category":    category,
		"description": fmt.Sprintf("Pop-up %s sale", category),
	}
	body, _ := json.Marshal(payload)

	resp, err := authorizedRequest(http.MethodPost, apiURL+"/api/listings", bytes.NewBuffer(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("listing creation failed (%d): %s", resp.StatusCode, msg)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return err
	}
	log.WithFields(log.Fields{"id": created.ID, "category": category}).Info("Published listing")
	return nil
}

func main() {
	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	username := os.Getenv("SIM_USERNAME")
	if username == "" {
		username = "simulator"
	}
	password := os.Getenv("SIM_PASSWORD")
	if password == "" {
		password = "simulator-pass"
	}

	deviceCount := 20
	if raw := os.Getenv("SIM_DEVICES"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			deviceCount = parsed
		}
	}
	interval := 15 * time.Second
	if raw := os.Getenv("SIM_INTERVAL"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil {
			interval = parsed
		}
	}

	if err := login(apiURL, username, password); err != nil {
		log.WithError(err).Fatal("Simulator login failed")
	}
	log.WithField("api", apiURL).Info("Simulator authenticated")

	city := randomCity()
	for i := 0; i < deviceCount; i++ {
		if err := registerDevice(apiURL, i, city); err != nil {
			log.WithError(err).Warn("Device registration failed")
		}
	}
	log.WithField("count", deviceCount).Info("Registered simulated devices")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		if err := createListing(apiURL, city); err != nil {
			log.WithError(err).Warn("Listing creation failed")
		}
	}
}
