// telemetry-seeder generates fake fleet traffic against a running
// FleetWatch instance. Useful for exercising rate limits, geofence
// zones, and the alerts API locally.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

var (
	baseURL     = flag.String("url", "http://localhost:8080", "FleetWatch base URL")
	apiKey      = flag.String("api-key", "", "API key (optional)")
	devices     = flag.Int("devices", 10, "Number of simulated devices")
	count       = flag.Int("count", 100, "Number of reports to send")
	interval    = flag.Duration("interval", 100*time.Millisecond, "Interval between reports")
	centerLat   = flag.Float64("lat", 40.71, "Fleet center latitude")
	centerLon   = flag.Float64("lon", -74.00, "Fleet center longitude")
	spreadKM    = flag.Float64("spread-km", 20, "Rough radius the fleet wanders within")
	anomalyRate = flag.Float64("anomaly-rate", 0.05, "Fraction of reports with invalid coordinates")
)

type report struct {
	DeviceID  string    `json:"deviceId"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

func main() {
	flag.Parse()

	gofakeit.Seed(time.Now().UnixNano())

	fleet := make([]string, *devices)
	for i := range fleet {
		fleet[i] = fmt.Sprintf("%s-%04d", gofakeit.CarMaker(), i)
	}

	log.Printf("Seeding %d reports from %d devices to %s", *count, *devices, *baseURL)

	client := &http.Client{Timeout: 10 * time.Second}
	success, failed := 0, 0

	for i := 0; i < *count; i++ {
		r := generateReport(fleet)
		if err := send(client, r); err != nil {
			log.Printf("send failed: %v", err)
			failed++
		} else {
			success++
		}
		time.Sleep(*interval)
	}

	log.Printf("Done: %d accepted, %d failed", success, failed)
}

func generateReport(fleet []string) report {
	// ~1 degree of latitude is 111 km.
	jitter := *spreadKM / 111.0

	r := report{
		DeviceID:  fleet[rand.Intn(len(fleet))],
		Latitude:  *centerLat + (rand.Float64()*2-1)*jitter,
		Longitude: *centerLon + (rand.Float64()*2-1)*jitter,
		Timestamp: time.Now(),
	}

	if rand.Float64() < *anomalyRate {
		r.Latitude = 90 + rand.Float64()*30
	}

	return r
}

func send(client *http.Client, r report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, *baseURL+"/telemetry", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if *apiKey != "" {
		req.Header.Set("X-API-Key", *apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("rate limited (retry-after %s)", resp.Header.Get("X-RateLimit-Retry-After"))
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
