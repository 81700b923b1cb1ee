// Package weatherlinkv2 implements scheduler.VendorSource for Davis's
// cloud WeatherLink v2 historic API, grounded on the teacher's
// weatherlinklive/api_client.go (same net/http.Client-with-timeout,
// JSON-decode, wrapped-error shape) but targeting the cloud "historic"
// endpoint family instead of the teacher's local-device v1 API, since
// spec.md §2/§4.7 lists "Weatherlink v2" among the vendor HTTP pullers
// (period 5 min, phase 2 min, rate limit <= 10 req/s).
package weatherlinkv2

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/meteo-concept/ingestd/internal/model"
	"github.com/meteo-concept/ingestd/internal/scheduler"
	"github.com/meteo-concept/ingestd/internal/store"
)

const (
	// Period and Phase are spec.md §4.7's P/φ for this vendor.
	Period = 5 * time.Minute
	Phase  = 2 * time.Minute
	// RateLimit is spec.md §4.7's Weatherlink v2 ceiling.
	RateLimit = 10.0
)

type sensorRecord struct {
	Timestamp   int64   `json:"ts"`
	Temperature float64 `json:"temp"`
	Humidity    float64 `json:"hum"`
	Pressure    float64 `json:"bar"`
	WindSpeed   float64 `json:"wind_speed_avg"`
	WindDir     float64 `json:"wind_dir_of_prevail"`
	Rainfall    float64 `json:"rainfall_mm"`
}

type historicResponse struct {
	StationID int64 `json:"station_id"`
	Sensors   []struct {
		Data []sensorRecord `json:"data"`
	} `json:"sensors"`
}

type latestResponse struct {
	GeneratedAt int64 `json:"generated_at"`
}

// Source is a scheduler.VendorSource talking to the WeatherLink v2 API
// over HTTPS, with one rate limiter shared by every station that uses
// this Source.
type Source struct {
	baseURL   string
	client    *http.Client
	limiter   *scheduler.RateLimiter
}

// New builds a Source. baseURL defaults to the public WeatherLink v2 API
// root if empty.
func New(baseURL string) *Source {
	if baseURL == "" {
		baseURL = "https://api.weatherlink.com/v2"
	}
	return &Source{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: scheduler.NewRateLimiter(RateLimit),
	}
}

func (s *Source) HasRealtimeStream() bool { return false }

func (s *Source) LatestAvailable(ctx context.Context, reg store.StationRegistration) (time.Time, error) {
	s.limiter.Wait()
	url := fmt.Sprintf("%s/stations/%s?api-key=%s", s.baseURL, reg.AuthToken, reg.AuthToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return time.Time{}, fmt.Errorf("weatherlinkv2: build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("weatherlinkv2: connect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return time.Time{}, fmt.Errorf("weatherlinkv2: unexpected status %d", resp.StatusCode)
	}
	var lr latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return time.Time{}, fmt.Errorf("weatherlinkv2: decode: %w", err)
	}
	return time.Unix(lr.GeneratedAt, 0).UTC(), nil
}

func (s *Source) FetchWindow(ctx context.Context, reg store.StationRegistration, begin, end time.Time) ([]model.Observation, error) {
	s.limiter.Wait()
	url := fmt.Sprintf("%s/historic/%s?api-key=%s&start-timestamp=%d&end-timestamp=%d",
		s.baseURL, reg.AuthToken, reg.AuthToken, begin.Unix(), end.Unix())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("weatherlinkv2: build request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weatherlinkv2: connect: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weatherlinkv2: unexpected status %d", resp.StatusCode)
	}
	var hr historicResponse
	if err := json.NewDecoder(resp.Body).Decode(&hr); err != nil {
		return nil, fmt.Errorf("weatherlinkv2: decode: %w", err)
	}

	var out []model.Observation
	for _, sensor := range hr.Sensors {
		for _, rec := range sensor.Data {
			out = append(out, recordToObservation(reg.Station, rec))
		}
	}
	return out, nil
}

func recordToObservation(station model.StationID, rec sensorRecord) model.Observation {
	obs := model.Observation{
		Station:     station,
		Timestamp:   time.Unix(rec.Timestamp, 0).UTC(),
		SensorModel: "weatherlink-v2",
	}
	if rec.Temperature != 0 {
		obs.Temperature = model.Some(fahrenheitToCelsius(rec.Temperature))
	}
	if rec.Humidity != 0 {
		obs.Humidity = model.Some(rec.Humidity)
	}
	if rec.Pressure != 0 {
		obs.Pressure = model.Some(inHgToHpa(rec.Pressure))
	}
	if rec.WindSpeed != 0 {
		obs.WindSpeed = model.Some(mphToMS(rec.WindSpeed))
	}
	if rec.WindDir != 0 {
		obs.WindDirection = model.Some(rec.WindDir)
	}
	if rec.Rainfall != 0 {
		obs.RainfallSinceLast = model.Some(rec.Rainfall)
	}
	return obs
}

func fahrenheitToCelsius(f float64) float64 { return (f - 32) * 5 / 9 }
func inHgToHpa(inHg float64) float64        { return inHg * 33.8639 }
func mphToMS(mph float64) float64           { return mph * 0.44704 }

var _ scheduler.VendorSource = (*Source)(nil)
