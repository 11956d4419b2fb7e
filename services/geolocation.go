package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	log "github.com/sirupsen/logrus"
)

// GeolocationService resolves a coarse human-readable location for an IP via
// ip-api.com, cached in Redis for a day. Used only to enrich alert emails;
// a failed lookup degrades to "Unknown" rather than failing the caller.
type GeolocationService struct {
	appContext.DefaultService

	httpClient  *http.Client
	apiURL      string
	redisSvc    *RedisService
	cacheExpiry time.Duration
}

const GEOLOCATION_SVC = "geolocation_svc"

func (svc GeolocationService) Id() string {
	return GEOLOCATION_SVC
}

func (svc *GeolocationService) Configure(ctx *appContext.Context) error {
	svc.httpClient = &http.Client{
		Timeout: 10 * time.Second,
	}
	svc.apiURL = "http://ip-api.com/json"
	svc.cacheExpiry = 24 * time.Hour
	return svc.DefaultService.Configure(ctx)
}

func (svc *GeolocationService) Start() error {
	svc.redisSvc = svc.Service(REDIS_SVC).(*RedisService)
	return nil
}

type geoResult struct {
	Status     string `json:"status"`
	Country    string `json:"country"`
	RegionName string `json:"regionName"`
	City       string `json:"city"`
}

// GetLocationByIP returns "City, Region, Country" for ip, best effort.
func (svc *GeolocationService) GetLocationByIP(ip string) (string, error) {
	if ip == "" || ip == "127.0.0.1" || ip == "::1" {
		return "Local", nil
	}

	ctx := context.Background()
	cacheKey := fmt.Sprintf("geo:alert:%s", ip)

	if svc.redisSvc != nil {
		if cached, err := svc.redisSvc.Get(ctx, cacheKey); err == nil && cached != "" {
			return cached, nil
		}
	}

	location, err := svc.lookup(ip)
	if err != nil {
		log.WithError(err).WithField("ip", ip).Warn("Geolocation lookup failed")
		return "Unknown", nil
	}

	if svc.redisSvc != nil {
		if err := svc.redisSvc.Set(ctx, cacheKey, location, svc.cacheExpiry); err != nil {
			log.WithError(err).WithField("ip", ip).Debug("Failed to cache geolocation")
		}
	}

	return location, nil
}

func (svc *GeolocationService) lookup(ip string) (string, error) {
	url := fmt.Sprintf("%s/%s?fields=status,country,regionName,city", svc.apiURL, ip)

	resp, err := svc.httpClient.Get(url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geolocation API returned status %d", resp.StatusCode)
	}

	var result geoResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if result.Status != "success" {
		return "", fmt.Errorf("geolocation lookup status %q", result.Status)
	}

	var parts []string
	for _, p := range []string{result.City, result.RegionName, result.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "Unknown", nil
	}
	return strings.Join(parts, ", "), nil
}
