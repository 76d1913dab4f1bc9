package config

import (
	"os"
	"strconv"
)

type Config struct {
	PlatformURL    string // base URL of the platform web app (notifications)
	PlatformSecret string // shared HMAC secret for platform calls
	Port           int
	DataDir        string
	WheelsDir      string // root dir for wheel bundles (wheel.json per wheel)
	SpinRatePerMin int    // per-IP spin/claim rate limit
	RecentDraws    int    // recent draws shown on the admin stats surface
}

func Load() *Config {
	platformURL := os.Getenv("PLATFORM_URL")
	if platformURL == "" {
		platformURL = "http://localhost:3000"
	}
	port := 8082
	// Prefer PORT (Render, Fly.io, Railway, etc.) then SPIN_PORT
	if p := os.Getenv("PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			port = v
		}
	} else if p := os.Getenv("SPIN_PORT"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			port = v
		}
	}
	dataDir := os.Getenv("SPIN_DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}
	wheelsDir := os.Getenv("SPIN_WHEELS_DIR")
	if wheelsDir == "" {
		wheelsDir = "wheels"
	}
	ratePerMin := 60
	if p := os.Getenv("SPIN_RATE_PER_MIN"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			ratePerMin = v
		}
	}
	recentDraws := 20
	if p := os.Getenv("SPIN_RECENT_DRAWS"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			recentDraws = v
		}
	}
	return &Config{
		PlatformURL:    platformURL,
		PlatformSecret: os.Getenv("PLATFORM_SECRET"),
		Port:           port,
		DataDir:        dataDir,
		WheelsDir:      wheelsDir,
		SpinRatePerMin: ratePerMin,
		RecentDraws:    recentDraws,
	}
}
