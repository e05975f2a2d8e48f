package config

import "time"

// OIDC describes the identity provider the CLI signs in with.
type OIDC struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	// RedirectURL must be a loopback URL. Port 0 picks a free port per attempt.
	RedirectURL string
	RevokeURL   string
	Scopes      []string
}

// Config holds runtime settings for the greenmission CLI.
type Config struct {
	APIBaseURL          string
	HealthAddr          string
	DBPath              string
	LogLevel            string
	UserAgent           string
	OnlineCheckInterval time.Duration
	RequestTimeout      time.Duration
	RestoreTimeout      time.Duration
	// RefreshSchedule is a cron spec for the background profile refresh.
	// Empty disables it.
	RefreshSchedule string
	OIDC            OIDC
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "http://127.0.0.1:8080/api"
	c.HealthAddr = "127.0.0.1:50051"
	c.DBPath = "greenmission.db"
	c.LogLevel = "info"
	c.UserAgent = "greenmission-cli"
	c.OnlineCheckInterval = 3 * time.Second
	c.RequestTimeout = 10 * time.Second
	c.RestoreTimeout = 5 * time.Second
	c.RefreshSchedule = "@every 5m"
	c.OIDC = OIDC{
		Issuer:      "https://accounts.google.com",
		RedirectURL: "http://127.0.0.1:0/callback",
		Scopes:      []string{"openid", "email", "profile"},
	}
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
