package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/greenmission/internal/flagx"
	"github.com/dmitrijs2005/greenmission/internal/timex"
)

type jsonOIDC struct {
	Issuer       string   `json:"issuer"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	RedirectURL  string   `json:"redirect_url"`
	RevokeURL    string   `json:"revoke_url"`
	Scopes       []string `json:"scopes"`
}

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer and
// zero-valued fields that are absent leave the defaults untouched.
type JsonConfig struct {
	APIBaseURL          string          `json:"api_base_url"`
	HealthAddr          string          `json:"health_addr"`
	DBPath              string          `json:"db_path"`
	LogLevel            string          `json:"log_level"`
	UserAgent           string          `json:"user_agent"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`
	RequestTimeout      *timex.Duration `json:"request_timeout"`
	RestoreTimeout      *timex.Duration `json:"restore_timeout"`
	RefreshSchedule     *string         `json:"refresh_schedule"`
	OIDC                *jsonOIDC       `json:"oidc"`
}

// parseJson overlays Config with values loaded from the JSON file given via
// -c or -config. Read and unmarshal errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	setString(&cfg.APIBaseURL, jc.APIBaseURL)
	setString(&cfg.HealthAddr, jc.HealthAddr)
	setString(&cfg.DBPath, jc.DBPath)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.UserAgent, jc.UserAgent)

	if jc.OnlineCheckInterval != nil {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.RestoreTimeout != nil {
		cfg.RestoreTimeout = jc.RestoreTimeout.Duration
	}
	if jc.RefreshSchedule != nil {
		cfg.RefreshSchedule = *jc.RefreshSchedule
	}

	if o := jc.OIDC; o != nil {
		setString(&cfg.OIDC.Issuer, o.Issuer)
		setString(&cfg.OIDC.ClientID, o.ClientID)
		setString(&cfg.OIDC.ClientSecret, o.ClientSecret)
		setString(&cfg.OIDC.RedirectURL, o.RedirectURL)
		setString(&cfg.OIDC.RevokeURL, o.RevokeURL)
		if len(o.Scopes) > 0 {
			cfg.OIDC.Scopes = o.Scopes
		}
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
