package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/greenmission/internal/flagx"
	"github.com/dmitrijs2005/greenmission/internal/timex"
)

// JsonConfig is the JSON shape of Config. timex.Duration fields accept both
// "1s" style strings and integer nanoseconds. Absent keys keep the values
// loaded before.
type JsonConfig struct {
	HTTPAddr                    string          `json:"http_addr"`
	GRPCAddr                    string          `json:"grpc_addr"`
	DatabaseDSN                 string          `json:"database_dsn"`
	SecretKey                   string          `json:"secret_key"`
	AccessTokenValidityDuration *timex.Duration `json:"access_token_validity_duration"`
	LogLevel                    string          `json:"log_level"`
	RedisAddr                   string          `json:"redis_addr"`
	RedisPassword               string          `json:"redis_password"`
	AMQPURL                     string          `json:"amqp_url"`
	FirebaseCredentialsFile     string          `json:"firebase_credentials_file"`
	FirebaseProjectID           string          `json:"firebase_project_id"`
	OIDCIssuer                  string          `json:"oidc_issuer"`
	OIDCClientID                string          `json:"oidc_client_id"`
	S3RootUser                  string          `json:"s3_root_user"`
	S3RootPassword              string          `json:"s3_root_password"`
	S3Bucket                    string          `json:"s3_bucket"`
	S3Region                    string          `json:"s3_region"`
	S3BaseEndpoint              string          `json:"s3_base_endpoint"`
	AvatarUploadValidity        *timex.Duration `json:"avatar_upload_validity"`
	CORSOrigins                 []string        `json:"cors_origins"`
	LoginRateLimit              float64         `json:"login_rate_limit"`
	LoginBurst                  int             `json:"login_burst"`
}

// parseJson overlays Config with the JSON file given via -c or -config.
// Without the flag nothing is loaded. Read and unmarshal errors panic.
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

	setString(&cfg.HTTPAddr, jc.HTTPAddr)
	setString(&cfg.GRPCAddr, jc.GRPCAddr)
	setString(&cfg.DatabaseDSN, jc.DatabaseDSN)
	setString(&cfg.SecretKey, jc.SecretKey)
	setString(&cfg.LogLevel, jc.LogLevel)
	setString(&cfg.RedisAddr, jc.RedisAddr)
	setString(&cfg.RedisPassword, jc.RedisPassword)
	setString(&cfg.AMQPURL, jc.AMQPURL)
	setString(&cfg.FirebaseCredentialsFile, jc.FirebaseCredentialsFile)
	setString(&cfg.FirebaseProjectID, jc.FirebaseProjectID)
	setString(&cfg.OIDCIssuer, jc.OIDCIssuer)
	setString(&cfg.OIDCClientID, jc.OIDCClientID)
	setString(&cfg.S3RootUser, jc.S3RootUser)
	setString(&cfg.S3RootPassword, jc.S3RootPassword)
	setString(&cfg.S3Bucket, jc.S3Bucket)
	setString(&cfg.S3Region, jc.S3Region)
	setString(&cfg.S3BaseEndpoint, jc.S3BaseEndpoint)

	if jc.AccessTokenValidityDuration != nil {
		cfg.AccessTokenValidityDuration = jc.AccessTokenValidityDuration.Duration
	}
	if jc.AvatarUploadValidity != nil {
		cfg.AvatarUploadValidity = jc.AvatarUploadValidity.Duration
	}
	if len(jc.CORSOrigins) > 0 {
		cfg.CORSOrigins = jc.CORSOrigins
	}
	if jc.LoginRateLimit > 0 {
		cfg.LoginRateLimit = jc.LoginRateLimit
	}
	if jc.LoginBurst > 0 {
		cfg.LoginBurst = jc.LoginBurst
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
