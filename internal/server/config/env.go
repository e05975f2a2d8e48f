package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// dotenvFiles are read for values missing from the process environment.
var dotenvFiles = []string{".env"}

type env map[string]string

func loadEnv() env {
	e := env{}
	for _, name := range dotenvFiles {
		vals, err := godotenv.Read(name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			panic(err)
		}
		for k, v := range vals {
			if _, ok := e[k]; !ok {
				e[k] = v
			}
		}
	}
	return e
}

func (e env) get(key string) (string, bool) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v, true
	}
	v, ok := e[key]
	return v, ok && v != ""
}

func (e env) setString(dst *string, key string) {
	if v, ok := e.get(key); ok {
		*dst = v
	}
}

func (e env) setDuration(dst *time.Duration, key string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		panic(err)
	}
	*dst = d
}

func (e env) setInt(dst *int, key string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		panic(err)
	}
	*dst = n
}

func (e env) setFloat(dst *float64, key string) {
	v, ok := e.get(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		panic(err)
	}
	*dst = f
}

// parseEnv overlays Config with environment variables. Malformed numbers
// and durations panic, like malformed flags.
func parseEnv(cfg *Config) {
	e := loadEnv()

	e.setString(&cfg.HTTPAddr, "HTTP_ADDR")
	e.setString(&cfg.GRPCAddr, "GRPC_ADDR")
	e.setString(&cfg.DatabaseDSN, "DATABASE_DSN")
	e.setString(&cfg.SecretKey, "JWT_SECRET")
	e.setDuration(&cfg.AccessTokenValidityDuration, "ACCESS_TOKEN_TTL")
	e.setString(&cfg.LogLevel, "LOG_LEVEL")

	e.setString(&cfg.RedisAddr, "REDIS_ADDR")
	e.setString(&cfg.RedisPassword, "REDIS_PASSWORD")
	e.setString(&cfg.AMQPURL, "AMQP_URL")

	e.setString(&cfg.FirebaseCredentialsFile, "FIREBASE_CREDENTIALS_FILE")
	e.setString(&cfg.FirebaseProjectID, "FIREBASE_PROJECT_ID")
	e.setString(&cfg.OIDCIssuer, "OIDC_ISSUER")
	e.setString(&cfg.OIDCClientID, "OIDC_CLIENT_ID")

	e.setString(&cfg.S3RootUser, "S3_ROOT_USER")
	e.setString(&cfg.S3RootPassword, "S3_ROOT_PASSWORD")
	e.setString(&cfg.S3Bucket, "S3_BUCKET")
	e.setString(&cfg.S3Region, "S3_REGION")
	e.setString(&cfg.S3BaseEndpoint, "S3_BASE_ENDPOINT")

	if v, ok := e.get("CORS_ORIGINS"); ok {
		cfg.CORSOrigins = splitList(v)
	}
	e.setFloat(&cfg.LoginRateLimit, "LOGIN_RATE_LIMIT")
	e.setInt(&cfg.LoginBurst, "LOGIN_BURST")
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
