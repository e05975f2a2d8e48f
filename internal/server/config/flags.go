package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/greenmission/internal/flagx"
)

var flagNames = []string{"-a", "-g", "-d", "-s", "-t", "-l", "-redis", "-amqp",
	"-firebase-credentials", "-oidc-issuer", "-oidc-client-id",
	"-u", "-p", "-b", "-region", "-e", "-cors"}

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags:
//
//	-a string                     HTTP bind address (e.g., ":8080")
//	-g string                     gRPC health bind address (e.g., ":50051")
//	-d string                     PostgreSQL DSN
//	-s string                     JWT HMAC secret key
//	-t int                        access token validity, minutes
//	-l string                     log level
//	-redis string                 Redis address of the revocation list
//	-amqp string                  AMQP broker URL for profile events
//	-firebase-credentials string  Firebase service account file
//	-oidc-issuer string           accepted OpenID Connect issuer
//	-oidc-client-id string        audience of OpenID Connect ID tokens
//	-u string                     S3 root user
//	-p string                     S3 root password
//	-b string                     S3 bucket name
//	-region string                S3 region
//	-e string                     S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-cors string                  comma separated CORS origins
//
// Only the flags listed above are taken from os.Args (see flagx.FilterArgs).
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], flagNames)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port of the HTTP API")
	fs.StringVar(&config.GRPCAddr, "g", config.GRPCAddr, "address and port of the gRPC health endpoint")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level (debug, info, warn, error)")

	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "Redis address")
	fs.StringVar(&config.AMQPURL, "amqp", config.AMQPURL, "AMQP broker URL")

	fs.StringVar(&config.FirebaseCredentialsFile, "firebase-credentials", config.FirebaseCredentialsFile, "Firebase service account file")
	fs.StringVar(&config.OIDCIssuer, "oidc-issuer", config.OIDCIssuer, "OpenID Connect issuer")
	fs.StringVar(&config.OIDCClientID, "oidc-client-id", config.OIDCClientID, "OpenID Connect client id")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "region", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	cors := fs.String("cors", "", "comma separated CORS origins")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	if *cors != "" {
		config.CORSOrigins = splitList(*cors)
	}
}
