package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/greenmission/internal/flagx"
)

var flagNames = []string{"-a", "-g", "-d", "-i", "-l", "-r", "-issuer", "-client-id", "-client-secret", "-redirect"}

// ValueFlags lists every flag the config accepts. All of them take a value,
// which the CLI needs to tell a command apart from flag values.
var ValueFlags = append(append([]string{}, flagNames...), "-c", "-config")

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string          base URL of the profile API
//	-g string          host:port of the gRPC health endpoint
//	-d string          path of the local SQLite database
//	-i int             online check interval in seconds
//	-l string          log level
//	-r string          cron spec of the background refresh ("" disables it)
//	-issuer string     OpenID Connect issuer
//	-client-id string  OAuth2 client id
//	-client-secret     OAuth2 client secret
//	-redirect string   loopback redirect URL
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], flagNames)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.APIBaseURL, "a", cfg.APIBaseURL, "base URL of the profile API")
	fs.StringVar(&cfg.HealthAddr, "g", cfg.HealthAddr, "address and port of the health endpoint")
	fs.StringVar(&cfg.DBPath, "d", cfg.DBPath, "local database file")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level (debug, info, warn, error)")
	fs.StringVar(&cfg.RefreshSchedule, "r", cfg.RefreshSchedule, "profile refresh schedule (cron spec)")
	fs.StringVar(&cfg.OIDC.Issuer, "issuer", cfg.OIDC.Issuer, "OpenID Connect issuer")
	fs.StringVar(&cfg.OIDC.ClientID, "client-id", cfg.OIDC.ClientID, "OAuth2 client id")
	fs.StringVar(&cfg.OIDC.ClientSecret, "client-secret", cfg.OIDC.ClientSecret, "OAuth2 client secret")
	fs.StringVar(&cfg.OIDC.RedirectURL, "redirect", cfg.OIDC.RedirectURL, "loopback redirect URL")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
