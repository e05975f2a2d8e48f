// Package config loads runtime configuration for the greenmission CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected via -c or -config.
//  3. Command-line flags, which override earlier values.
//
// # JSON schema
//
// Durations use timex.Duration, so they can be strings like "3s" or integer
// nanoseconds:
//
//	{
//	  "api_base_url": "https://api.example.org/api",
//	  "health_addr": "api.example.org:50051",
//	  "db_path": "/home/me/.greenmission.db",
//	  "online_check_interval": "3s",
//	  "refresh_schedule": "@every 5m",
//	  "oidc": {
//	    "issuer": "https://accounts.google.com",
//	    "client_id": "...apps.googleusercontent.com",
//	    "redirect_url": "http://127.0.0.1:0/callback"
//	  }
//	}
package config
