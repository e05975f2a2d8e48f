package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd", "-a", "http://api:9090", "-g", "api:50051", "-i", "10", "-r", ""},
			expected: &Config{APIBaseURL: "http://api:9090", HealthAddr: "api:50051", OnlineCheckInterval: 10 * time.Second}},
		{name: "Test2 oidc flags", args: []string{"cmd", "-issuer", "https://idp", "-client-id", "cli", "-redirect", "http://127.0.0.1:8765/cb"},
			expected: &Config{OIDC: OIDC{Issuer: "https://idp", ClientID: "cli", RedirectURL: "http://127.0.0.1:8765/cb"}}},
		{name: "Test3 unknown flags and commands are ignored", args: []string{"cmd", "-x", "1", "open", "/dashboard", "-d", "db.sqlite"},
			expected: &Config{DBPath: "db.sqlite"}},
		{name: "Test4 incorrect check interval", args: []string{"cmd", "-i", "abc"}, expectPanic: true, expected: &Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(tt.expected, config))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
