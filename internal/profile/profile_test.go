package profile

import (
	"os"
	"testing"
	"time"
)

func TestProfileDefaults(t *testing.T) {
	clearEnvVars()

	profile := &Profile{}
	profile.FromEnv()

	tests := []struct {
		name     string
		expected string
		actual   string
	}{
		{"APIPrefix default", "/api/", profile.APIPrefix},
		{"CacheVersion default", "v1", profile.CacheVersion},
		{"APIBaseURL empty by default", "", profile.APIBaseURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.actual != tt.expected {
				t.Errorf("%s: expected %q, got %q", tt.name, tt.expected, tt.actual)
			}
		})
	}

	if profile.SyncMaxRetries != 3 {
		t.Errorf("SyncMaxRetries: expected 3, got %d", profile.SyncMaxRetries)
	}
	if profile.SyncSettleDelay != time.Second {
		t.Errorf("SyncSettleDelay: expected 1s, got %v", profile.SyncSettleDelay)
	}
	if profile.SyncAttemptTimeout != 30*time.Second {
		t.Errorf("SyncAttemptTimeout: expected 30s, got %v", profile.SyncAttemptTimeout)
	}
}

func TestProfileFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVar   string
		envValue string
		field    func(*Profile) string
		expected string
	}{
		{
			name:     "API base URL",
			envVar:   "PARLEY_API_BASE_URL",
			envValue: "https://chat.example.com",
			field:    func(p *Profile) string { return p.APIBaseURL },
			expected: "https://chat.example.com",
		},
		{
			name:     "API prefix",
			envVar:   "PARLEY_API_PREFIX",
			envValue: "/v2/api/",
			field:    func(p *Profile) string { return p.APIPrefix },
			expected: "/v2/api/",
		},
		{
			name:     "cache version",
			envVar:   "PARLEY_CACHE_VERSION",
			envValue: "v42",
			field:    func(p *Profile) string { return p.CacheVersion },
			expected: "v42",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnvVars()
			os.Setenv(tt.envVar, tt.envValue)
			defer os.Unsetenv(tt.envVar)

			profile := &Profile{}
			profile.FromEnv()

			actual := tt.field(profile)
			if actual != tt.expected {
				t.Errorf("%s: expected %q, got %q", tt.name, tt.expected, actual)
			}
		})
	}
}

func TestProfileValidate(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*Profile)
		wantErr bool
	}{
		{
			name: "sqlite gets default DSN",
			setup: func(p *Profile) {
				p.Mode = "dev"
				p.Driver = "sqlite"
			},
			wantErr: false,
		},
		{
			name: "invalid api base url rejected",
			setup: func(p *Profile) {
				p.Mode = "dev"
				p.Driver = "sqlite"
				p.APIBaseURL = "not a url"
			},
			wantErr: true,
		},
		{
			name: "negative retry budget rejected",
			setup: func(p *Profile) {
				p.Mode = "dev"
				p.Driver = "sqlite"
				p.SyncMaxRetries = -1
			},
			wantErr: true,
		},
		{
			name: "unknown mode falls back to demo",
			setup: func(p *Profile) {
				p.Mode = "bogus"
				p.Driver = "sqlite"
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile := &Profile{Data: t.TempDir()}
			tt.setup(profile)

			err := profile.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.wantErr && profile.Driver == "sqlite" && profile.DSN == "" {
				t.Error("expected a default DSN for sqlite")
			}
		})
	}
}

// clearEnvVars clears all profile-related environment variables.
func clearEnvVars() {
	suffixes := []string{
		"API_BASE_URL",
		"API_PREFIX",
		"SYNC_MAX_RETRIES",
		"SYNC_SETTLE_DELAY_MS",
		"SYNC_ATTEMPT_TIMEOUT_SECONDS",
		"CACHE_VERSION",
	}
	for _, suffix := range suffixes {
		os.Unsetenv("PARLEY_" + suffix)
	}
}
