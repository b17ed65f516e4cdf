package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("BACKEND_URL", "https://api.example.com/")
	t.Setenv("STORAGE_BACKEND", "memory")

	cfg := Load()
	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "https://api.example.com", cfg.BackendURL)
	assert.Equal(t, time.Minute, cfg.RefreshLead)
	assert.Equal(t, []string{"SG", "CN"}, cfg.BlockedCountries)
	assert.Equal(t, 465, cfg.SMTP.Port)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("BACKEND_URL", "https://api.example.com")
	t.Setenv("STORAGE_BACKEND", "redis")
	t.Setenv("REFRESH_LEAD", "90s")
	t.Setenv("SMTP_PORT", "587")
	t.Setenv("BLOCKED_COUNTRIES", " ru, ")

	cfg := Load()
	assert.Equal(t, 90*time.Second, cfg.RefreshLead)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, []string{"RU"}, cfg.BlockedCountries)
}

func TestGetDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("X_DURATION", "soon")
	assert.Equal(t, time.Second, getDuration("X_DURATION", time.Second))
}
