package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, []string{"Quarterly", "Half-yearly", "Annual"}, cfg.Results.ExamTypes)
	assert.Equal(t, 3, cfg.Results.MaxExamTypes)
	assert.Equal(t, 24*time.Hour, cfg.Admin.Expiration)
	assert.Equal(t, "school_site", cfg.Mongo.Database)
}

func TestLoadFromEnvironment(t *testing.T) {
	chdirTemp(t)
	t.Setenv("RESULTS_EXAM_TYPES", "Unit Test, Midterm ,Final")
	t.Setenv("JWT_EXPIRATION", "2h")
	t.Setenv("ALLOWED_ORIGINS", "https://school.example, ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"Unit Test", "Midterm", "Final"}, cfg.Results.ExamTypes)
	assert.Equal(t, 2*time.Hour, cfg.Admin.Expiration)
	assert.Equal(t, []string{"https://school.example"}, cfg.CORS.AllowedOrigins)
}

func TestParseDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, parseDuration("not-a-duration", time.Minute))
	assert.Equal(t, time.Minute, parseDuration("", time.Minute))
	assert.Equal(t, 3*time.Second, parseDuration("3s", time.Minute))
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
