package main

import (
	"context"
	"testing"
	"time"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/config"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/directory"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/directory/restapi"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/settings"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenProviderSeedsEmptyLocalDirectory(t *testing.T) {
	cfg := config.Default()
	provider, closeFn, err := openProvider(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()

	e, err := provider.EmployeeByTag(context.Background(), "RFID-001")
	require.NoError(t, err)
	assert.Equal(t, "emp-001", e.ID)

	assert.Equal(t, []string{"RFID-001", "RFID-002", "RFID-003"}, mockTags(context.Background(), provider))
}

func TestOpenProviderKeepsExistingData(t *testing.T) {
	cfg := config.Default()
	cfg.Directory.DataDir = t.TempDir()

	provider, closeFn, err := openProvider(cfg, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, provider.WriteWorkLog(context.Background(), "emp-001", directory.WorkActive))
	closeFn()

	provider, closeFn, err = openProvider(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()

	e, err := provider.EmployeeByTag(context.Background(), "RFID-001")
	require.NoError(t, err)
	assert.Equal(t, directory.WorkActive, e.WorkStatus, "a non-empty store is not re-seeded")
}

func TestOpenProviderREST(t *testing.T) {
	cfg := config.Default()
	cfg.Directory.Driver = config.DriverREST
	cfg.Directory.APIBaseURL = "http://directory.local/api"

	provider, closeFn, err := openProvider(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &restapi.Client{}, provider)

	// The REST directory cannot list cards, so the demo tags are used.
	assert.Equal(t, []string{"RFID-001", "RFID-002", "RFID-003"}, mockTags(context.Background(), provider))
}

func TestOpenSummarizerNeedsKey(t *testing.T) {
	cfg := config.Default()
	assert.Nil(t, openSummarizer(cfg, zerolog.Nop()))

	cfg.Briefing.Endpoint = "https://example.openai.azure.com"
	cfg.Briefing.Deployment = "gpt-4o"
	cfg.Briefing.APIKeyEnv = "KIOSK_TEST_MISSING_KEY"
	t.Setenv("KIOSK_TEST_MISSING_KEY", "")
	assert.Nil(t, openSummarizer(cfg, zerolog.Nop()))

	t.Setenv("KIOSK_TEST_MISSING_KEY", "secret")
	assert.NotNil(t, openSummarizer(cfg, zerolog.Nop()))
}

func TestApplySaved(t *testing.T) {
	saved := settings.Settings{GatewayURL: "ws://saved:1880/ws/rfid", LogoutSeconds: 45}

	tests := []struct {
		name    string
		pinned  bool
		wantURL string
	}{
		{"saved address replaces config", false, "ws://saved:1880/ws/rfid"},
		{"command line address wins", true, "ws://flag:1880/ws/rfid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Gateway.URL = "ws://flag:1880/ws/rfid"

			applySaved(cfg, saved, tt.pinned)

			assert.Equal(t, tt.wantURL, cfg.Gateway.URL)
			assert.Equal(t, 45*time.Second, cfg.Session.LogoutAfter)
		})
	}
}

func TestApplySavedKeepsConfigWhenNothingSaved(t *testing.T) {
	cfg := config.Default()
	want := *cfg

	applySaved(cfg, settings.Settings{}, false)

	assert.Equal(t, want.Gateway.URL, cfg.Gateway.URL)
	assert.Equal(t, want.Session.LogoutAfter, cfg.Session.LogoutAfter)
}
