package settings

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreDefaultDir(t *testing.T) {
	t.Setenv("XDG_STATE_HOME", "/var/state")
	s := NewStore("")
	assert.Equal(t, "/var/state/infopoint-kiosk/settings.json", s.Path())
}

func TestLoadMissing(t *testing.T) {
	s := NewStore(t.TempDir())

	st, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, settingsVersion, st.Version)
	assert.Empty(t, st.GatewayURL)
	assert.Zero(t, st.LogoutAfter())
	assert.Nil(t, st.ShowSimulator)
}

func TestSaveEndpointSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(dir)
	s.clock = clock.Fake(time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC))

	require.NoError(t, s.SaveEndpoint("wss://gw.plant.local/ws/rfid"))

	reopened := NewStore(dir)
	st, err := reopened.Load()
	require.NoError(t, err)
	assert.Equal(t, "wss://gw.plant.local/ws/rfid", st.GatewayURL)
	assert.Equal(t, time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC), st.LastUpdated)

	// No temp files are left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, settingsFileName, entries[0].Name())
}

func TestUpdateKeepsOtherFields(t *testing.T) {
	s := NewStore(t.TempDir())
	require.NoError(t, s.SaveEndpoint("ws://a:1880/ws/rfid"))

	show := true
	st, err := s.Update(func(st *Settings) {
		st.LogoutSeconds = 30
		st.ShowSimulator = &show
	})
	require.NoError(t, err)
	assert.Equal(t, "ws://a:1880/ws/rfid", st.GatewayURL)
	assert.Equal(t, 30*time.Second, st.LogoutAfter())
	require.NotNil(t, st.ShowSimulator)
	assert.True(t, *st.ShowSimulator)

	var onDisk map[string]any
	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, "ws://a:1880/ws/rfid", onDisk["gatewayUrl"])
	assert.EqualValues(t, 30, onDisk["logoutSeconds"])
	assert.Equal(t, true, onDisk["showSimulator"])
}

func TestUpdateRejectsNegativeLogout(t *testing.T) {
	s := NewStore(t.TempDir())
	_, err := s.Update(func(st *Settings) { st.LogoutSeconds = -1 })
	assert.Error(t, err)
	assert.Zero(t, s.Current().LogoutSeconds)
}

func TestUpdateFailureLeavesCurrentUntouched(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))

	// The state dir cannot be created beneath a regular file.
	s := NewStore(filepath.Join(blocker, "state"))
	assert.Error(t, s.SaveEndpoint("ws://b/ws"))
	assert.Empty(t, s.Current().GatewayURL)
}

func TestLoadRejectsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, settingsFileName), []byte("{nope"), 0o600))

	_, err := NewStore(dir).Load()
	assert.Error(t, err)
}

func TestCurrentReturnsCopy(t *testing.T) {
	s := NewStore(t.TempDir())
	show := false
	_, err := s.Update(func(st *Settings) { st.ShowSimulator = &show })
	require.NoError(t, err)

	c := s.Current()
	*c.ShowSimulator = true
	assert.False(t, *s.Current().ShowSimulator)
}
