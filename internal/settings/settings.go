// Package settings persists the operator's runtime settings: the gateway
// address, the inactivity timeout and the simulator toggle. They live in
// ~/.local/state/infopoint-kiosk/settings.json (respecting
// XDG_STATE_HOME) and override the config file at startup.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/clock"
)

const (
	// settingsVersion is bumped when the schema changes.
	settingsVersion = 1

	settingsFileName = "settings.json"
	appDirName       = "infopoint-kiosk"
)

type Settings struct {
	Version int `json:"version"`

	GatewayURL    string `json:"gatewayUrl,omitempty"`
	LogoutSeconds int    `json:"logoutSeconds,omitempty"`
	ShowSimulator *bool  `json:"showSimulator,omitempty"`

	LastUpdated time.Time `json:"lastUpdated"`
}

// LogoutAfter returns the persisted inactivity timeout, or zero when
// unset.
func (s Settings) LogoutAfter() time.Duration {
	return time.Duration(s.LogoutSeconds) * time.Second
}

func (s Settings) clone() Settings {
	if s.ShowSimulator != nil {
		v := *s.ShowSimulator
		s.ShowSimulator = &v
	}
	return s
}

// Store loads and saves Settings. It is safe for concurrent use.
type Store struct {
	dir   string
	clock clock.Clock

	mu      sync.Mutex
	current Settings
}

// NewStore creates a Store in dir. Pass an empty string to use the
// default XDG state path. Nothing is read until Load.
func NewStore(dir string) *Store {
	if dir == "" {
		dir = defaultStateDir()
	}
	return &Store{dir: dir, clock: clock.Real(), current: Settings{Version: settingsVersion}}
}

// Path returns the full path to the settings file.
func (s *Store) Path() string {
	return filepath.Join(s.dir, settingsFileName)
}

// Load reads settings from disk. A missing file yields empty settings.
func (s *Store) Load() (Settings, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return s.Current(), nil
		}
		return Settings{}, fmt.Errorf("reading settings: %w", err)
	}

	var st Settings
	if err := json.Unmarshal(data, &st); err != nil {
		return Settings{}, fmt.Errorf("parsing settings: %w", err)
	}
	if st.LogoutSeconds < 0 {
		st.LogoutSeconds = 0
	}

	s.mu.Lock()
	s.current = st
	s.mu.Unlock()
	return st.clone(), nil
}

// Current returns the settings as last loaded or saved.
func (s *Store) Current() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.clone()
}

// Update applies fn to a copy of the current settings and saves the
// result. Nothing changes if saving fails.
func (s *Store) Update(fn func(*Settings)) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.clone()
	fn(&next)
	if next.LogoutSeconds < 0 {
		return Settings{}, fmt.Errorf("logoutSeconds must not be negative, got %d", next.LogoutSeconds)
	}
	next.Version = settingsVersion
	next.LastUpdated = s.clock.Now().UTC()

	if err := s.save(next); err != nil {
		return Settings{}, err
	}
	s.current = next
	return next.clone(), nil
}

// SaveEndpoint persists the gateway address.
func (s *Store) SaveEndpoint(url string) error {
	_, err := s.Update(func(st *Settings) { st.GatewayURL = url })
	return err
}

// save writes st using an atomic temp-file-then-rename pattern. The
// directory is created if it does not already exist.
func (s *Store) save(st Settings) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("creating settings dir: %w", err)
	}

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling settings: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.Path()); err != nil {
		return fmt.Errorf("renaming settings file: %w", err)
	}
	committed = true

	return nil
}

func defaultStateDir() string {
	if base := os.Getenv("XDG_STATE_HOME"); base != "" {
		return filepath.Join(base, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".local", "state", appDirName)
}
