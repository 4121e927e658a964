package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/KBrobotics/InfoPointKiosk-v1/internal/briefing"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/config"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/directory"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/directory/localdb"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/directory/restapi"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/frontend"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/gateway"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/mock"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/session"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/settings"
	"github.com/KBrobotics/InfoPointKiosk-v1/internal/ws"
	"github.com/rs/zerolog"
)

const maxDisplays = 8

// serve runs the kiosk until ctx is done. gatewayPinned is set when the
// gateway address came from the command line.
func serve(ctx context.Context, cfg *config.Config, log zerolog.Logger, gatewayPinned bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	store := settings.NewStore(cfg.StateDir)
	saved, err := store.Load()
	if err != nil {
		log.Warn().Err(err).Str("path", store.Path()).Msg("ignoring unreadable settings")
	}
	applySaved(cfg, saved, gatewayPinned)

	provider, closeProvider, err := openProvider(cfg, log)
	if err != nil {
		return err
	}
	defer closeProvider()

	link := gateway.NewLink(gateway.Options{
		URL:               cfg.Gateway.URL,
		ReconnectInterval: cfg.Gateway.ReconnectInterval,
		PingInterval:      cfg.Gateway.PingInterval,
		PongTimeout:       cfg.Gateway.PongTimeout,
		WriteTimeout:      cfg.Gateway.WriteTimeout,
		SecureOrigin:      cfg.Gateway.SecureOrigin,
		Store:             store,
		Logger:            log,
	})
	defer link.Close()

	controller := session.NewController(session.Options{
		Provider:          provider,
		Publisher:         link,
		Summarizer:        openSummarizer(cfg, log),
		LogoutAfter:       cfg.Session.LogoutAfter,
		ActionHold:        cfg.Session.ActionHold,
		AuthErrorHold:     cfg.Session.AuthErrorHold,
		ProviderErrorHold: cfg.Session.ProviderErrorHold,
		ProviderTimeout:   cfg.Session.ProviderTimeout,
		BriefingTimeout:   cfg.Session.BriefingTimeout,
		Logger:            log,
	})

	broadcaster := ws.NewBroadcaster(maxDisplays, log)
	defer broadcaster.Stop()
	controller.Watch(broadcaster.PublishView)

	link.SubscribeEvents(controller.OnEvent)
	link.SubscribeStatus(controller.OnTransportStatus)

	server := ws.NewServer(ws.Options{
		Kiosk:            controller,
		Gateway:          link,
		Settings:         store,
		Broadcaster:      broadcaster,
		Frontend:         frontend.Handler(),
		AuthToken:        cfg.Server.AuthToken,
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		SimulatorEnabled: cfg.Simulator.Enabled || mockMode,
		LogoutAfter:      cfg.Session.LogoutAfter,
		Logger:           log,
	})

	runErr := make(chan error, 1)
	go func() { runErr <- controller.Run(ctx) }()

	if mockMode {
		log.Info().Msg("Starting in mock mode")
		gen := mock.NewGenerator(controller, mock.DefaultScript(mockTags(ctx, provider)), nil, log)
		gen.Start(ctx)
	} else {
		link.Connect()
	}

	err = ws.ListenAndServe(ctx, cfg.Server.Host, cfg.Server.Port, server.Handler(), log)
	cancel()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("shut down")
	return nil
}

// applySaved layers settings saved through the admin API over the config
// file. A gateway address given on the command line wins over the saved one.
func applySaved(cfg *config.Config, saved settings.Settings, gatewayPinned bool) {
	if saved.GatewayURL != "" && !gatewayPinned {
		cfg.Gateway.URL = saved.GatewayURL
	}
	if d := saved.LogoutAfter(); d > 0 {
		cfg.Session.LogoutAfter = d
	}
}

// openProvider returns the configured directory and a func releasing it.
func openProvider(cfg *config.Config, log zerolog.Logger) (directory.Provider, func(), error) {
	switch cfg.Directory.Driver {
	case config.DriverREST:
		log.Info().Str("url", cfg.Directory.APIBaseURL).Msg("using REST directory")
		client := restapi.New(restapi.Options{
			BaseURL: cfg.Directory.APIBaseURL,
			Token:   cfg.Directory.APIToken,
			Timeout: cfg.Directory.APITimeout,
		})
		return client, func() {}, nil
	}

	db, err := openLocal(cfg, log)
	if err != nil {
		return nil, nil, err
	}
	empty, err := db.Empty()
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	if empty {
		seed, err := loadSeed(cfg.Directory.SeedFile)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		if err := db.Import(seed); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("importing seed: %w", err)
		}
		log.Info().Int("employees", len(seed.Employees)).Int("notifications", len(seed.Notifications)).Msg("seeded local directory")
	}
	return db, func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("closing local directory")
		}
	}, nil
}

func openLocal(cfg *config.Config, log zerolog.Logger) (*localdb.Store, error) {
	if cfg.Directory.DataDir == "" {
		log.Info().Msg("using in-memory local directory")
	} else {
		log.Info().Str("dir", cfg.Directory.DataDir).Msg("using local directory")
	}
	db, err := localdb.Open(localdb.Options{Dir: cfg.Directory.DataDir, Logger: log})
	if err != nil {
		return nil, fmt.Errorf("opening local directory: %w", err)
	}
	return db, nil
}

func loadSeed(path string) (directory.Seed, error) {
	if path == "" {
		return directory.DefaultSeed(), nil
	}
	return directory.LoadSeed(path)
}

// openSummarizer returns nil when briefings are not configured, so the
// controller uses the fallback text.
func openSummarizer(cfg *config.Config, log zerolog.Logger) session.Summarizer {
	if !cfg.BriefingEnabled() {
		return nil
	}
	key := os.Getenv(cfg.Briefing.APIKeyEnv)
	if key == "" {
		log.Warn().Str("env", cfg.Briefing.APIKeyEnv).Msg("briefing API key not set, using fallback briefings")
		return nil
	}
	s, err := briefing.NewAzureSummarizer(briefing.Options{
		Endpoint:   cfg.Briefing.Endpoint,
		APIKey:     key,
		Deployment: cfg.Briefing.Deployment,
		MaxTokens:  cfg.Briefing.MaxTokens,
		Logger:     log,
	})
	if err != nil {
		log.Warn().Err(err).Msg("briefing disabled")
		return nil
	}
	log.Info().Str("deployment", cfg.Briefing.Deployment).Msg("AI briefings enabled")
	return s
}

// mockTags picks the cards the mock script scans. Only the local
// directory can list them; otherwise the built-in demo tags are used.
func mockTags(ctx context.Context, provider directory.Provider) []string {
	type lister interface {
		Employees(ctx context.Context) ([]directory.Employee, error)
	}
	if l, ok := provider.(lister); ok {
		if es, err := l.Employees(ctx); err == nil && len(es) > 0 {
			tags := make([]string, 0, len(es))
			for _, e := range es {
				tags = append(tags, e.RFIDTag)
			}
			return tags
		}
	}
	var tags []string
	for _, e := range directory.DefaultSeed().Employees {
		tags = append(tags, e.RFIDTag)
	}
	return tags
}
