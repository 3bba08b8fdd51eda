package main

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/nedpals/davi-nfc-cards/cardid"
	"github.com/nedpals/davi-nfc-cards/cardstore"
	"github.com/nedpals/davi-nfc-cards/config"
	"github.com/nedpals/davi-nfc-cards/editor"
	"github.com/nedpals/davi-nfc-cards/nfc"
	"github.com/nedpals/davi-nfc-cards/scan"
	"github.com/nedpals/davi-nfc-cards/server"
)

// Agent wires the collaborators shared by every card edit screen in the
// process: the radio, the card store, its invalidation broadcast and the
// UID converter.
type Agent struct {
	Logger      *logrus.Entry
	Config      *config.Config
	Radio       scan.Radio
	Store       cardstore.Store
	Broadcaster *cardstore.Broadcaster
	Converter   *cardid.CachedConverter
	Generator   *cardid.Generator
	Server      *server.Server
}

// NewAgent creates an Agent. A nil radio selects the process-wide hardware
// radio.
func NewAgent(cfg *config.Config, radio scan.Radio) *Agent {
	logger := logrus.WithField("component", "agent")
	if radio == nil {
		radio = nfc.DefaultRadio(nfc.RadioOptions{
			DevicePath:   cfg.NFC.Device,
			PollInterval: cfg.NFC.PollInterval,
		})
	}

	var store cardstore.Store
	if cfg.Store.Path == "" {
		logger.Warn("No store path configured, cards are kept in memory")
		store = cardstore.NewMemoryStore()
	} else {
		store = cardstore.NewFileStore(cfg.Store.Path)
	}

	return &Agent{
		Logger:      logger,
		Config:      cfg,
		Radio:       radio,
		Store:       store,
		Broadcaster: cardstore.NewBroadcaster(),
		Converter:   cardid.NewCachedConverter(cardid.SerialConverter{}, cfg.Converter.CacheTTL),
		Generator:   cardid.NewGenerator(nil),
	}
}

// EditorOptions returns the options every screen starts from. Existing,
// Navigator and Notifier are set by the host of the screen.
func (a *Agent) EditorOptions() editor.Options {
	return editor.Options{
		Store:       a.Store,
		Invalidator: a.Broadcaster,
		Converter:   a.Converter,
		Generator:   a.Generator,
		Radio:       a.Radio,
		Codec:       cardid.HexCodec{},
		Technology:  nfc.TechNfcA,
		ScanTimeout: a.Config.Scan.Timeout,
	}
}

// NewScreen opens a create-mode screen.
func (a *Agent) NewScreen(nav editor.Navigator, notifier editor.Notifier) *editor.Controller {
	opts := a.EditorOptions()
	opts.Navigator = nav
	opts.Notifier = notifier
	opts.Logger = a.Logger.WithField("component", "editor")
	return editor.New(opts)
}

// StartServer starts the WebSocket host in the background. errCh receives
// the error if the server stops unexpectedly.
func (a *Agent) StartServer() (<-chan error, error) {
	if a.Server != nil {
		return nil, errors.New("server is already running")
	}

	srv, err := server.New(server.Config{
		Port:        a.Config.Server.Port,
		APISecret:   a.Config.Server.APISecret,
		MDNS:        a.Config.Server.MDNS,
		Store:       a.Store,
		Broadcaster: a.Broadcaster,
		Editor:      a.EditorOptions(),
		Logger:      logrus.WithField("component", "server"),
	})
	if err != nil {
		return nil, err
	}
	a.Server = srv

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			a.Logger.WithError(err).Error("Server stopped")
			errCh <- err
		}
		close(errCh)
	}()
	return errCh, nil
}

// CardCount returns the number of stored cards, or -1 if the store fails.
func (a *Agent) CardCount(ctx context.Context) int {
	cards, err := a.Store.List(ctx)
	if err != nil {
		a.Logger.WithError(err).Warn("Failed to list cards")
		return -1
	}
	return len(cards)
}

// Stop shuts the server down. Server.Stop returns once every client screen
// is closed, so their scan sessions have released the radio. Screens hosted
// elsewhere must be closed by their host before Stop.
func (a *Agent) Stop() {
	a.Logger.Info("Stopping agent...")

	if a.Server != nil {
		a.Server.Stop()
		a.Server = nil
	}
	a.Converter.Stop()

	a.Logger.Info("Agent stopped successfully")
}
