// Package server hosts card edit screens for remote clients over HTTP and
// WebSocket, and advertises itself over mDNS.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"
	"github.com/sirupsen/logrus"

	"github.com/nedpals/davi-nfc-cards/buildinfo"
	"github.com/nedpals/davi-nfc-cards/cardstore"
	"github.com/nedpals/davi-nfc-cards/editor"
	"github.com/nedpals/davi-nfc-cards/protocol"
)

// Config holds the server configuration
type Config struct {
	Port      int
	APISecret string // Optional API secret for WebSocket connection
	MDNS      bool   // Advertise the service on the local network

	Store       cardstore.Store
	Broadcaster *cardstore.Broadcaster

	// Editor is the template for every screen opened by a client.
	Editor editor.Options

	Logger *logrus.Entry
}

// Server manages the HTTP and WebSocket server
type Server struct {
	config     Config
	logger     *logrus.Entry
	httpServer *http.Server
	upgrader   websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	clients         *WebsocketClientManager
	handlerRegistry *HandlerRegistry

	mu         sync.Mutex
	mdnsServer *zeroconf.Server
	stopping   bool
	conns      sync.WaitGroup // one per connection read loop
}

// New creates a new server instance
func New(config Config) (*Server, error) {
	if config.Store == nil {
		return nil, errors.New("server: store is required")
	}
	if config.Broadcaster == nil {
		config.Broadcaster = cardstore.NewBroadcaster()
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	logger := config.Logger
	if logger == nil {
		logger = logrus.WithField("component", "server")
	}

	editorOpts := config.Editor
	editorOpts.Invalidator = config.Broadcaster

	s := &Server{
		config: config,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
		clients:         NewClientManager(logger),
		handlerRegistry: NewHandlerRegistry(),
	}

	handlers := []ServerHandler{
		NewEditorHandler(config.Store, editorOpts, logger),
		&invalidationHandler{broadcaster: config.Broadcaster},
	}
	for _, h := range handlers {
		if err := h.Register(s); err != nil {
			return nil, fmt.Errorf("register handler: %w", err)
		}
	}
	return s, nil
}

// Handle implements HandlerServer interface.
func (s *Server) Handle(messageType string, handler HandlerFunc) error {
	return s.handlerRegistry.Handle(messageType, handler)
}

// StartLifecycle implements HandlerServer interface.
func (s *Server) StartLifecycle(start func(ctx context.Context)) {
	s.handlerRegistry.RegisterLifecycle(start)
}

// Broadcast implements HandlerServer interface.
func (s *Server) Broadcast(message protocol.WebSocketMessage) {
	s.clients.Broadcast(message)
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc(RouteHealth, enableCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleHealthCheck(w, r)
	}))

	mux.HandleFunc(RouteCards, enableCORS(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		s.handleListCards(w, r)
	}))

	mux.HandleFunc(RouteWebSocket, enableCORS(s.handleWebSocket))

	mux.HandleFunc("/", enableCORS(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(buildinfo.DisplayName + " Server Running"))
	}))

	return mux
}

// enableCORS is a middleware that adds CORS headers to responses
func enableCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", CORSAllowOrigin)
		w.Header().Set("Access-Control-Allow-Methods", CORSAllowMethods)
		w.Header().Set("Access-Control-Allow-Headers", CORSAllowHeaders)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// Start starts the HTTP server and blocks until Stop is called or the server
// fails.
func (s *Server) Start() error {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Starting server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if s.config.MDNS {
		if err := s.startMDNS(); err != nil {
			s.logger.WithError(err).Warn("Failed to start mDNS service, auto-discovery will not be available")
		}
	}

	s.handlerRegistry.StartLifecycleHandlers(s.ctx)

	select {
	case <-s.ctx.Done():
		s.logger.Info("Server context cancelled, initiating shutdown...")
		return nil
	case err := <-errCh:
		s.cancel()
		return fmt.Errorf("http server: %w", err)
	}
}

// Stop stops the HTTP server gracefully, closes every client connection and
// waits until their screens are closed.
func (s *Server) Stop() {
	s.mu.Lock()
	s.stopping = true
	if s.mdnsServer != nil {
		s.mdnsServer.Shutdown()
		s.mdnsServer = nil
		s.logger.Info("mDNS service stopped")
	}
	httpServer, cancel := s.httpServer, s.cancel
	s.mu.Unlock()

	if httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			s.logger.WithError(err).Warn("Server shutdown error")
		}
	}
	s.clients.CloseAll()
	s.conns.Wait()
	if cancel != nil {
		cancel()
	}
}

// startMDNS registers the server as an mDNS service for auto-discovery
func (s *Server) startMDNS() error {
	txtRecords := []string{
		"version=" + buildinfo.Version,
		"protocol=websocket",
		"path=" + RouteWebSocket,
	}

	server, err := zeroconf.Register(MDNSServiceName, MDNSServiceType, MDNSDomain, s.config.Port, txtRecords, nil)
	if err != nil {
		return fmt.Errorf("failed to register mDNS service: %w", err)
	}

	s.mu.Lock()
	s.mdnsServer = server
	s.mu.Unlock()
	s.logger.Infof("mDNS service registered: %s on port %d", MDNSServiceName, s.config.Port)
	return nil
}

// handleWebSocket upgrades the connection and serves editor requests until
// the client disconnects. The client's screen is closed on disconnect.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.config.APISecret != "" && r.URL.Query().Get("secret") != s.config.APISecret {
		s.logger.Warn("WebSocket connection rejected: invalid API secret")
		http.Error(w, "Unauthorized: Invalid API secret", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("WebSocket upgrade error")
		return
	}

	client := newClient(conn, s.logger)
	s.mu.Lock()
	if s.stopping {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conns.Add(1)
	s.clients.Register(client)
	s.mu.Unlock()
	defer s.conns.Done()

	ctx, cancel := context.WithCancel(r.Context())
	client.logger.Infof("WebSocket connected from %s", r.RemoteAddr)

	defer func() {
		cancel()
		client.closeScreen()
		s.clients.Unregister(client)
		conn.Close()
		client.logger.Info("WebSocket disconnected")
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var req protocol.WebSocketRequest
		if err := json.Unmarshal(message, &req); err != nil {
			client.logger.WithError(err).Debug("Failed to parse WebSocket message")
			client.RespondError("", "", protocol.ErrCodeParse, "Invalid message format")
			continue
		}

		err = s.handlerRegistry.Dispatch(ctx, client, req)
		switch {
		case errors.Is(err, ErrUnknownType):
			client.logger.WithField("type", req.Type).Debug("Unknown message type")
			client.RespondError(req.ID, "", protocol.ErrCodeUnknownType, fmt.Sprintf("Unknown message type: %s", req.Type))
		case err != nil:
			// Error already sent by handler, just log it
			client.logger.WithError(err).WithField("type", req.Type).Warn("Handler error")
		}
	}
}

// handleHealthCheck provides a health check endpoint (GET /api/v1/health)
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol.HealthResponse{
		Status:    "ok",
		Version:   buildinfo.FullVersion(),
		Timestamp: time.Now().Format(time.RFC3339),
		Clients:   s.clients.Count(),
	})
}

// handleListCards lists the stored cards (GET /api/v1/cards)
func (s *Server) handleListCards(w http.ResponseWriter, r *http.Request) {
	cards, err := s.config.Store.List(r.Context())
	if err != nil {
		s.logger.WithError(err).Error("Failed to list cards")
		http.Error(w, "Failed to list cards", http.StatusInternalServerError)
		return
	}

	resp := protocol.CardsResponse{Cards: make([]protocol.Card, 0, len(cards))}
	for i, card := range cards {
		resp.Cards = append(resp.Cards, protocol.Card{
			Index:      i,
			Identifier: card.Identifier,
			Name:       card.Name,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// invalidationHandler tells every client to refresh its card listing after a
// save.
type invalidationHandler struct {
	broadcaster *cardstore.Broadcaster
}

func (h *invalidationHandler) Register(server HandlerServer) error {
	server.StartLifecycle(func(ctx context.Context) {
		signals, unsubscribe := h.broadcaster.Subscribe()
		go func() {
			defer unsubscribe()
			for {
				select {
				case <-ctx.Done():
					return
				case _, ok := <-signals:
					if !ok {
						return
					}
					server.Broadcast(protocol.WebSocketMessage{Type: protocol.WSTypeCardsInvalidated})
				}
			}
		}()
	})
	return nil
}
