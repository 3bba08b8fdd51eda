package server

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/nedpals/davi-nfc-cards/cardstore"
	"github.com/nedpals/davi-nfc-cards/editor"
	"github.com/nedpals/davi-nfc-cards/protocol"
)

// EditorHandler hosts card edit screens over the websocket.
type EditorHandler struct {
	store   cardstore.Store
	options editor.Options
	logger  *logrus.Entry
}

// NewEditorHandler creates an EditorHandler. options is the template for
// every screen; Store, Existing, Navigator and Notifier are set per screen.
func NewEditorHandler(store cardstore.Store, options editor.Options, logger *logrus.Entry) *EditorHandler {
	return &EditorHandler{
		store:   store,
		options: options,
		logger:  logger,
	}
}

// Register implements ServerHandler.
func (h *EditorHandler) Register(server HandlerServer) error {
	routes := map[string]HandlerFunc{
		protocol.WSTypeOpenEditor:    h.handleOpenEditor,
		protocol.WSTypeSetName:       h.withScreen(h.handleSetName),
		protocol.WSTypeSetIdentifier: h.withScreen(h.handleSetIdentifier),
		protocol.WSTypeRegenerate:    h.withScreen(h.handleRegenerate),
		protocol.WSTypeOpenScan:      h.withScreen(h.handleOpenScan),
		protocol.WSTypeCloseScan:     h.withScreen(h.handleCloseScan),
		protocol.WSTypeSave:          h.withScreen(h.handleSave),
		protocol.WSTypeCloseEditor:   h.handleCloseEditor,
	}

	var result *multierror.Error
	for messageType, handler := range routes {
		if err := server.Handle(messageType, handler); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

type screenHandlerFunc func(ctx context.Context, client *Client, req protocol.WebSocketRequest, screen *Screen) error

func (h *EditorHandler) withScreen(fn screenHandlerFunc) HandlerFunc {
	return func(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
		screen := client.Screen()
		if screen == nil {
			return client.RespondError(req.ID, req.Type, protocol.ErrCodeNoEditor, "No editor is open")
		}
		return fn(ctx, client, req, screen)
	}
}

// decodePayload converts a generic request payload into v.
func decodePayload(payload map[string]any, v any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (h *EditorHandler) handleOpenEditor(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	var payload protocol.OpenEditorPayload
	if err := decodePayload(req.Payload, &payload); err != nil {
		client.RespondError(req.ID, req.Type, protocol.ErrCodeInvalidPayload, "Invalid openEditor payload")
		return fmt.Errorf("decode openEditor payload: %w", err)
	}

	opts := h.options
	opts.Store = h.store
	if payload.Index != nil {
		cards, err := h.store.List(ctx)
		if err != nil {
			client.RespondError(req.ID, req.Type, protocol.ErrCodeInternalError, "Failed to list cards")
			return fmt.Errorf("list cards: %w", err)
		}
		index := *payload.Index
		if index < 0 || index >= len(cards) {
			return client.RespondError(req.ID, req.Type, protocol.ErrCodeNotFound, fmt.Sprintf("No card at index %d", index))
		}
		opts.Existing = &editor.Existing{Index: index, Card: cards[index]}
	}

	screen := openScreen(client, opts)
	if prev := client.swapScreen(screen); prev != nil {
		prev.Close()
	}
	client.logger.WithFields(logrus.Fields{
		"screen": screen.ID[:8],
		"mode":   screen.Controller.Mode(),
	}).Info("editor opened")
	return client.Respond(req, screen.State())
}

func (h *EditorHandler) handleSetName(ctx context.Context, client *Client, req protocol.WebSocketRequest, screen *Screen) error {
	var payload protocol.SetNamePayload
	if err := decodePayload(req.Payload, &payload); err != nil {
		client.RespondError(req.ID, req.Type, protocol.ErrCodeInvalidPayload, "Invalid setName payload")
		return fmt.Errorf("decode setName payload: %w", err)
	}
	screen.Controller.SetName(payload.Name)
	return client.Respond(req, screen.State())
}

func (h *EditorHandler) handleSetIdentifier(ctx context.Context, client *Client, req protocol.WebSocketRequest, screen *Screen) error {
	var payload protocol.SetIdentifierPayload
	if err := decodePayload(req.Payload, &payload); err != nil {
		client.RespondError(req.ID, req.Type, protocol.ErrCodeInvalidPayload, "Invalid setIdentifier payload")
		return fmt.Errorf("decode setIdentifier payload: %w", err)
	}
	screen.Controller.SetIdentifier(payload.Identifier)
	return client.Respond(req, screen.State())
}

func (h *EditorHandler) handleRegenerate(ctx context.Context, client *Client, req protocol.WebSocketRequest, screen *Screen) error {
	screen.Controller.RegenerateIdentifier()
	return client.Respond(req, screen.State())
}

func (h *EditorHandler) handleOpenScan(ctx context.Context, client *Client, req protocol.WebSocketRequest, screen *Screen) error {
	if !screen.Controller.OpenScan(ctx) {
		client.logger.Debug("scan already open")
	}
	return client.Respond(req, screen.State())
}

func (h *EditorHandler) handleCloseScan(ctx context.Context, client *Client, req protocol.WebSocketRequest, screen *Screen) error {
	screen.Controller.CloseScan()
	return client.Respond(req, screen.State())
}

func (h *EditorHandler) handleSave(ctx context.Context, client *Client, req protocol.WebSocketRequest, screen *Screen) error {
	if err := screen.Controller.Save(ctx); err != nil {
		client.RespondError(req.ID, req.Type, protocol.ErrCodeSaveFailed, err.Error())
		return err
	}
	state := screen.State()
	client.releaseScreen(screen)
	return client.Respond(req, state)
}

func (h *EditorHandler) handleCloseEditor(ctx context.Context, client *Client, req protocol.WebSocketRequest) error {
	client.closeScreen()
	return client.Respond(req, nil)
}
