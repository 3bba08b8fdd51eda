package protocol

// Request message types sent by clients.
const (
	WSTypeOpenEditor    = "openEditor"
	WSTypeSetName       = "setName"
	WSTypeSetIdentifier = "setIdentifier"
	WSTypeRegenerate    = "regenerate"
	WSTypeOpenScan      = "openScan"
	WSTypeCloseScan     = "closeScan"
	WSTypeSave          = "save"
	WSTypeCloseEditor   = "closeEditor"
)

// Message types pushed by the server.
const (
	WSTypeEditorState      = "editorState"
	WSTypeNotification     = "notification"
	WSTypeNavigateBack     = "navigateBack"
	WSTypeCardsInvalidated = "cardsInvalidated"
	WSTypeError            = "error"
)

// WebSocketMessage is the generic message envelope for WebSocket communication.
type WebSocketMessage struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// WebSocketRequest is for incoming requests from WebSocket clients.
type WebSocketRequest struct {
	ID      string         `json:"id,omitempty"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload,omitempty"`
}

// WebSocketResponse is for responses to WebSocket requests. Type echoes the
// request type.
type WebSocketResponse struct {
	ID      string `json:"id,omitempty"`
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OpenEditorPayload opens a screen. A nil Index creates a new card; otherwise
// the card at Index is edited.
type OpenEditorPayload struct {
	Index *int `json:"index,omitempty"`
}

// SetNamePayload is the payload of setName.
type SetNamePayload struct {
	Name string `json:"name"`
}

// SetIdentifierPayload is the payload of setIdentifier.
type SetIdentifierPayload struct {
	Identifier string `json:"identifier"`
}

// EditorState is pushed whenever the screen changes and returned by every
// editor request.
type EditorState struct {
	ScreenID         string `json:"screenId"`
	Mode             string `json:"mode"`            // "create" or "edit"
	Index            *int   `json:"index,omitempty"` // edit mode only
	Name             string `json:"name"`
	Identifier       string `json:"identifier"`
	ConversionStatus string `json:"conversionStatus"` // "pending", "resolved" or "failed"
	UID              string `json:"uid,omitempty"`    // derived UID, ungrouped
	DisplayUID       string `json:"displayUid"`
	CanRegenerate    bool   `json:"canRegenerate"`
	ScanOpen         bool   `json:"scanOpen"`
	ScanPhase        string `json:"scanPhase"`
}

// NotificationPayload is a transient message for the user.
type NotificationPayload struct {
	ScreenID string `json:"screenId"`
	Message  string `json:"message"`
}

// NavigateBackPayload tells the client to leave the screen.
type NavigateBackPayload struct {
	ScreenID string `json:"screenId"`
}
