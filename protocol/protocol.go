// Package protocol provides the card editor wire types shared by the server
// and its clients. It is importable without pulling in server dependencies.
package protocol

// Error codes carried in the "code" field of error payloads.
const (
	ErrCodeParse          = "PARSE_ERROR"
	ErrCodeUnknownType    = "UNKNOWN_TYPE"
	ErrCodeInvalidPayload = "INVALID_PAYLOAD"
	ErrCodeNoEditor       = "NO_EDITOR"
	ErrCodeNotFound       = "NOT_FOUND"
	ErrCodeSaveFailed     = "SAVE_FAILED"
	ErrCodeInternalError  = "INTERNAL_ERROR"
)

// ErrorPayload is the payload of a failed response.
type ErrorPayload struct {
	Code string `json:"code"`
}

// Card is a stored card as listed by GET /api/v1/cards.
type Card struct {
	Index      int    `json:"index"`
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
}

// CardsResponse is the body of GET /api/v1/cards.
type CardsResponse struct {
	Cards []Card `json:"cards"`
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"` // RFC3339 format
	Clients   int    `json:"clients"`
}
