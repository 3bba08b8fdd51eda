package server

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nedpals/davi-nfc-cards/cardid"
	"github.com/nedpals/davi-nfc-cards/cardstore"
	"github.com/nedpals/davi-nfc-cards/editor"
	"github.com/nedpals/davi-nfc-cards/nfc"
	"github.com/nedpals/davi-nfc-cards/protocol"
)

type testEnv struct {
	server *Server
	http   *httptest.Server
	store  *cardstore.MemoryStore
	radio  *nfc.MockRadio
}

func newTestEnv(t *testing.T, secret string, cards ...cardstore.Card) *testEnv {
	t.Helper()
	env := &testEnv{
		store: cardstore.NewMemoryStore(cards...),
		radio: nfc.NewMockRadio(),
	}

	s, err := New(Config{
		APISecret: secret,
		Store:     env.store,
		Editor: editor.Options{
			Converter: cardid.SerialConverter{},
			Generator: cardid.NewGenerator(rand.NewPCG(1, 2)),
			Radio:     env.radio,
		},
	})
	require.NoError(t, err)
	env.server = s

	ctx, cancel := context.WithCancel(context.Background())
	s.handlerRegistry.StartLifecycleHandlers(ctx)
	env.http = httptest.NewServer(s.Handler())

	t.Cleanup(func() {
		cancel()
		s.clients.CloseAll()
		env.http.Close()
	})
	return env
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	want := e.server.clients.Count() + 1
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL(""), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return e.server.clients.Count() == want }, time.Second, 5*time.Millisecond)
	return conn
}

func (e *testEnv) wsURL(secret string) string {
	u := "ws" + strings.TrimPrefix(e.http.URL, "http") + RouteWebSocket
	if secret != "" {
		u += "?secret=" + secret
	}
	return u
}

// frame is any message read from the server.
type frame struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Success *bool           `json:"success"`
	Error   string          `json:"error"`
	Payload json.RawMessage `json:"payload"`
}

func (f frame) state(t *testing.T) protocol.EditorState {
	t.Helper()
	var st protocol.EditorState
	require.NoError(t, json.Unmarshal(f.Payload, &st))
	return st
}

func (f frame) code(t *testing.T) string {
	t.Helper()
	var p protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(f.Payload, &p))
	return p.Code
}

func send(t *testing.T, conn *websocket.Conn, id, msgType string, payload map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(protocol.WebSocketRequest{ID: id, Type: msgType, Payload: payload}))
}

// readUntil reads frames until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var f frame
		require.NoError(t, conn.ReadJSON(&f), "no matching frame before deadline")
		if match(f) {
			return f
		}
	}
}

func responseTo(id string) func(frame) bool {
	return func(f frame) bool { return f.ID == id && f.Success != nil }
}

func ofType(msgType string) func(frame) bool {
	return func(f frame) bool { return f.Type == msgType && f.ID == "" }
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t, "")

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, RouteHealth, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, CORSAllowOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	var body protocol.HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 0, body.Clients)

	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, RouteHealth, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_ListCards(t *testing.T) {
	env := newTestEnv(t, "",
		cardstore.Card{Identifier: "02FE000000000001", Name: "Front door"},
		cardstore.Card{Identifier: "02FE000000000002", Name: "Garage"},
	)

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, RouteCards, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body protocol.CardsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, []protocol.Card{
		{Index: 0, Identifier: "02FE000000000001", Name: "Front door"},
		{Index: 1, Identifier: "02FE000000000002", Name: "Garage"},
	}, body.Cards)
}

func TestServer_APISecret(t *testing.T) {
	env := newTestEnv(t, "s3cret")

	_, resp, err := websocket.DefaultDialer.Dial(env.wsURL(""), nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(env.wsURL("s3cret"), nil)
	require.NoError(t, err)
	conn.Close()
}

func TestServer_OpenEditorCreate(t *testing.T) {
	env := newTestEnv(t, "")
	conn := env.dial(t)

	send(t, conn, "1", protocol.WSTypeOpenEditor, nil)
	resp := readUntil(t, conn, responseTo("1"))
	require.True(t, *resp.Success)
	st := resp.state(t)
	assert.Equal(t, "create", st.Mode)
	assert.Nil(t, st.Index)
	assert.Equal(t, editor.DefaultName, st.Name)
	assert.True(t, cardid.Valid(st.Identifier))
	assert.False(t, st.ScanOpen)

	// The derived UID arrives as a state push.
	push := readUntil(t, conn, func(f frame) bool {
		return f.Type == protocol.WSTypeEditorState && f.state(t).ConversionStatus == "resolved"
	})
	st = push.state(t)
	assert.Len(t, st.UID, 16)
	assert.Len(t, st.DisplayUID, 25)
	assert.True(t, st.CanRegenerate)
}

func TestServer_OpenEditorEdit(t *testing.T) {
	env := newTestEnv(t, "",
		cardstore.Card{Identifier: "02FE000000000001", Name: "Front door"},
		cardstore.Card{Identifier: "02FE000000000002", Name: "Garage"},
	)
	conn := env.dial(t)

	send(t, conn, "1", protocol.WSTypeOpenEditor, map[string]any{"index": 1})
	resp := readUntil(t, conn, responseTo("1"))
	require.True(t, *resp.Success)
	st := resp.state(t)
	assert.Equal(t, "edit", st.Mode)
	require.NotNil(t, st.Index)
	assert.Equal(t, 1, *st.Index)
	assert.Equal(t, "Garage", st.Name)
	assert.Equal(t, "02FE000000000002", st.Identifier)

	send(t, conn, "2", protocol.WSTypeOpenEditor, map[string]any{"index": 5})
	resp = readUntil(t, conn, responseTo("2"))
	assert.False(t, *resp.Success)
	assert.Equal(t, protocol.ErrCodeNotFound, resp.code(t))
}

func TestServer_SaveNavigatesBackAndInvalidates(t *testing.T) {
	env := newTestEnv(t, "")
	editorConn := env.dial(t)
	listConn := env.dial(t)

	send(t, editorConn, "1", protocol.WSTypeOpenEditor, nil)
	readUntil(t, editorConn, responseTo("1"))
	send(t, editorConn, "2", protocol.WSTypeSetName, map[string]any{"name": "Front door"})
	resp := readUntil(t, editorConn, responseTo("2"))
	assert.Equal(t, "Front door", resp.state(t).Name)

	send(t, editorConn, "3", protocol.WSTypeSave, nil)
	back := readUntil(t, editorConn, ofType(protocol.WSTypeNavigateBack))
	var nav protocol.NavigateBackPayload
	require.NoError(t, json.Unmarshal(back.Payload, &nav))
	assert.NotEmpty(t, nav.ScreenID)
	resp = readUntil(t, editorConn, responseTo("3"))
	assert.True(t, *resp.Success)

	readUntil(t, listConn, ofType(protocol.WSTypeCardsInvalidated))

	cards, err := env.store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, "Front door", cards[0].Name)
	assert.True(t, cardid.Valid(cards[0].Identifier))

	// The screen is gone after a successful save.
	send(t, editorConn, "4", protocol.WSTypeSetName, map[string]any{"name": "again"})
	resp = readUntil(t, editorConn, responseTo("4"))
	assert.False(t, *resp.Success)
	assert.Equal(t, protocol.ErrCodeNoEditor, resp.code(t))
}

func TestServer_RequestErrors(t *testing.T) {
	env := newTestEnv(t, "")
	conn := env.dial(t)

	send(t, conn, "1", protocol.WSTypeSetIdentifier, map[string]any{"identifier": "02FE000000000001"})
	resp := readUntil(t, conn, responseTo("1"))
	assert.False(t, *resp.Success)
	assert.Equal(t, protocol.ErrCodeNoEditor, resp.code(t))

	send(t, conn, "2", "bogus", nil)
	resp = readUntil(t, conn, responseTo("2"))
	assert.Equal(t, protocol.WSTypeError, resp.Type)
	assert.Equal(t, protocol.ErrCodeUnknownType, resp.code(t))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	resp = readUntil(t, conn, func(f frame) bool { return f.Type == protocol.WSTypeError })
	assert.Equal(t, protocol.ErrCodeParse, resp.code(t))
}

func TestServer_ScanNotifies(t *testing.T) {
	env := newTestEnv(t, "")
	conn := env.dial(t)

	send(t, conn, "1", protocol.WSTypeOpenEditor, nil)
	readUntil(t, conn, responseTo("1"))
	send(t, conn, "2", protocol.WSTypeOpenScan, nil)
	resp := readUntil(t, conn, responseTo("2"))
	assert.True(t, resp.state(t).ScanOpen)

	require.Eventually(t, env.radio.Waiting, time.Second, 5*time.Millisecond)
	env.radio.Present(nfc.TagInfo{ID: []byte{0x04, 0xA1, 0xB2, 0xC3}})

	note := readUntil(t, conn, ofType(protocol.WSTypeNotification))
	var payload protocol.NotificationPayload
	require.NoError(t, json.Unmarshal(note.Payload, &payload))
	assert.Equal(t, "Card scanned: 04A1B2C3", payload.Message)

	send(t, conn, "3", protocol.WSTypeCloseScan, nil)
	st := readUntil(t, conn, responseTo("3")).state(t)
	assert.Equal(t, "04A1B2C3", st.Identifier)
	assert.False(t, st.ScanOpen)
	assert.False(t, env.radio.Held())
}

func TestServer_DisconnectReleasesRadio(t *testing.T) {
	env := newTestEnv(t, "")
	conn := env.dial(t)

	send(t, conn, "1", protocol.WSTypeOpenEditor, nil)
	readUntil(t, conn, responseTo("1"))
	send(t, conn, "2", protocol.WSTypeOpenScan, nil)
	readUntil(t, conn, responseTo("2"))
	require.Eventually(t, env.radio.Waiting, time.Second, 5*time.Millisecond)

	conn.Close()

	require.Eventually(t, func() bool {
		return env.server.clients.Count() == 0 && !env.radio.Held()
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, env.radio.Calls("CancelTechnologyRequest"))
	assert.Equal(t, 1, env.radio.Calls("Release"))
}

func TestServer_StopWaitsForScreens(t *testing.T) {
	env := newTestEnv(t, "")
	conn := env.dial(t)

	send(t, conn, "1", protocol.WSTypeOpenEditor, nil)
	readUntil(t, conn, responseTo("1"))
	send(t, conn, "2", protocol.WSTypeOpenScan, nil)
	readUntil(t, conn, responseTo("2"))
	require.Eventually(t, env.radio.Waiting, time.Second, 5*time.Millisecond)

	env.server.Stop()

	assert.False(t, env.radio.Held())
	assert.Equal(t, 1, env.radio.Calls("Release"))
	assert.Equal(t, 0, env.server.clients.Count())
}
