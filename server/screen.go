package server

import (
	"sync"

	"github.com/google/uuid"

	"github.com/nedpals/davi-nfc-cards/editor"
	"github.com/nedpals/davi-nfc-cards/protocol"
)

// Screen is an editor screen hosted for a client.
type Screen struct {
	ID         string
	Controller *editor.Controller

	done chan struct{}
	once sync.Once
}

// openScreen creates a controller from opts and pushes its state to client on
// every change until the screen is closed.
func openScreen(client *Client, opts editor.Options) *Screen {
	s := &Screen{
		ID:   uuid.New().String(),
		done: make(chan struct{}),
	}
	opts.Navigator = editor.NavigatorFunc(func() {
		client.Send(protocol.WebSocketMessage{
			Type:    protocol.WSTypeNavigateBack,
			Payload: protocol.NavigateBackPayload{ScreenID: s.ID},
		})
	})
	opts.Notifier = editor.NotifierFunc(func(message string) {
		client.Send(protocol.WebSocketMessage{
			Type:    protocol.WSTypeNotification,
			Payload: protocol.NotificationPayload{ScreenID: s.ID, Message: message},
		})
	})
	opts.Logger = client.logger.WithField("screen", s.ID[:8])
	s.Controller = editor.New(opts)

	go s.watch(client)
	return s
}

func (s *Screen) watch(client *Client) {
	for {
		select {
		case <-s.done:
			return
		case <-s.Controller.Changes():
			err := client.Send(protocol.WebSocketMessage{
				Type:    protocol.WSTypeEditorState,
				Payload: s.State(),
			})
			if err != nil {
				return
			}
		}
	}
}

// State returns the wire form of the controller state.
func (s *Screen) State() protocol.EditorState {
	st := s.Controller.State()
	state := protocol.EditorState{
		ScreenID:         s.ID,
		Mode:             st.Mode.String(),
		Name:             st.Name,
		Identifier:       st.Identifier,
		ConversionStatus: st.Conversion.Status.String(),
		UID:              st.Conversion.Value,
		DisplayUID:       st.DisplayUID,
		CanRegenerate:    st.CanRegenerate,
		ScanOpen:         st.ScanOpen,
		ScanPhase:        st.ScanPhase.String(),
	}
	if st.Mode == editor.ModeEdit {
		index := st.Index
		state.Index = &index
	}
	return state
}

// Close stops state pushes and tears the controller down, releasing the
// radio if a scan is open.
func (s *Screen) Close() {
	s.once.Do(func() {
		close(s.done)
		s.Controller.Close()
	})
}
