package main

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"runtime"

	"fyne.io/systray"
	log "github.com/sirupsen/logrus"

	"github.com/nedpals/davi-nfc-cards/buildinfo"
	"github.com/nedpals/davi-nfc-cards/editor"
	"github.com/nedpals/davi-nfc-cards/server"
)

// getLocalIPs returns a list of local IP addresses (excluding loopback)
func getLocalIPs() []string {
	var ips []string
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ips
	}

	for _, addr := range addrs {
		if ipNet, ok := addr.(*net.IPNet); ok && !ipNet.IP.IsLoopback() {
			if ipNet.IP.To4() != nil {
				ips = append(ips, ipNet.IP.String())
			}
		}
	}
	return ips
}

// serverURL is the WebSocket address clients connect to.
func serverURL(ips []string, port int) string {
	ip := "localhost"
	if len(ips) > 0 {
		ip = ips[0]
	}
	return fmt.Sprintf("ws://%s:%d%s", ip, port, server.RouteWebSocket)
}

// menuTitles is what the tray shows for a screen state.
type menuTitles struct {
	Name       string
	Identifier string
	UID        string
	Scan       string
}

func titlesFor(st editor.State) menuTitles {
	t := menuTitles{
		Name:       "Name: " + st.Name,
		Identifier: "Identifier: " + st.Identifier,
		UID:        "UID: " + st.DisplayUID,
		Scan:       "Scan Card",
	}
	if st.ScanOpen {
		t.Scan = "Cancel Scan (" + st.ScanPhase.String() + ")"
	}
	return t
}

// SystrayApp hosts one create-mode card edit screen in the system tray. When
// a card is saved the screen navigates back and a fresh one is opened.
type SystrayApp struct {
	agent  *Agent
	ctx    context.Context
	cancel context.CancelFunc

	screen *editor.Controller
	back   chan struct{}
	notes  chan string
	done   chan struct{} // closed when handleMenuEvents returns

	// Menu items
	mStatus     *systray.MenuItem
	mServerURL  *systray.MenuItem
	mName       *systray.MenuItem
	mIdentifier *systray.MenuItem
	mUID        *systray.MenuItem
	mRegenerate *systray.MenuItem
	mScan       *systray.MenuItem
	mSave       *systray.MenuItem
	mQuit       *systray.MenuItem
}

// NewSystrayApp creates a new systray application
func NewSystrayApp(agent *Agent) *SystrayApp {
	ctx, cancel := context.WithCancel(context.Background())
	return &SystrayApp{
		agent:  agent,
		ctx:    ctx,
		cancel: cancel,
		back:   make(chan struct{}, 1),
		notes:  make(chan string, 8),
		done:   make(chan struct{}),
	}
}

// Run starts the systray application
func (s *SystrayApp) Run() {
	systray.Run(s.onReady, s.onExit)
}

// Quit ends the tray loop; onExit cleans up.
func (s *SystrayApp) Quit() {
	systray.Quit()
}

// onReady is called when the systray is ready
func (s *SystrayApp) onReady() {
	s.setupUI()
	s.startServer()
	s.openScreen()
	go s.handleMenuEvents()
}

// onExit is called when the systray is exiting. The event loop closes the
// hosted screen before the agent stops, so its scan session releases the
// radio first.
func (s *SystrayApp) onExit() {
	s.cancel()
	<-s.done
	s.agent.Stop()
}

// setupUI initializes all menu items
func (s *SystrayApp) setupUI() {
	systray.SetIcon(iconData)
	systray.SetTooltip(buildinfo.DisplayName)

	s.mStatus = systray.AddMenuItem("Starting...", "Status")
	s.mStatus.Disable()
	s.mServerURL = systray.AddMenuItem("Server: Not running", "Copy the WebSocket URL to the clipboard")

	systray.AddSeparator()

	s.mName = systray.AddMenuItem("Name: "+editor.DefaultName, "Card name")
	s.mName.Disable()
	s.mIdentifier = systray.AddMenuItem("Identifier: ", "Copy the identifier to the clipboard")
	s.mUID = systray.AddMenuItem("UID: "+editor.PlaceholderPending, "Copy the UID to the clipboard")

	systray.AddSeparator()

	s.mRegenerate = systray.AddMenuItem("Regenerate Identifier", "Generate a new identifier")
	s.mScan = systray.AddMenuItem("Scan Card", "Read the identifier from a tag")
	s.mSave = systray.AddMenuItem("Save Card", "Save the card and start a new one")

	systray.AddSeparator()
	s.mQuit = systray.AddMenuItem("Quit", "Quit the application")
}

func (s *SystrayApp) startServer() {
	errCh, err := s.agent.StartServer()
	if err != nil {
		log.WithError(err).Error("Failed to start server")
		s.mStatus.SetTitle("Server failed to start")
		return
	}
	s.mServerURL.SetTitle("Server: " + serverURL(getLocalIPs(), s.agent.Config.Server.Port))

	go func() {
		if err, ok := <-errCh; ok && err != nil {
			s.note("Server stopped: " + err.Error())
			s.mServerURL.SetTitle("Server: Not running")
		}
	}()
}

// openScreen replaces the hosted screen with a fresh create-mode screen.
func (s *SystrayApp) openScreen() {
	if s.screen != nil {
		s.screen.Close()
	}
	s.screen = s.agent.NewScreen(
		editor.NavigatorFunc(func() {
			select {
			case s.back <- struct{}{}:
			default:
			}
		}),
		editor.NotifierFunc(s.note),
	)
	s.render()

	if n := s.agent.CardCount(s.ctx); n >= 0 {
		s.mStatus.SetTitle(fmt.Sprintf("%d cards stored", n))
	}
}

func (s *SystrayApp) note(message string) {
	select {
	case s.notes <- message:
	default:
		log.WithField("message", message).Debug("Dropping notification")
	}
}

func (s *SystrayApp) render() {
	st := s.screen.State()
	t := titlesFor(st)
	s.mName.SetTitle(t.Name)
	s.mIdentifier.SetTitle(t.Identifier)
	s.mUID.SetTitle(t.UID)
	s.mScan.SetTitle(t.Scan)
	if st.CanRegenerate {
		s.mRegenerate.Enable()
	} else {
		s.mRegenerate.Disable()
	}
}

// handleMenuEvents processes all menu click events. The hosted screen is
// only replaced from this goroutine.
func (s *SystrayApp) handleMenuEvents() {
	quit := false
	defer func() {
		s.screen.Close()
		close(s.done)
		if quit {
			systray.Quit()
		}
	}()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.screen.Changes():
			s.render()
		case <-s.back:
			s.openScreen()
		case message := <-s.notes:
			s.mStatus.SetTitle(message)
			systray.SetTooltip(buildinfo.DisplayName + ": " + message)
		case <-s.mServerURL.ClickedCh:
			s.copy("server URL", serverURL(getLocalIPs(), s.agent.Config.Server.Port))
		case <-s.mIdentifier.ClickedCh:
			s.copy("identifier", s.screen.Identifier())
		case <-s.mUID.ClickedCh:
			if c := s.screen.Conversion(); c.Status == editor.ConversionResolved {
				s.copy("UID", c.Value)
			}
		case <-s.mRegenerate.ClickedCh:
			if s.screen.CanRegenerate() {
				s.screen.RegenerateIdentifier()
			}
		case <-s.mScan.ClickedCh:
			if s.screen.ScanOpen() {
				s.screen.CloseScan()
			} else {
				s.screen.OpenScan(s.ctx)
			}
		case <-s.mSave.ClickedCh:
			if err := s.screen.Save(s.ctx); err != nil {
				log.WithError(err).Error("Failed to save card")
				s.mStatus.SetTitle("Save failed: " + err.Error())
			}
		case <-s.mQuit.ClickedCh:
			quit = true
			return
		}
	}
}

func (s *SystrayApp) copy(what, text string) {
	if text == "" {
		return
	}
	if err := copyToClipboard(text); err != nil {
		log.WithError(err).Warnf("[systray] Failed to copy %s to clipboard", what)
		return
	}
	log.Debugf("[systray] Copied %s to clipboard", what)
}

// copyToClipboard copies text to the system clipboard
func copyToClipboard(text string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("pbcopy")
	case "linux":
		cmd = exec.Command("xclip", "-selection", "clipboard")
	case "windows":
		cmd = exec.Command("clip")
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}

	if err := cmd.Start(); err != nil {
		return err
	}

	_, err = stdin.Write([]byte(text))
	if err != nil {
		return err
	}

	stdin.Close()
	return cmd.Wait()
}
