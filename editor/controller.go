// Package editor implements the card edit screen: the in-progress card, the
// derived UID of its identifier, scanning an identifier from a tag, and saving.
package editor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nedpals/davi-nfc-cards/cardid"
	"github.com/nedpals/davi-nfc-cards/cardstore"
	"github.com/nedpals/davi-nfc-cards/nfc"
	"github.com/nedpals/davi-nfc-cards/scan"
)

// DefaultName is the name of a card being created.
const DefaultName = "New card"

// Mode is chosen once, when the controller is created.
type Mode int

const (
	ModeCreate Mode = iota
	ModeEdit
)

func (m Mode) String() string {
	if m == ModeEdit {
		return "edit"
	}
	return "create"
}

// Navigator returns to the previous screen.
type Navigator interface {
	GoBack()
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func()

func (f NavigatorFunc) GoBack() { f() }

// Notifier shows a transient, non-blocking message.
type Notifier interface {
	Notify(message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(message string)

func (f NotifierFunc) Notify(message string) { f(message) }

// Existing selects edit mode: the card to edit and its position in the store.
type Existing struct {
	Index int
	Card  cardstore.Card
}

// Options configures a Controller. Store, Converter and Radio are required.
type Options struct {
	Existing *Existing

	Store       cardstore.Store
	Invalidator cardstore.Invalidator
	Converter   cardid.Converter
	Generator   *cardid.Generator

	Radio       scan.Radio
	Codec       cardid.Codec
	Technology  nfc.Technology
	ScanTimeout time.Duration

	Navigator Navigator
	Notifier  Notifier
	Logger    *logrus.Entry
}

// State is a consistent snapshot of the screen.
type State struct {
	Mode          Mode
	Index         int
	Name          string
	Identifier    string
	Conversion    ConversionResult
	DisplayUID    string
	CanRegenerate bool
	ScanOpen      bool
	ScanPhase     scan.Phase
}

// Controller holds one card edit screen.
//
// Identifier changes are applied in call order. Each change sets the derived
// UID to pending and starts a conversion unless one is already in flight for
// the same raw identifier; a conversion result is applied only if its raw
// identifier is still the current one.
//
// Example:
//
//	ctrl := editor.New(editor.Options{
//	    Store:     store,
//	    Converter: cardid.SerialConverter{},
//	    Radio:     nfc.DefaultRadio(nfc.RadioOptions{}),
//	    Navigator: editor.NavigatorFunc(showList),
//	})
//	defer ctrl.Close()
//	ctrl.SetName("Front door")
//	if err := ctrl.Save(ctx); err != nil {
//	    return err
//	}
type Controller struct {
	opts   Options
	logger *logrus.Entry
	mode   Mode
	index  int
	scan   *scan.Session

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	name       string
	identifier string
	conversion ConversionResult
	inFlight   map[string]struct{}

	changes chan struct{}
}

// New creates a Controller in create mode, or edit mode when opts.Existing is
// set, and starts converting the initial identifier.
func New(opts Options) *Controller {
	if opts.Generator == nil {
		opts.Generator = cardid.NewGenerator(nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.WithField("component", "editor")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		opts:     opts,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		inFlight: make(map[string]struct{}),
		changes:  make(chan struct{}, 1),
	}
	c.scan = scan.NewSession(scan.Options{
		Radio:      opts.Radio,
		Codec:      opts.Codec,
		Technology: opts.Technology,
		Timeout:    opts.ScanTimeout,
		Logger:     logger.WithField("component", "scan"),
		OnComplete: c.scanned,
		OnPhase:    func(scan.Phase) { c.changed() },
	})

	var identifier string
	if opts.Existing != nil {
		c.mode = ModeEdit
		c.index = opts.Existing.Index
		c.name = opts.Existing.Card.Name
		identifier = opts.Existing.Card.Identifier
	} else {
		c.mode = ModeCreate
		c.name = DefaultName
		identifier = opts.Generator.Generate()
	}

	c.mu.Lock()
	c.setIdentifierLocked(identifier)
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{"mode": c.mode, "identifier": identifier}).Debug("editor opened")
	return c
}

// Mode returns the mode chosen at creation.
func (c *Controller) Mode() Mode {
	return c.mode
}

// Changes signals that the state changed. Signals are coalesced.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

func (c *Controller) changed() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// Name returns the in-progress name.
func (c *Controller) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Identifier returns the in-progress raw identifier.
func (c *Controller) Identifier() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identifier
}

// SetName replaces the name. It is not validated.
func (c *Controller) SetName(name string) {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
	c.changed()
}

// SetIdentifier replaces the raw identifier with user input.
func (c *Controller) SetIdentifier(raw string) {
	c.mu.Lock()
	c.setIdentifierLocked(raw)
	c.mu.Unlock()
}

// RegenerateIdentifier replaces the raw identifier with a generated one and
// returns it.
func (c *Controller) RegenerateIdentifier() string {
	raw := c.opts.Generator.Generate()
	c.SetIdentifier(raw)
	return raw
}

func (c *Controller) setIdentifierLocked(raw string) {
	c.identifier = raw
	c.conversion = ConversionResult{Raw: raw, Status: ConversionPending}
	if _, ok := c.inFlight[raw]; !ok {
		c.inFlight[raw] = struct{}{}
		go c.convert(raw)
	}
	c.changed()
}

func (c *Controller) convert(raw string) {
	value, err := c.opts.Converter.Convert(c.ctx, raw)

	c.mu.Lock()
	delete(c.inFlight, raw)
	if raw != c.identifier {
		c.mu.Unlock()
		c.logger.WithField("identifier", raw).Debug("discarding conversion for superseded identifier")
		return
	}
	if err != nil {
		c.conversion = ConversionResult{Raw: raw, Status: ConversionFailed}
	} else {
		c.conversion = ConversionResult{Raw: raw, Status: ConversionResolved, Value: value}
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.WithError(err).WithField("identifier", raw).Warn("uid conversion failed")
	}
	c.changed()
}

// Conversion returns the derived UID state of the current identifier.
func (c *Controller) Conversion() ConversionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversion
}

// DisplayUID returns the grouped derived UID, or a placeholder while it is
// pending or when it is unusable.
func (c *Controller) DisplayUID() string {
	return displayUID(c.Conversion())
}

func displayUID(r ConversionResult) string {
	switch r.Status {
	case ConversionPending:
		return PlaceholderPending
	case ConversionResolved:
		if grouped, ok := cardid.FormatUID(r.Value); ok {
			return grouped
		}
	}
	return PlaceholderInvalid
}

// CanRegenerate reports whether the regenerate control is enabled. It is
// disabled while the derived UID is pending.
func (c *Controller) CanRegenerate() bool {
	return c.Conversion().Status != ConversionPending
}

// State returns a snapshot of the screen.
func (c *Controller) State() State {
	phase := c.scan.Phase()

	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Mode:          c.mode,
		Index:         c.index,
		Name:          c.name,
		Identifier:    c.identifier,
		Conversion:    c.conversion,
		DisplayUID:    displayUID(c.conversion),
		CanRegenerate: c.conversion.Status != ConversionPending,
		ScanOpen:      phase != scan.Idle,
		ScanPhase:     phase,
	}
}

// Save persists the card: Create in create mode, Update at the original
// position in edit mode. On success other listings are invalidated and the
// navigator goes back. On failure the error is returned and the screen stays.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	card := cardstore.Card{Identifier: c.identifier, Name: c.name}
	c.mu.Unlock()

	var err error
	if c.mode == ModeEdit {
		err = c.opts.Store.Update(ctx, c.index, card)
	} else {
		err = c.opts.Store.Create(ctx, card)
	}
	if err != nil {
		return fmt.Errorf("save card: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"mode":       c.mode,
		"identifier": card.Identifier,
	}).Info("card saved")

	if c.opts.Invalidator != nil {
		c.opts.Invalidator.Invalidate()
	}
	if c.opts.Navigator != nil {
		c.opts.Navigator.GoBack()
	}
	return nil
}

// OpenScan opens the scan UI and starts a scan session bound to ctx. It
// returns false if a scan is already open.
func (c *Controller) OpenScan(ctx context.Context) bool {
	return c.scan.Open(ctx)
}

// CloseScan closes the scan UI. It returns once the technology request has
// been cancelled and the radio released.
func (c *Controller) CloseScan() {
	c.scan.Close()
}

// ScanOpen reports whether the scan UI is open.
func (c *Controller) ScanOpen() bool {
	return c.scan.Active()
}

// ScanPhase returns the phase of the scan session.
func (c *Controller) ScanPhase() scan.Phase {
	return c.scan.Phase()
}

func (c *Controller) scanned(identifier string) {
	c.SetIdentifier(identifier)
	if c.opts.Notifier != nil {
		c.opts.Notifier.Notify(fmt.Sprintf("Card scanned: %s", identifier))
	}
}

// Close tears the screen down: any scan is closed and outstanding
// conversions are cancelled.
func (c *Controller) Close() {
	c.scan.Close()
	c.cancel()
}
