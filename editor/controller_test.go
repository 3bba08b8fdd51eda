package editor

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nedpals/davi-nfc-cards/cardid"
	"github.com/nedpals/davi-nfc-cards/cardstore"
	"github.com/nedpals/davi-nfc-cards/nfc"
)

// gatedConverter blocks each conversion until the test releases it.
type gatedConverter struct {
	mu    sync.Mutex
	gates map[string]chan error
	calls map[string]int
}

func newGatedConverter() *gatedConverter {
	return &gatedConverter{
		gates: make(map[string]chan error),
		calls: make(map[string]int),
	}
}

func (g *gatedConverter) gate(raw string) chan error {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[raw]
	if !ok {
		ch = make(chan error, 1)
		g.gates[raw] = ch
	}
	return ch
}

func (g *gatedConverter) Convert(ctx context.Context, raw string) (string, error) {
	g.mu.Lock()
	g.calls[raw]++
	g.mu.Unlock()

	select {
	case err := <-g.gate(raw):
		if err != nil {
			return "", err
		}
		return "UID-" + raw, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (g *gatedConverter) resolve(raw string)          { g.gate(raw) <- nil }
func (g *gatedConverter) fail(raw string, err error) { g.gate(raw) <- err }

func (g *gatedConverter) Calls(raw string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[raw]
}

// mockStore records persistence calls.
type mockStore struct {
	mu        sync.Mutex
	CallLog   []string
	Created   []cardstore.Card
	Updated   map[int]cardstore.Card
	SaveError error
}

func newMockStore() *mockStore {
	return &mockStore{Updated: make(map[int]cardstore.Card)}
}

func (m *mockStore) List(ctx context.Context) ([]cardstore.Card, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallLog = append(m.CallLog, "List")
	return append([]cardstore.Card(nil), m.Created...), nil
}

func (m *mockStore) Create(ctx context.Context, card cardstore.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallLog = append(m.CallLog, "Create")
	if m.SaveError != nil {
		return m.SaveError
	}
	m.Created = append(m.Created, card)
	return nil
}

func (m *mockStore) Update(ctx context.Context, index int, card cardstore.Card) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallLog = append(m.CallLog, "Update")
	if m.SaveError != nil {
		return m.SaveError
	}
	m.Updated[index] = card
	return nil
}

type harness struct {
	ctrl      *Controller
	converter *gatedConverter
	store     *mockStore
	radio     *nfc.MockRadio

	mu            sync.Mutex
	backs         int
	invalidations int
	notes         []string
}

func (h *harness) GoBack() {
	h.mu.Lock()
	h.backs++
	h.mu.Unlock()
}

func (h *harness) Invalidate() {
	h.mu.Lock()
	h.invalidations++
	h.mu.Unlock()
}

func (h *harness) Notify(message string) {
	h.mu.Lock()
	h.notes = append(h.notes, message)
	h.mu.Unlock()
}

func (h *harness) counts() (backs, invalidations int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.backs, h.invalidations
}

func (h *harness) notifications() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.notes...)
}

func newHarness(t *testing.T, existing *Existing) *harness {
	t.Helper()
	h := &harness{
		converter: newGatedConverter(),
		store:     newMockStore(),
		radio:     nfc.NewMockRadio(),
	}
	h.ctrl = New(Options{
		Existing:    existing,
		Store:       h.store,
		Invalidator: h,
		Converter:   h.converter,
		Generator:   cardid.NewGenerator(rand.NewPCG(1, 2)),
		Radio:       h.radio,
		Navigator:   h,
		Notifier:    h,
	})
	t.Cleanup(h.ctrl.Close)
	return h
}

func (h *harness) inFlight(raw string) bool {
	h.ctrl.mu.Lock()
	defer h.ctrl.mu.Unlock()
	_, ok := h.ctrl.inFlight[raw]
	return ok
}

func (h *harness) waitCalls(t *testing.T, raw string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.converter.Calls(raw) == n
	}, time.Second, time.Millisecond)
}

func TestNew_CreateMode(t *testing.T) {
	h := newHarness(t, nil)

	assert.Equal(t, ModeCreate, h.ctrl.Mode())
	assert.Equal(t, DefaultName, h.ctrl.Name())
	assert.True(t, cardid.Valid(h.ctrl.Identifier()))
	assert.Equal(t, ConversionPending, h.ctrl.Conversion().Status)
	assert.Equal(t, PlaceholderPending, h.ctrl.DisplayUID())
	assert.False(t, h.ctrl.CanRegenerate())
	assert.False(t, h.ctrl.ScanOpen())
}

func TestNew_EditMode(t *testing.T) {
	h := newHarness(t, &Existing{Index: 3, Card: cardstore.Card{Identifier: "02FE00000000ABCD", Name: "Garage"}})

	state := h.ctrl.State()
	assert.Equal(t, ModeEdit, state.Mode)
	assert.Equal(t, 3, state.Index)
	assert.Equal(t, "Garage", state.Name)
	assert.Equal(t, "02FE00000000ABCD", state.Identifier)
	h.waitCalls(t, "02FE00000000ABCD", 1)
}

func TestConversion_ResolvesAndFormats(t *testing.T) {
	h := newHarness(t, &Existing{Card: cardstore.Card{Identifier: "ABCD"}})

	h.converter.resolve("ABCD")
	require.Eventually(t, func() bool {
		return h.ctrl.Conversion().Status == ConversionResolved
	}, time.Second, time.Millisecond)

	assert.Equal(t, "UID-ABCD", h.ctrl.Conversion().Value)
	// "UID-ABCD" is not alphanumeric.
	assert.Equal(t, PlaceholderInvalid, h.ctrl.DisplayUID())
	assert.True(t, h.ctrl.CanRegenerate())
}

func TestConversion_DisplayGroupsResolvedValue(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.SetIdentifier("02FE0000000000FF")

	h.ctrl.mu.Lock()
	h.ctrl.conversion = ConversionResult{Raw: "02FE0000000000FF", Status: ConversionResolved, Value: "0000000000000255"}
	h.ctrl.mu.Unlock()

	assert.Equal(t, "0000 - 0000 - 0000 - 0255", h.ctrl.DisplayUID())
}

func TestConversion_FailureShowsPlaceholder(t *testing.T) {
	h := newHarness(t, &Existing{Card: cardstore.Card{Identifier: "BAD"}})

	h.converter.fail("BAD", errors.New("converter offline"))
	require.Eventually(t, func() bool {
		return h.ctrl.Conversion().Status == ConversionFailed
	}, time.Second, time.Millisecond)

	assert.Equal(t, PlaceholderInvalid, h.ctrl.DisplayUID())
	assert.True(t, h.ctrl.CanRegenerate())

	// A failed conversion does not block saving.
	require.NoError(t, h.ctrl.Save(context.Background()))
}

func TestConversion_StaleResultsDiscarded(t *testing.T) {
	h := newHarness(t, &Existing{Card: cardstore.Card{Identifier: "A"}})
	h.ctrl.SetIdentifier("B")
	h.ctrl.SetIdentifier("C")

	// B resolves after being superseded by C.
	h.converter.resolve("B")
	require.Eventually(t, func() bool { return !h.inFlight("B") }, time.Second, time.Millisecond)
	assert.Equal(t, ConversionResult{Raw: "C", Status: ConversionPending}, h.ctrl.Conversion())

	h.converter.resolve("C")
	require.Eventually(t, func() bool {
		return h.ctrl.Conversion().Status == ConversionResolved
	}, time.Second, time.Millisecond)
	assert.Equal(t, "UID-C", h.ctrl.Conversion().Value)

	// A resolves last and must not overwrite C.
	h.converter.resolve("A")
	require.Eventually(t, func() bool { return !h.inFlight("A") }, time.Second, time.Millisecond)
	assert.Equal(t, ConversionResult{Raw: "C", Status: ConversionResolved, Value: "UID-C"}, h.ctrl.Conversion())
}

func TestConversion_OneInFlightPerIdentifier(t *testing.T) {
	h := newHarness(t, &Existing{Card: cardstore.Card{Identifier: "X"}})
	h.ctrl.SetIdentifier("Y")
	h.ctrl.SetIdentifier("X")

	h.waitCalls(t, "X", 1)
	assert.Equal(t, ConversionPending, h.ctrl.Conversion().Status)

	// The original conversion of X is still current and is applied.
	h.converter.resolve("X")
	require.Eventually(t, func() bool {
		return h.ctrl.Conversion().Status == ConversionResolved
	}, time.Second, time.Millisecond)
	assert.Equal(t, "X", h.ctrl.Conversion().Raw)
	assert.Equal(t, 1, h.converter.Calls("X"))
}

func TestRegenerateIdentifier(t *testing.T) {
	h := newHarness(t, nil)
	first := h.ctrl.Identifier()

	h.converter.resolve(first)
	require.Eventually(t, h.ctrl.CanRegenerate, time.Second, time.Millisecond)

	raw := h.ctrl.RegenerateIdentifier()
	assert.NotEqual(t, first, raw)
	assert.True(t, cardid.Valid(raw))
	assert.Equal(t, raw, h.ctrl.Identifier())
	assert.Equal(t, ConversionPending, h.ctrl.Conversion().Status)
	assert.False(t, h.ctrl.CanRegenerate())
	h.waitCalls(t, raw, 1)
}

func TestSetName(t *testing.T) {
	h := newHarness(t, nil)
	<-h.ctrl.Changes()

	h.ctrl.SetName("")
	assert.Equal(t, "", h.ctrl.Name())

	select {
	case <-h.ctrl.Changes():
	case <-time.After(time.Second):
		t.Fatal("no change signalled")
	}
}

func TestSave_CreateMode(t *testing.T) {
	h := newHarness(t, nil)
	h.ctrl.SetName("Test")
	h.ctrl.SetIdentifier("02FE0000000000000000")

	require.NoError(t, h.ctrl.Save(context.Background()))

	assert.Equal(t, []string{"Create"}, h.store.CallLog)
	assert.Equal(t, []cardstore.Card{{Identifier: "02FE0000000000000000", Name: "Test"}}, h.store.Created)
	backs, invalidations := h.counts()
	assert.Equal(t, 1, backs)
	assert.Equal(t, 1, invalidations)
}

func TestSave_EditMode(t *testing.T) {
	h := newHarness(t, &Existing{Index: 2, Card: cardstore.Card{Identifier: "02FE000000000001", Name: "Old"}})
	h.ctrl.SetName("New")

	require.NoError(t, h.ctrl.Save(context.Background()))

	assert.Equal(t, []string{"Update"}, h.store.CallLog)
	assert.Equal(t, cardstore.Card{Identifier: "02FE000000000001", Name: "New"}, h.store.Updated[2])
	backs, _ := h.counts()
	assert.Equal(t, 1, backs)
}

func TestSave_FailureStaysOpen(t *testing.T) {
	h := newHarness(t, nil)
	h.store.SaveError = errors.New("disk full")
	h.ctrl.SetName("Kept")

	err := h.ctrl.Save(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, h.store.SaveError)

	backs, invalidations := h.counts()
	assert.Equal(t, 0, backs)
	assert.Equal(t, 0, invalidations)
	assert.Equal(t, "Kept", h.ctrl.Name())
}

func TestScan_CompletionReplacesIdentifier(t *testing.T) {
	h := newHarness(t, nil)

	require.True(t, h.ctrl.OpenScan(context.Background()))
	require.Eventually(t, h.radio.Waiting, time.Second, time.Millisecond)
	assert.True(t, h.ctrl.ScanOpen())

	h.radio.Present(nfc.TagInfo{ID: []byte{0x04, 0xA1, 0xB2, 0xC3}})

	require.Eventually(t, func() bool {
		return h.ctrl.Identifier() == "04A1B2C3"
	}, time.Second, time.Millisecond)
	assert.False(t, h.ctrl.ScanOpen())
	h.waitCalls(t, "04A1B2C3", 1)
	assert.Equal(t, ConversionPending, h.ctrl.Conversion().Status)
	require.Eventually(t, func() bool {
		return len(h.notifications()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, "Card scanned: 04A1B2C3", h.notifications()[0])
	assert.Equal(t, 1, h.radio.Calls("Release"))
}

func TestScan_OpenIsIdempotent(t *testing.T) {
	h := newHarness(t, nil)

	require.True(t, h.ctrl.OpenScan(context.Background()))
	assert.False(t, h.ctrl.OpenScan(context.Background()))
	require.Eventually(t, h.radio.Waiting, time.Second, time.Millisecond)
	assert.False(t, h.ctrl.OpenScan(context.Background()))

	assert.Equal(t, 1, h.radio.Calls("Acquire"))
	assert.Equal(t, 1, h.radio.Calls("Start"))
}

func TestScan_CloseCancelsAndReopens(t *testing.T) {
	h := newHarness(t, nil)
	before := h.ctrl.Identifier()

	require.True(t, h.ctrl.OpenScan(context.Background()))
	require.Eventually(t, h.radio.Waiting, time.Second, time.Millisecond)

	h.ctrl.CloseScan()
	assert.False(t, h.ctrl.ScanOpen())
	assert.Equal(t, 1, h.radio.Calls("CancelTechnologyRequest"))
	assert.Equal(t, 1, h.radio.Calls("Release"))
	assert.False(t, h.radio.Held())
	assert.Equal(t, before, h.ctrl.Identifier())

	require.True(t, h.ctrl.OpenScan(context.Background()))
	require.Eventually(t, h.radio.Waiting, time.Second, time.Millisecond)
	assert.Equal(t, 2, h.radio.Calls("Acquire"))
}

func TestScan_FailureIsSwallowed(t *testing.T) {
	h := newHarness(t, nil)
	h.radio.StartError = nfc.NewNoDeviceError("Start", nil)
	before := h.ctrl.Identifier()

	require.True(t, h.ctrl.OpenScan(context.Background()))
	require.Eventually(t, func() bool {
		return h.radio.Calls("Release") == 1 && !h.ctrl.ScanOpen()
	}, time.Second, time.Millisecond)

	assert.Equal(t, before, h.ctrl.Identifier())
	assert.Empty(t, h.notifications())

	// Retry by reopening.
	h.radio.StartError = nil
	require.True(t, h.ctrl.OpenScan(context.Background()))
	require.Eventually(t, h.radio.Waiting, time.Second, time.Millisecond)
}

func TestClose_ReleasesRadio(t *testing.T) {
	h := newHarness(t, nil)
	require.True(t, h.ctrl.OpenScan(context.Background()))
	require.Eventually(t, h.radio.Waiting, time.Second, time.Millisecond)

	h.ctrl.Close()
	assert.False(t, h.radio.Held())
	assert.False(t, h.ctrl.ScanOpen())
}
