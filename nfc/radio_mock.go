package nfc

import (
	"context"
	"fmt"
	"sync"
)

// MockRadio is a test double with the same method set as Radio.
//
// RequestTechnology blocks until Present delivers a tag, the request is
// cancelled, or ctx is done.
//
// Example:
//
//	radio := NewMockRadio()
//	go session.Open(ctx)
//	radio.Present(TagInfo{ID: []byte{0x04, 0xA1}})
type MockRadio struct {
	// AcquireError, if set, will be returned by Acquire()
	AcquireError error

	// StartError, if set, will be returned by Start()
	StartError error

	// RequestError, if set, will be returned by RequestTechnology() immediately
	RequestError error

	// GetTagError, if set, will be returned by GetTag()
	GetTagError error

	// ReleaseError, if set, will be returned by the ReleaseFunc of a current hold
	ReleaseError error

	// CallLog tracks all method calls for verification in tests
	CallLog []string

	mu      sync.Mutex
	held    bool
	hold    uint64
	pending chan struct{}
	tags    chan TagInfo
	last    *TagInfo
}

// NewMockRadio creates a MockRadio with no tag in the field.
func NewMockRadio() *MockRadio {
	return &MockRadio{
		CallLog: make([]string, 0),
		tags:    make(chan TagInfo, 1),
	}
}

func (m *MockRadio) record(call string) {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, call)
	m.mu.Unlock()
}

// Acquire simulates exclusive acquisition.
func (m *MockRadio) Acquire() (ReleaseFunc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Acquire")
	if m.AcquireError != nil {
		return nil, m.AcquireError
	}
	if m.held {
		return nil, NewRadioBusyError("Acquire")
	}
	m.held = true
	m.hold++
	hold := m.hold
	return func() error { return m.release(hold) }, nil
}

// release gives up ownership if hold is still current. Every call is logged
// as "Release".
func (m *MockRadio) release(hold uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "Release")
	if !m.held || m.hold != hold {
		return nil
	}
	m.held = false
	m.last = nil
	return m.ReleaseError
}

// Start simulates powering up the reader.
func (m *MockRadio) Start() error {
	m.record("Start")
	return m.StartError
}

// RequestTechnology simulates waiting for a tag.
func (m *MockRadio) RequestTechnology(ctx context.Context, tech Technology) error {
	m.mu.Lock()
	m.CallLog = append(m.CallLog, fmt.Sprintf("RequestTechnology(%s)", tech))
	if m.RequestError != nil {
		err := m.RequestError
		m.mu.Unlock()
		return err
	}
	cancel := make(chan struct{})
	m.pending = cancel
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		if m.pending == cancel {
			m.pending = nil
		}
		m.mu.Unlock()
	}()

	select {
	case info := <-m.tags:
		m.mu.Lock()
		m.last = &info
		m.mu.Unlock()
		return nil
	case <-cancel:
		return NewCancelledError("RequestTechnology", nil)
	case <-ctx.Done():
		return NewCancelledError("RequestTechnology", ctx.Err())
	}
}

// GetTag returns the tag delivered to the last request.
func (m *MockRadio) GetTag() (TagInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "GetTag")
	if m.GetTagError != nil {
		return TagInfo{}, m.GetTagError
	}
	if m.last == nil {
		return TagInfo{}, Errorf(ErrCodeNoTag, "GetTag", "no tag detected")
	}
	return *m.last, nil
}

// CancelTechnologyRequest aborts the outstanding request.
func (m *MockRadio) CancelTechnologyRequest() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CallLog = append(m.CallLog, "CancelTechnologyRequest")
	if m.pending != nil {
		close(m.pending)
		m.pending = nil
	}
	return nil
}

// Present puts a tag in the field for the current or next request.
func (m *MockRadio) Present(info TagInfo) {
	m.tags <- info
}

// Waiting reports whether a technology request is outstanding.
func (m *MockRadio) Waiting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != nil
}

// Held reports whether the mock is acquired.
func (m *MockRadio) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held
}

// Calls returns how many times method was called. Methods taking arguments
// are matched by name prefix.
func (m *MockRadio) Calls(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, call := range m.CallLog {
		if call == method || (len(call) > len(method) && call[:len(method)] == method && call[len(method)] == '(') {
			n++
		}
	}
	return n
}

// GetCallLog returns a copy of the call log for verification.
func (m *MockRadio) GetCallLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	logCopy := make([]string, len(m.CallLog))
	copy(logCopy, m.CallLog)
	return logCopy
}
