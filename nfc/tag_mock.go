package nfc

import (
	"encoding/hex"
	"strings"
)

// MockTag is a test implementation of Tag.
type MockTag struct {
	TagID    []byte
	TagType  string
	TagTechs []Technology
}

// NewMockTag creates an NfcA MockTag with the given identifier bytes.
func NewMockTag(id []byte) *MockTag {
	return &MockTag{
		TagID:    id,
		TagType:  "Mock Tag",
		TagTechs: []Technology{TechNfcA},
	}
}

func (m *MockTag) UID() string                { return strings.ToUpper(hex.EncodeToString(m.TagID)) }
func (m *MockTag) ID() []byte                 { return m.TagID }
func (m *MockTag) Type() string               { return m.TagType }
func (m *MockTag) Technologies() []Technology { return m.TagTechs }
