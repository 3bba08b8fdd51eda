package cardid

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyTagID is returned when a tag reports no identifier bytes.
var ErrEmptyTagID = errors.New("tag id is empty")

// Codec converts between tag identifier bytes and display identifiers.
type Codec interface {
	Encode(id []byte) (string, error)
	Decode(s string) ([]byte, error)
}

// HexCodec encodes tag ids as uppercase hexadecimal.
type HexCodec struct{}

// Encode returns the uppercase hex form of id.
func (HexCodec) Encode(id []byte) (string, error) {
	if len(id) == 0 {
		return "", ErrEmptyTagID
	}
	return strings.ToUpper(hex.EncodeToString(id)), nil
}

// Decode parses a hex identifier back into bytes. Case is ignored.
func (HexCodec) Decode(s string) ([]byte, error) {
	if s == "" {
		return nil, ErrEmptyTagID
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode identifier %q: %w", s, err)
	}
	return b, nil
}
