package cardid

import "strings"

// UIDChunkSize is the number of characters per display group.
const UIDChunkSize = 4

// UIDDelimiter separates display groups.
const UIDDelimiter = " - "

// FormatUID groups a derived UID into 4-character chunks joined by UIDDelimiter.
// It returns false when derived does not split cleanly into alphanumeric chunks.
//
// Example:
//
//	s, ok := cardid.FormatUID("0000123456789012") // "0000 - 1234 - 5678 - 9012", true
func FormatUID(derived string) (string, bool) {
	if derived == "" || len(derived)%UIDChunkSize != 0 {
		return "", false
	}
	for _, r := range derived {
		if !isAlphanumeric(r) {
			return "", false
		}
	}

	chunks := make([]string, 0, len(derived)/UIDChunkSize)
	for i := 0; i < len(derived); i += UIDChunkSize {
		chunks = append(chunks, derived[i:i+UIDChunkSize])
	}
	return strings.Join(chunks, UIDDelimiter), true
}

func isAlphanumeric(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z')
}
