package editor

// ConversionStatus is the state of the derived UID for the current identifier.
type ConversionStatus int

const (
	ConversionPending ConversionStatus = iota
	ConversionResolved
	ConversionFailed
)

func (s ConversionStatus) String() string {
	switch s {
	case ConversionPending:
		return "pending"
	case ConversionResolved:
		return "resolved"
	case ConversionFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ConversionResult is the derived UID of Raw. Value is set only when Status
// is ConversionResolved.
type ConversionResult struct {
	Raw    string
	Status ConversionStatus
	Value  string
}

const (
	// PlaceholderPending is displayed while the UID is being derived.
	PlaceholderPending = "Loading..."
	// PlaceholderInvalid is displayed when the UID could not be derived or
	// does not group into 4-character chunks.
	PlaceholderInvalid = "Invalid"
)
