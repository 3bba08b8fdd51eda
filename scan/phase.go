package scan

// Phase is the lifecycle position of a Session.
type Phase int

const (
	Idle Phase = iota
	Acquiring
	AwaitingTag
	Decoding
	Completed
	Cancelled
	Failed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Acquiring:
		return "acquiring"
	case AwaitingTag:
		return "awaitingTag"
	case Decoding:
		return "decoding"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether p ends a run.
func (p Phase) Terminal() bool {
	return p == Completed || p == Cancelled || p == Failed
}
