package automation

// Mode gates whether a track's automation is applied and whether new points
// may be recorded into it. The gate is independent of the curve engine.
type Mode int

const (
	ModeOff Mode = iota
	ModeRead
	ModeTouch
	ModeLatch
	ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeOff:
		return "off"
	case ModeRead:
		return "read"
	case ModeTouch:
		return "touch"
	case ModeLatch:
		return "latch"
	case ModeWrite:
		return "write"
	default:
		return "unknown"
	}
}

// CanRead reports whether lane values are applied in this mode.
func (m Mode) CanRead() bool { return m != ModeOff }

// CanRecord reports whether new points may be written in this mode.
func (m Mode) CanRecord() bool {
	return m == ModeTouch || m == ModeLatch || m == ModeWrite
}
