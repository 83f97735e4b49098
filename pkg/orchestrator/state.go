package orchestrator

// State 一次运行所处的阶段
type State uint8

const (
	StateDressed State = iota
	StatePeeping
	StatePinned
	StateStripping
	StateBareMetal
	StateNirvana
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateDressed:
		return "DRESSED"
	case StatePeeping:
		return "PEEPING"
	case StatePinned:
		return "PINNED"
	case StateStripping:
		return "STRIPPING"
	case StateBareMetal:
		return "BARE_METAL"
	case StateNirvana:
		return "NIRVANA"
	case StateAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Terminal NIRVANA 和 ABORTED 之后不再迁移
func (s State) Terminal() bool {
	return s == StateNirvana || s == StateAborted
}
