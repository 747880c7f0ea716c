package types

// ChangeState is the tri-state answer of a cheap change check: known
// unchanged, known changed, or unknown without a recomputation.
type ChangeState int

// Change states.
const (
	ChangeUnknown ChangeState = iota
	Unchanged
	Changed
)

// ChangeStateOf converts a known boolean answer.
func ChangeStateOf(changed bool) ChangeState {
	if changed {
		return Changed
	}
	return Unchanged
}

func (s ChangeState) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Changed:
		return "changed"
	default:
		return "unknown"
	}
}

// SyncState says whether a foreign-key end-point agrees with the collection
// end-point it points at.
type SyncState int

// Sync states.
const (
	SyncUnknown SyncState = iota
	Synchronized
	Unsynchronized
)

func (s SyncState) String() string {
	switch s {
	case Synchronized:
		return "synchronized"
	case Unsynchronized:
		return "unsynchronized"
	default:
		return "unknown"
	}
}
