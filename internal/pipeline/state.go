package pipeline

// State is where a candidate is in its resolution.
type State int

// Candidate states. Every candidate starts Proposed and ends Resolved or
// Unresolved.
const (
	Proposed State = iota
	CacheFresh
	CacheStale
	CacheMiss
	Resolving
	Resolved
	Unresolved
)

func (s State) String() string {
	switch s {
	case Proposed:
		return "proposed"
	case CacheFresh:
		return "cache_fresh"
	case CacheStale:
		return "cache_stale"
	case CacheMiss:
		return "cache_miss"
	case Resolving:
		return "resolving"
	case Resolved:
		return "resolved"
	case Unresolved:
		return "unresolved"
	default:
		return "unknown"
	}
}
