package watcher

// State is a phase of the watch loop.
type State int32

const (
	StateResolving State = iota
	StatePolling
	StateFailover
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StatePolling:
		return "polling"
	case StateFailover:
		return "failover"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
