package orchestrator

// State is the orchestrator's position in the launch sequence.
type State int32

const (
	StateIdle State = iota
	StateCheckingBackend
	StateStartingBackend
	StateCheckingDevices
	StateStartingFrontend
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCheckingBackend:
		return "checking_backend"
	case StateStartingBackend:
		return "starting_backend"
	case StateCheckingDevices:
		return "checking_devices"
	case StateStartingFrontend:
		return "starting_frontend"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further progress is made from s.
func (s State) Terminal() bool { return s == StateReady || s == StateFailed }

// transitions is the only source of truth for legal moves. Ready may still
// fall to Failed; Failed is final.
var transitions = map[State][]State{
	StateIdle:             {StateCheckingBackend},
	StateCheckingBackend:  {StateCheckingDevices, StateStartingBackend},
	StateStartingBackend:  {StateCheckingDevices, StateFailed},
	StateCheckingDevices:  {StateStartingFrontend},
	StateStartingFrontend: {StateReady, StateFailed},
	StateReady:            {StateFailed},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
