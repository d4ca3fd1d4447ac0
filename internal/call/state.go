package call

import "fmt"

// State is the lifecycle state of a console's dial session.
type State int

const (
	// StateTrunkSelect is the initial state: no trunk chosen.
	StateTrunkSelect State = iota
	// StateDialing is after trunk selection, collecting digits locally.
	StateDialing
	// StateCalling is after the dial command was sent, awaiting status.
	StateCalling
	// StateConnected is after the far end answered.
	StateConnected
	// StateBusy is after the far end reported busy.
	StateBusy
	// StateNoAnswer is after the far end did not answer.
	StateNoAnswer
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateTrunkSelect:
		return "TrunkSelect"
	case StateDialing:
		return "Dialing"
	case StateCalling:
		return "Calling"
	case StateConnected:
		return "Connected"
	case StateBusy:
		return "Busy"
	case StateNoAnswer:
		return "NoAnswer"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// validTransitions defines which state transitions are allowed.
var validTransitions = map[State][]State{
	StateTrunkSelect: {StateDialing},
	StateDialing:     {StateCalling, StateTrunkSelect},
	StateCalling:     {StateCalling, StateConnected, StateBusy, StateNoAnswer, StateTrunkSelect},
	StateConnected:   {StateTrunkSelect},
	StateBusy:        {StateDialing, StateTrunkSelect},
	StateNoAnswer:    {StateDialing, StateTrunkSelect},
}

// CanTransitionTo checks if a transition from current state to next state is valid.
func (s State) CanTransitionTo(next State) bool {
	for _, state := range validTransitions[s] {
		if state == next {
			return true
		}
	}
	return false
}

// InCall reports whether a hangup must be signalled to leave this state.
func (s State) InCall() bool {
	return s == StateCalling || s == StateConnected || s == StateBusy || s == StateNoAnswer
}

// TrunkType is the signalling class of a trunk.
type TrunkType string

const (
	TrunkRing     TrunkType = "ring"
	TrunkOverride TrunkType = "override"
	TrunkDirect   TrunkType = "direct"
)

// Discriminator returns the numeric code sent as dbl1 for this trunk type.
func (t TrunkType) Discriminator() (int, bool) {
	switch t {
	case TrunkRing:
		return 1, true
	case TrunkOverride:
		return 0, true
	case TrunkDirect:
		return 2, true
	}
	return 0, false
}

// Mode is the kind of interaction a session was opened for.
type Mode string

const (
	ModeTrunkCall Mode = "trunk-call"
	ModeDialLine  Mode = "dial-line"
	ModeIA        Mode = "ia"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeTrunkCall || m == ModeDialLine || m == ModeIA
}
