// Package call implements the lifecycle of one outbound dial attempt on a
// console, from trunk selection through connect, busy or no answer.
package call

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowpbx/voiceswitch/internal/command"
	"github.com/flowpbx/voiceswitch/internal/directory"
)

// DialCodeLength is the width of a dial-line code.
const DialCodeLength = directory.CodeLength

var (
	ErrInvalidTransition = errors.New("invalid call state transition")
	ErrUnknownTrunkType  = errors.New("unknown trunk type")
	ErrNoTrunk           = errors.New("no trunk selected")
	ErrNoDigits          = errors.New("no digits dialed")
	ErrCodeNotFound      = errors.New("dial code not found")
	ErrInvalidDigit      = errors.New("invalid digit")
)

// Session owns the state of one dial interaction. It is driven by a single
// caller and is not safe for concurrent use.
type Session struct {
	mode   Mode
	codes  directory.DialCodeTable
	sender command.Sender
	logger *slog.Logger

	state         State
	trunk         string
	trunkType     TrunkType
	discriminator int
	digits        []byte
	callID        string
	target        string
	ringback      bool
	notFound      bool
}

// NewSession creates a session in StateTrunkSelect. codes is the console
// position's dial-code table and is only consulted in dial-line mode.
func NewSession(mode Mode, codes directory.DialCodeTable, sender command.Sender, logger *slog.Logger) *Session {
	return &Session{
		mode:   mode,
		codes:  codes,
		sender: sender,
		logger: logger.With("subsystem", "call", "mode", string(mode)),
		state:  StateTrunkSelect,
	}
}

// CallID composes the correlation identifier of a call placed on trunk
// with the given digits.
func CallID(trunk, digits string) string {
	if digits == "" {
		return trunk
	}
	return trunk + "-" + digits
}

func (s *Session) transition(next State) error {
	if !s.state.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, next)
	}
	s.logger.Debug("call state change", "from", s.state.String(), "to", next.String(), "call_id", s.callID)
	s.state = next
	return nil
}

// SelectTrunk chooses the outbound trunk and fixes the discriminator used by
// every later command of this call.
func (s *Session) SelectTrunk(trunk string, typ TrunkType) error {
	disc, ok := typ.Discriminator()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTrunkType, typ)
	}
	if trunk == "" {
		return ErrNoTrunk
	}
	if err := s.transition(StateDialing); err != nil {
		return err
	}
	s.trunk = trunk
	s.trunkType = typ
	s.discriminator = disc
	s.sender.Send(command.New(command.TypeTrunkSelect, trunk, disc))
	return nil
}

// AppendDigit adds a digit to the dial string. Dial-line sessions stop
// accepting digits at the code width.
func (s *Session) AppendDigit(d byte) error {
	if s.state != StateDialing {
		return fmt.Errorf("%w: digit in %s", ErrInvalidTransition, s.state)
	}
	if d < '0' || d > '9' {
		return fmt.Errorf("%w: %q", ErrInvalidDigit, d)
	}
	if s.mode == ModeDialLine && len(s.digits) >= DialCodeLength {
		return fmt.Errorf("%w: dial code is %d digits", ErrInvalidDigit, DialCodeLength)
	}
	s.digits = append(s.digits, d)
	s.notFound = false
	s.target = ""
	return nil
}

// Backspace removes the last digit.
func (s *Session) Backspace() error {
	if s.state != StateDialing {
		return fmt.Errorf("%w: backspace in %s", ErrInvalidTransition, s.state)
	}
	if len(s.digits) > 0 {
		s.digits = s.digits[:len(s.digits)-1]
	}
	s.notFound = false
	s.target = ""
	return nil
}

// ClearDigits empties the dial string.
func (s *Session) ClearDigits() error {
	if s.state != StateDialing {
		return fmt.Errorf("%w: clear in %s", ErrInvalidTransition, s.state)
	}
	s.digits = s.digits[:0]
	s.notFound = false
	s.target = ""
	return nil
}

// Call sends the dial command. In dial-line mode the code must resolve in
// the position's table for the selected trunk; a miss leaves the session
// dialing with the not-found indicator set.
func (s *Session) Call() error {
	if s.state != StateDialing {
		return fmt.Errorf("%w: call in %s", ErrInvalidTransition, s.state)
	}
	if s.trunk == "" {
		return ErrNoTrunk
	}
	if len(s.digits) == 0 {
		return ErrNoDigits
	}
	digits := string(s.digits)

	if s.mode == ModeDialLine {
		target, ok := "", false
		if len(digits) == DialCodeLength {
			target, ok = directory.ResolveDialCode(s.codes, s.trunk, digits)
		}
		if !ok {
			s.notFound = true
			s.logger.Info("dial code not found", "trunk", s.trunk, "code", digits)
			return fmt.Errorf("%w: %s/%s", ErrCodeNotFound, s.trunk, digits)
		}
		s.target = target
	}

	if err := s.transition(StateCalling); err != nil {
		return err
	}
	s.callID = CallID(s.trunk, digits)
	s.ringback = false
	s.sender.Send(command.New(command.TypeDial, digits, s.discriminator))
	s.logger.Info("call placed", "call_id", s.callID, "trunk", s.trunk, "target", s.target)
	return nil
}

// statusStates maps transport status values to session states.
var statusStates = map[string]State{
	"ringback":  StateCalling,
	"connected": StateConnected,
	"ok":        StateConnected,
	"active":    StateConnected,
	"busy":      StateBusy,
	"no_answer": StateNoAnswer,
}

// correlates reports whether an event's call identifier refers to this
// session's call: an exact callId match, or the dialed digits appearing in it.
func (s *Session) correlates(call string) bool {
	if s.callID != "" && call == s.callID {
		return true
	}
	return len(s.digits) > 0 && strings.Contains(call, string(s.digits))
}

// HandleStatus applies an inbound status event. It returns true when the
// event was applied. Events for other calls, unknown statuses and events
// that are not valid from the current state are dropped.
func (s *Session) HandleStatus(evt command.StatusEvent) bool {
	if !s.state.InCall() || !s.correlates(evt.Call) {
		s.logger.Debug("dropping stale status event",
			"call", evt.Call,
			"status", evt.Status,
			"call_id", s.callID,
			"state", s.state.String(),
		)
		return false
	}
	next, ok := statusStates[evt.Status]
	if !ok {
		s.logger.Debug("ignoring unknown call status", "call_id", s.callID, "status", evt.Status)
		return false
	}
	if err := s.transition(next); err != nil {
		s.logger.Debug("ignoring status event", "call_id", s.callID, "status", evt.Status, "error", err)
		return false
	}
	if evt.Status == "ringback" {
		s.ringback = true
	}
	return true
}

// Hangup ends the interaction. From any in-call state it sends a stop
// command for the current call; from dialing it only releases the trunk.
// All session fields are cleared.
func (s *Session) Hangup() error {
	if s.state == StateTrunkSelect {
		return fmt.Errorf("%w: hangup in %s", ErrInvalidTransition, s.state)
	}
	if s.state.InCall() {
		id := s.callID
		if id == "" {
			id = CallID(s.trunk, string(s.digits))
		}
		s.sender.Send(command.New(command.TypeStop, id, s.discriminator))
		s.logger.Info("call stopped", "call_id", id, "state", s.state.String())
	}
	if err := s.transition(StateTrunkSelect); err != nil {
		return err
	}
	s.reset()
	return nil
}

// Retry returns a busy or unanswered call to dialing on the same trunk.
// Only the terminal status is cleared; the dialed digits are kept.
func (s *Session) Retry() error {
	if s.state != StateBusy && s.state != StateNoAnswer {
		return fmt.Errorf("%w: retry in %s", ErrInvalidTransition, s.state)
	}
	s.ringback = false
	return s.transition(StateDialing)
}

func (s *Session) reset() {
	s.trunk = ""
	s.trunkType = ""
	s.discriminator = 0
	s.digits = s.digits[:0]
	s.callID = ""
	s.target = ""
	s.ringback = false
	s.notFound = false
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Mode returns the mode the session was opened in.
func (s *Session) Mode() Mode { return s.mode }

// CallIDValue returns the correlation identifier of the current call.
func (s *Session) CallIDValue() string { return s.callID }

// Snapshot is a read-only view of a session for presentation.
type Snapshot struct {
	Mode           Mode      `json:"mode"`
	State          string    `json:"state"`
	Trunk          string    `json:"trunk,omitempty"`
	TrunkType      TrunkType `json:"trunk_type,omitempty"`
	Discriminator  *int      `json:"discriminator,omitempty"`
	Digits         string    `json:"digits"`
	CallID         string    `json:"call_id,omitempty"`
	ResolvedTarget string    `json:"resolved_target,omitempty"`
	Ringback       bool      `json:"ringback,omitempty"`
	NotFound       bool      `json:"not_found,omitempty"`
	Tone           *Tone     `json:"tone,omitempty"`
}

// Snapshot returns the session's current view.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Mode:           s.mode,
		State:          s.state.String(),
		Trunk:          s.trunk,
		TrunkType:      s.trunkType,
		Digits:         string(s.digits),
		CallID:         s.callID,
		ResolvedTarget: s.target,
		Ringback:       s.ringback,
		NotFound:       s.notFound,
	}
	if s.trunk != "" {
		d := s.discriminator
		snap.Discriminator = &d
	}
	if tone, ok := ToneFor(s.state, s.ringback); ok {
		snap.Tone = &tone
	}
	return snap
}
