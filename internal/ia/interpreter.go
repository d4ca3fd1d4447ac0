package ia

import (
	"fmt"
	"log/slog"

	"github.com/flowpbx/voiceswitch/internal/command"
)

// State is the interpreter's classification of the digits typed so far.
type State int

const (
	// StateEmpty means no digits are buffered.
	StateEmpty State = iota
	// StateTyping means at least one code is still compatible and incomplete.
	StateTyping
	// StateResolved means a code completed and its command was fired.
	StateResolved
	// StateUnknown means no code is compatible with the buffered digits.
	StateUnknown
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "Empty"
	case StateTyping:
		return "Typing"
	case StateResolved:
		return "Resolved"
	case StateUnknown:
		return "Unknown"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// IncompleteSuffix is appended to a description while a code is incomplete.
const IncompleteSuffix = "..."

// Result is the outcome of one key press.
type Result struct {
	State   State
	Digits  string
	Display string
	// Accepted is false when the key was ignored (over the cap or not a digit).
	Accepted bool
	// Fired is the command dispatched by this key press, if any.
	Fired *command.Command
}

// Interpreter classifies a growing digit sequence against a function table
// and fires a command once per completed code. It is not safe for
// concurrent use.
type Interpreter struct {
	table   *Table
	sender  command.Sender
	logger  *slog.Logger
	digits  []byte
	state   State
	display string
}

// NewInterpreter creates an interpreter over table that dispatches fired
// commands to sender.
func NewInterpreter(table *Table, sender command.Sender, logger *slog.Logger) *Interpreter {
	return &Interpreter{
		table:  table,
		sender: sender,
		logger: logger.With("subsystem", "ia"),
		digits: make([]byte, 0, MaxDigits),
	}
}

// Digit appends d and re-evaluates the buffer.
func (it *Interpreter) Digit(d byte) Result {
	if d == '*' {
		return it.Clear()
	}
	if d < '0' || d > '9' || len(it.digits) >= MaxDigits {
		return it.result(false, nil)
	}

	it.digits = append(it.digits, d)
	typed := string(it.digits)
	m := it.table.match(typed)

	switch {
	case len(m.complete) == 1:
		fn := m.complete[0]
		cmd := fn.Build(typed)
		it.state = StateResolved
		it.display = fn.Description
		it.logger.Info("ia function fired",
			"digits", typed,
			"function", fn.Description,
			"type", cmd.Type,
		)
		it.sender.Send(cmd)
		return it.result(true, &cmd)

	case len(m.complete) > 1:
		it.logger.Warn("ambiguous ia code", "digits", typed, "matches", len(m.complete))
		it.state = StateUnknown
		it.display = ""

	default:
		if hint, ok := m.hint(); ok {
			it.state = StateTyping
			it.display = hint + IncompleteSuffix
		} else {
			// Past every code: digits are kept but produce no status.
			if it.state != StateResolved {
				it.state = StateUnknown
			}
			it.display = ""
		}
	}
	return it.result(true, nil)
}

// Clear empties the buffer. Already fired commands are not affected.
func (it *Interpreter) Clear() Result {
	it.digits = it.digits[:0]
	it.state = StateEmpty
	it.display = ""
	return it.result(true, nil)
}

// State returns the current state.
func (it *Interpreter) State() State { return it.state }

// Digits returns the buffered digits.
func (it *Interpreter) Digits() string { return string(it.digits) }

// Display returns the status text for the buffered digits.
func (it *Interpreter) Display() string { return it.display }

func (it *Interpreter) result(accepted bool, fired *command.Command) Result {
	return Result{
		State:    it.state,
		Digits:   string(it.digits),
		Display:  it.display,
		Accepted: accepted,
		Fired:    fired,
	}
}
