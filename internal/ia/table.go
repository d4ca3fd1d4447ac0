// Package ia interprets indirect-access keypad function codes.
package ia

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flowpbx/voiceswitch/internal/command"
)

// MaxDigits is the interpreter's digit cap.
const MaxDigits = 4

// ErrInvalidTable is returned when a function table is ambiguous or malformed.
var ErrInvalidTable = errors.New("invalid ia function table")

// Function is one entry of the function-code table. Digits typed after
// Prefix, up to TotalDigits, are passed as the command argument.
type Function struct {
	Prefix      string
	Description string
	TotalDigits int
	Command     string
	// Subtype is sent as dbl1 when non-nil.
	Subtype *int
}

// Build returns the command fired for the completed digit string d.
func (f *Function) Build(d string) command.Command {
	cmd := command.Command{Type: f.Command}
	if len(d) > len(f.Prefix) {
		cmd.Cmd1 = d[len(f.Prefix):]
	}
	if f.Subtype != nil {
		v := *f.Subtype
		cmd.Dbl1 = &v
	}
	return cmd
}

func subtype(v int) *int { return &v }

// DefaultFunctions is the console's fixed function-code table.
var DefaultFunctions = []Function{
	{Prefix: "0", Description: "Intercom Call", TotalDigits: 4, Command: command.TypeIACall, Subtype: subtype(1)},
	{Prefix: "1", Description: "Override Intercom", TotalDigits: 4, Command: command.TypeIACall, Subtype: subtype(0)},
	{Prefix: "2", Description: "Trunk Call", TotalDigits: 4, Command: command.TypeIACall},
	{Prefix: "3", Description: "Call Forward", TotalDigits: 4, Command: command.TypeIAForward},
	{Prefix: "4", Description: "Supervisory Monitor", TotalDigits: 4, Command: command.TypeIAMonitor},
	{Prefix: "9", Description: "Supervisor Reconfig", TotalDigits: 4, Command: command.TypeIAReconfig},
	{Prefix: "60", Description: "Position Self-Test", TotalDigits: 2, Command: command.TypeIASelfTest},
	{Prefix: "70", Description: "Maintenance Functions", TotalDigits: 2, Command: command.TypeIAMaint},
	{Prefix: "7000", Description: "Clear All", TotalDigits: 4, Command: command.TypeIAClearAll},
	{Prefix: "7001", Description: "Clear Call Forward", TotalDigits: 4, Command: command.TypeIAClearFwd},
	{Prefix: "7002", Description: "Reconfiguration Recall", TotalDigits: 4, Command: command.TypeIARecon},
	{Prefix: "7003", Description: "LCD Test", TotalDigits: 4, Command: command.TypeIALCDTest},
	{Prefix: "7004", Description: "Notch Filter", TotalDigits: 4, Command: command.TypeIANotch},
}

// node is a digit trie node. fn is set when a function prefix ends here.
type node struct {
	children [10]*node
	fn       *Function
}

// Table is a function-code table indexed as a digit trie.
type Table struct {
	root node
}

// NewTable builds a trie over fns and checks that prefix matching is
// unambiguous: when one prefix extends another, the shorter code must be
// complete before the longer prefix is, and no two codes may complete at
// the same length along one path.
func NewTable(fns []Function) (*Table, error) {
	t := &Table{}
	for i := range fns {
		f := fns[i]
		if f.Prefix == "" || strings.Trim(f.Prefix, "0123456789") != "" {
			return nil, fmt.Errorf("%w: prefix %q must be non-empty digits", ErrInvalidTable, f.Prefix)
		}
		if f.TotalDigits < len(f.Prefix) || f.TotalDigits > MaxDigits {
			return nil, fmt.Errorf("%w: prefix %q has total digits %d", ErrInvalidTable, f.Prefix, f.TotalDigits)
		}

		n := &t.root
		for j := 0; j < len(f.Prefix); j++ {
			if n.fn != nil && !n.fn.compatibleAncestorOf(&f) {
				return nil, fmt.Errorf("%w: prefix %q conflicts with %q", ErrInvalidTable, f.Prefix, n.fn.Prefix)
			}
			d := f.Prefix[j] - '0'
			if n.children[d] == nil {
				n.children[d] = &node{}
			}
			n = n.children[d]
		}
		if n.fn != nil {
			return nil, fmt.Errorf("%w: duplicate prefix %q", ErrInvalidTable, f.Prefix)
		}
		var conflict error
		n.descendants(func(g *Function) bool {
			if !f.compatibleAncestorOf(g) {
				conflict = fmt.Errorf("%w: prefix %q conflicts with %q", ErrInvalidTable, f.Prefix, g.Prefix)
				return false
			}
			return true
		})
		if conflict != nil {
			return nil, conflict
		}
		n.fn = &f
	}
	return t, nil
}

// MustTable is like NewTable but panics on an invalid table.
func MustTable(fns []Function) *Table {
	t, err := NewTable(fns)
	if err != nil {
		panic(err)
	}
	return t
}

// compatibleAncestorOf reports whether f may sit above g on a trie path.
func (f *Function) compatibleAncestorOf(g *Function) bool {
	return f.TotalDigits <= len(g.Prefix) && f.TotalDigits < g.TotalDigits
}

// descendants calls fn for each function at or below n in digit order.
func (n *node) descendants(fn func(*Function) bool) bool {
	if n.fn != nil && !fn(n.fn) {
		return false
	}
	for _, c := range n.children {
		if c != nil && !c.descendants(fn) {
			return false
		}
	}
	return true
}

// match classifies the table against the digits typed so far.
type match struct {
	complete []*Function // prefix matches and TotalDigits == len(d)
	onPath   *Function   // deepest prefix of d still taking digits
	ancestor *Function   // deepest prefix of d that is already complete or overshot
	pending  []*Function // d is a proper prefix of these prefixes
}

func (t *Table) match(d string) match {
	var m match
	n := &t.root
	for i := 0; i <= len(d); i++ {
		if n.fn != nil {
			switch {
			case n.fn.TotalDigits == len(d):
				m.complete = append(m.complete, n.fn)
			case n.fn.TotalDigits > len(d):
				m.onPath = n.fn
			default:
				m.ancestor = n.fn
			}
		}
		if i == len(d) {
			break
		}
		n = n.children[d[i]-'0']
		if n == nil {
			return m
		}
	}
	for _, c := range n.children {
		if c == nil {
			continue
		}
		c.descendants(func(f *Function) bool {
			m.pending = append(m.pending, f)
			return true
		})
	}
	return m
}

// hint picks the description shown while a code is incomplete.
func (m match) hint() (string, bool) {
	switch {
	case m.onPath != nil:
		return m.onPath.Description, true
	case len(m.pending) == 1:
		return m.pending[0].Description, true
	case len(m.pending) > 1 && m.ancestor != nil:
		return m.ancestor.Description, true
	case len(m.pending) > 1:
		return m.pending[0].Description, true
	}
	return "", false
}
