// Package directory holds the read-only facility/position index a console
// is configured from, and the per-position dial-code tables.
package directory

import (
	"encoding/json"
	"fmt"
)

// UI identifies a console presentation variant.
type UI string

const (
	UIVSCS UI = "vscs"
	UISTVS UI = "stvs"
	UIETVS UI = "etvs"
)

// Valid reports whether u is a known UI variant. The empty UI is not valid
// but is allowed on a Position, where it means "infer".
func (u UI) Valid() bool {
	switch u {
	case UIVSCS, UISTVS, UIETVS:
		return true
	}
	return false
}

// DialCodeTable maps trunk name -> 2-character code -> target identifier.
type DialCodeTable map[string]map[string]string

// Position is one operator console entry.
type Position struct {
	Callsign string `json:"callsign"`
	Name     string `json:"name,omitempty"`
	// Frequency in Hz. Zero means the position has no frequency.
	Frequency int64         `json:"frequency,omitempty"`
	UI        UI            `json:"ui,omitempty"`
	DialCodes DialCodeTable `json:"dialCodes,omitempty"`
}

// UIOrDefault returns the configured UI, or vscs when none is set.
func (p *Position) UIOrDefault() UI {
	if p.UI == "" {
		return UIVSCS
	}
	return p.UI
}

// Facility is a node of the directory tree. The root of a directory is a
// Facility, possibly with no ID when the configuration was a flat position
// list.
type Facility struct {
	ID              string     `json:"id,omitempty"`
	Name            string     `json:"name,omitempty"`
	Positions       []Position `json:"positions,omitempty"`
	ChildFacilities []Facility `json:"childFacilities,omitempty"`
}

// Parse decodes a directory from JSON. Both a facility object and a bare
// array of positions are accepted; absent arrays decode as empty.
func Parse(data []byte) (*Facility, error) {
	var probe json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decoding directory: %w", err)
	}

	root := &Facility{}
	if firstNonSpace(probe) == '[' {
		if err := json.Unmarshal(probe, &root.Positions); err != nil {
			return nil, fmt.Errorf("decoding position list: %w", err)
		}
		return root, nil
	}
	if err := json.Unmarshal(probe, root); err != nil {
		return nil, fmt.Errorf("decoding facility: %w", err)
	}
	return root, nil
}

func firstNonSpace(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return c
	}
	return 0
}

// Visitor is called for each position during Walk. Returning false stops
// the traversal.
type Visitor func(f *Facility, p *Position) bool

// Walk visits every position under f depth-first: a facility's own
// positions first, then each child facility in order. A nil facility is
// treated as empty.
func (f *Facility) Walk(fn Visitor) {
	f.walk(fn)
}

func (f *Facility) walk(fn Visitor) bool {
	if f == nil {
		return true
	}
	for i := range f.Positions {
		if !fn(f, &f.Positions[i]) {
			return false
		}
	}
	for i := range f.ChildFacilities {
		if !f.ChildFacilities[i].walk(fn) {
			return false
		}
	}
	return true
}

// FindPosition returns the first position whose callsign exactly equals
// callsign, or nil.
func (f *Facility) FindPosition(callsign string) *Position {
	return f.FindFunc(func(p *Position) bool { return p.Callsign == callsign })
}

// FindFunc returns the first position for which match returns true, or nil.
func (f *Facility) FindFunc(match func(p *Position) bool) *Position {
	var found *Position
	f.Walk(func(_ *Facility, p *Position) bool {
		if match(p) {
			found = p
			return false
		}
		return true
	})
	return found
}

// FindDialCodeTable returns the dial-code table of the position with the
// given callsign. It returns nil when the position does not exist or has
// no table.
func (f *Facility) FindDialCodeTable(callsign string) DialCodeTable {
	p := f.FindPosition(callsign)
	if p == nil || len(p.DialCodes) == 0 {
		return nil
	}
	return p.DialCodes
}

// Count returns the number of positions in the tree.
func (f *Facility) Count() int {
	n := 0
	f.Walk(func(*Facility, *Position) bool {
		n++
		return true
	})
	return n
}

// ResolveDialCode maps a code on a trunk to its target. Keys match exactly:
// no trimming and no case folding. Callers gate the 2-character length.
func ResolveDialCode(table DialCodeTable, trunk, code string) (string, bool) {
	codes, ok := table[trunk]
	if !ok {
		return "", false
	}
	target, ok := codes[code]
	return target, ok
}
