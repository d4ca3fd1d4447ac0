package console

import (
	"time"

	"github.com/flowpbx/voiceswitch/internal/call"
	"github.com/flowpbx/voiceswitch/internal/matcher"
)

// IAView is the presentation state of the IA keypad.
type IAView struct {
	State   string `json:"state"`
	Digits  string `json:"digits"`
	Display string `json:"display"`
}

// View is a point-in-time snapshot of a console.
type View struct {
	ID        string           `json:"id"`
	Callsign  string           `json:"callsign,omitempty"`
	Position  string           `json:"position,omitempty"`
	UI        string           `json:"ui,omitempty"`
	Identity  matcher.Identity `json:"identity"`
	Match     *matcher.Match   `json:"match,omitempty"`
	Mode      call.Mode        `json:"mode,omitempty"`
	Call      *call.Snapshot   `json:"call,omitempty"`
	IA        *IAView          `json:"ia,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// View returns the console's current snapshot.
func (c *Console) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Console) viewLocked() View {
	v := View{
		ID:        c.id,
		Callsign:  c.callsign,
		Position:  c.positionLocked(),
		Identity:  c.identity,
		Match:     c.match,
		Mode:      c.mode,
		CreatedAt: c.createdAt,
	}
	if c.match != nil {
		v.UI = string(c.match.UI)
	}
	if c.session != nil {
		snap := c.session.Snapshot()
		v.Call = &snap
	}
	if c.ia != nil {
		v.IA = &IAView{
			State:   c.ia.State().String(),
			Digits:  c.ia.Digits(),
			Display: c.ia.Display(),
		}
	}
	return v
}

// callState returns the dial session state, if a dial session is open.
func (c *Console) callState() (call.State, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return 0, false
	}
	return c.session.State(), true
}
