// Package command defines the messages a console sends to the voice switch
// transport and the status events it receives back.
package command

// Outbound command types.
const (
	TypeTrunkSelect = "trunk_select"
	TypeDial        = "dial"
	TypeStop        = "stop"

	TypeIACall     = "ia_call"
	TypeIAForward  = "ia_forward"
	TypeIAMonitor  = "ia_monitor"
	TypeIAReconfig = "ia_reconfig"
	TypeIASelfTest = "ia_selftest"
	TypeIAMaint    = "ia_maintenance"
	TypeIAClearAll = "ia_clear_all"
	TypeIAClearFwd = "ia_clear_forward"
	TypeIARecon    = "ia_recon"
	TypeIALCDTest  = "ia_lcd_test"
	TypeIANotch    = "ia_notch_filter"
)

// Command is one outbound message. Dbl1 is a pointer so a zero
// discriminator is still sent.
type Command struct {
	Type string `json:"type"`
	Cmd1 string `json:"cmd1,omitempty"`
	Dbl1 *int   `json:"dbl1,omitempty"`
}

// New builds a command carrying an argument and a discriminator.
func New(typ, cmd1 string, dbl1 int) Command {
	return Command{Type: typ, Cmd1: cmd1, Dbl1: &dbl1}
}

// Discriminator returns Dbl1, or -1 when it is unset.
func (c Command) Discriminator() int {
	if c.Dbl1 == nil {
		return -1
	}
	return *c.Dbl1
}

// Sender delivers commands to the transport. Delivery is fire-and-forget;
// implementations log their own failures.
type Sender interface {
	Send(cmd Command)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(cmd Command)

// Send calls f(cmd).
func (f SenderFunc) Send(cmd Command) { f(cmd) }

// StatusEvent is an inbound call status update.
type StatusEvent struct {
	Call   string `json:"call"`
	Status string `json:"status"`
}
