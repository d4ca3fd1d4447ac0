package call

import "time"

// Tone names a progress tone and how long one cadence of it lasts. Playback
// belongs to the host; the session only selects the tone.
type Tone struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

var (
	KeyTone      = Tone{Name: "key", Duration: 100 * time.Millisecond}
	RingbackTone = Tone{Name: "ringback", Duration: 6 * time.Second}
	BusyTone     = Tone{Name: "busy", Duration: time.Second}
	ReorderTone  = Tone{Name: "reorder", Duration: 500 * time.Millisecond}
)

// ToneFor returns the tone to play in state s. ringback is true once the far
// end reported it is being alerted.
func ToneFor(s State, ringback bool) (Tone, bool) {
	switch {
	case s == StateCalling && ringback:
		return RingbackTone, true
	case s == StateBusy:
		return BusyTone, true
	case s == StateNoAnswer:
		return ReorderTone, true
	}
	return Tone{}, false
}
