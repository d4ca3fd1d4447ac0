package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowpbx/voiceswitch/internal/directory"
)

type fakeConsoles struct{}

func (fakeConsoles) Count() int { return 3 }
func (fakeConsoles) SessionStates() map[string]int {
	return map[string]int{"Calling": 1, "Connected": 2}
}
func (fakeConsoles) MatchCounts() map[string]uint64 {
	return map[string]uint64{"afv-direct": 4}
}
func (fakeConsoles) Directory() *directory.Facility {
	return &directory.Facility{Positions: []directory.Position{{Callsign: "A"}, {Callsign: "B"}}}
}

type fakeTransport struct{}

func (fakeTransport) Connections() int { return 1 }
func (fakeTransport) CommandCounts() map[string]uint64 {
	return map[string]uint64{"dial": 5, "stop": 2}
}
func (fakeTransport) Undelivered() uint64 { return 1 }

type fakeDB struct{ err error }

func (f fakeDB) PingContext(context.Context) error { return f.err }

// gather registers c and returns each sample keyed by name and the value of
// its single label, if any.
func gather(t *testing.T, c prometheus.Collector) map[string]float64 {
	t.Helper()
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	out := make(map[string]float64)
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range m.GetLabel() {
				key += "/" + lp.GetValue()
			}
			switch {
			case m.GetGauge() != nil:
				out[key] = m.GetGauge().GetValue()
			case m.GetCounter() != nil:
				out[key] = m.GetCounter().GetValue()
			}
		}
	}
	return out
}

func TestCollector(t *testing.T) {
	got := gather(t, NewCollector(fakeConsoles{}, fakeTransport{}, fakeDB{}, time.Now()))

	want := map[string]float64{
		"voiceswitch_consoles_active":            3,
		"voiceswitch_sessions/Calling":           1,
		"voiceswitch_sessions/Connected":         2,
		"voiceswitch_sessions/TrunkSelect":       0,
		"voiceswitch_sessions/NoAnswer":          0,
		"voiceswitch_commands_sent_total/dial":   5,
		"voiceswitch_commands_sent_total/stop":   2,
		"voiceswitch_commands_undelivered_total": 1,
		"voiceswitch_transport_connections":      1,
		"voiceswitch_matches_total/afv-direct":   4,
		"voiceswitch_matches_total/fallback":     0,
		"voiceswitch_directory_positions":        2,
		"voiceswitch_database_up":                1,
	}
	for key, v := range want {
		gv, ok := got[key]
		if !ok {
			t.Errorf("metric %s missing", key)
			continue
		}
		if gv != v {
			t.Errorf("%s = %v, want %v", key, gv, v)
		}
	}
	if _, ok := got["voiceswitch_uptime_seconds"]; !ok {
		t.Error("uptime metric missing")
	}
}

func TestCollectorNilProviders(t *testing.T) {
	got := gather(t, NewCollector(nil, nil, nil, time.Now()))

	// Only uptime is reported.
	if len(got) != 1 {
		t.Errorf("collected %d samples, want 1: %v", len(got), got)
	}
}

func TestCollectorDatabaseDown(t *testing.T) {
	got := gather(t, NewCollector(nil, nil, fakeDB{err: errors.New("closed")}, time.Now()))

	if got["voiceswitch_database_up"] != 0 {
		t.Errorf("voiceswitch_database_up = %v, want 0", got["voiceswitch_database_up"])
	}
}
