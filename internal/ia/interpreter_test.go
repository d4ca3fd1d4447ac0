package ia

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/flowpbx/voiceswitch/internal/command"
)

type recordingSender struct {
	sent []command.Command
}

func (r *recordingSender) Send(cmd command.Command) {
	r.sent = append(r.sent, cmd)
}

func newTestInterpreter(t *testing.T) (*Interpreter, *recordingSender) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	rec := &recordingSender{}
	return NewInterpreter(MustTable(DefaultFunctions), rec, logger), rec
}

func feed(it *Interpreter, digits string) []Result {
	results := make([]Result, 0, len(digits))
	for i := 0; i < len(digits); i++ {
		results = append(results, it.Digit(digits[i]))
	}
	return results
}

func TestSelfTestFiresAtTwoDigits(t *testing.T) {
	it, rec := newTestInterpreter(t)

	results := feed(it, "60")
	if results[0].Fired != nil {
		t.Fatal("fired after first digit")
	}
	if results[0].State != StateTyping {
		t.Errorf("state after 6 = %v, want Typing", results[0].State)
	}
	if results[0].Display != "Position Self-Test..." {
		t.Errorf("display after 6 = %q", results[0].Display)
	}
	if results[1].Fired == nil || results[1].Fired.Type != command.TypeIASelfTest {
		t.Fatalf("second digit fired %+v, want ia_selftest", results[1].Fired)
	}
	if len(rec.sent) != 1 {
		t.Errorf("sent %d commands, want 1", len(rec.sent))
	}
	if rec.sent[0].Dbl1 != nil || rec.sent[0].Cmd1 != "" {
		t.Errorf("self-test carries arguments: %+v", rec.sent[0])
	}
}

func TestTrunkCallFiresAtFourDigits(t *testing.T) {
	it, rec := newTestInterpreter(t)

	results := feed(it, "2123")
	for i := 0; i < 3; i++ {
		if results[i].Fired != nil {
			t.Fatalf("fired after %d digits", i+1)
		}
		if results[i].Display != "Trunk Call..." {
			t.Errorf("display after %d digits = %q", i+1, results[i].Display)
		}
	}
	if len(rec.sent) != 1 {
		t.Fatalf("sent %d commands, want 1", len(rec.sent))
	}
	got := rec.sent[0]
	if got.Type != command.TypeIACall || got.Cmd1 != "123" {
		t.Errorf("fired %+v, want ia_call cmd1=123", got)
	}
	if results[3].State != StateResolved || results[3].Display != "Trunk Call" {
		t.Errorf("final result = %+v", results[3])
	}
}

func TestIntercomSubtypes(t *testing.T) {
	tests := []struct {
		digits string
		typ    string
		cmd1   string
		dbl1   int
	}{
		{"0456", command.TypeIACall, "456", 1},
		{"1456", command.TypeIACall, "456", 0},
		{"3222", command.TypeIAForward, "222", -1},
		{"4111", command.TypeIAMonitor, "111", -1},
		{"9001", command.TypeIAReconfig, "001", -1},
	}
	for _, tt := range tests {
		t.Run(tt.digits, func(t *testing.T) {
			it, rec := newTestInterpreter(t)
			feed(it, tt.digits)
			if len(rec.sent) != 1 {
				t.Fatalf("sent %d commands, want 1", len(rec.sent))
			}
			got := rec.sent[0]
			if got.Type != tt.typ || got.Cmd1 != tt.cmd1 || got.Discriminator() != tt.dbl1 {
				t.Errorf("fired %+v (dbl1=%d), want %s/%s/%d", got, got.Discriminator(), tt.typ, tt.cmd1, tt.dbl1)
			}
		})
	}
}

func TestMaintenanceThenSubFunction(t *testing.T) {
	it, rec := newTestInterpreter(t)

	results := feed(it, "7000")
	if results[0].Display != "Maintenance Functions..." {
		t.Errorf("display after 7 = %q", results[0].Display)
	}
	if results[1].Fired == nil || results[1].Fired.Type != command.TypeIAMaint {
		t.Fatalf("70 fired %+v, want ia_maintenance", results[1].Fired)
	}
	if results[2].Fired != nil || results[2].State != StateTyping {
		t.Errorf("700 result = %+v, want typing", results[2])
	}
	if results[3].Fired == nil || results[3].Fired.Type != command.TypeIAClearAll {
		t.Fatalf("7000 fired %+v, want ia_clear_all", results[3].Fired)
	}
	if len(rec.sent) != 2 {
		t.Errorf("sent %d commands, want 2", len(rec.sent))
	}
}

func TestMaintenanceSubFunctions(t *testing.T) {
	want := map[string]string{
		"7001": command.TypeIAClearFwd,
		"7002": command.TypeIARecon,
		"7003": command.TypeIALCDTest,
		"7004": command.TypeIANotch,
	}
	for digits, typ := range want {
		it, rec := newTestInterpreter(t)
		feed(it, digits)
		if len(rec.sent) != 2 || rec.sent[1].Type != typ {
			t.Errorf("%s sent %+v, want maintenance then %s", digits, rec.sent, typ)
		}
	}
}

func TestUnknownCodeIsInert(t *testing.T) {
	it, rec := newTestInterpreter(t)

	results := feed(it, "5555")
	for i, r := range results {
		if r.State != StateUnknown || r.Display != "" || !r.Accepted {
			t.Errorf("digit %d result = %+v, want accepted unknown", i, r)
		}
	}
	if len(rec.sent) != 0 {
		t.Errorf("sent %d commands, want 0", len(rec.sent))
	}
}

func TestDigitCap(t *testing.T) {
	it, rec := newTestInterpreter(t)

	feed(it, "2123")
	r := it.Digit('4')
	if r.Accepted {
		t.Error("fifth digit accepted")
	}
	if it.Digits() != "2123" {
		t.Errorf("Digits() = %q, want 2123", it.Digits())
	}
	if len(rec.sent) != 1 {
		t.Errorf("sent %d commands, want 1", len(rec.sent))
	}
}

func TestOvershootAfterFireKeepsResolved(t *testing.T) {
	it, rec := newTestInterpreter(t)

	feed(it, "601")
	if it.State() != StateResolved {
		t.Errorf("State() = %v, want Resolved", it.State())
	}
	if it.Display() != "" {
		t.Errorf("Display() = %q, want empty", it.Display())
	}
	if len(rec.sent) != 1 {
		t.Errorf("sent %d commands, want 1", len(rec.sent))
	}
}

func TestClearCancelsPending(t *testing.T) {
	it, rec := newTestInterpreter(t)

	feed(it, "21")
	r := it.Digit('*')
	if r.State != StateEmpty || r.Digits != "" {
		t.Errorf("after clear = %+v", r)
	}
	feed(it, "23")
	if len(rec.sent) != 0 {
		t.Errorf("sent %d commands after clear, want 0", len(rec.sent))
	}
	feed(it, "45")
	if len(rec.sent) != 1 || rec.sent[0].Cmd1 != "345" {
		t.Errorf("sent %+v, want one ia_call cmd1=345", rec.sent)
	}
}

func TestNonDigitIgnored(t *testing.T) {
	it, _ := newTestInterpreter(t)
	if r := it.Digit('#'); r.Accepted || r.State != StateEmpty {
		t.Errorf("# result = %+v, want ignored", r)
	}
}

func TestNewTableRejectsAmbiguity(t *testing.T) {
	tests := []struct {
		name string
		fns  []Function
	}{
		{"same length nested", []Function{
			{Prefix: "2", TotalDigits: 4},
			{Prefix: "21", TotalDigits: 4},
		}},
		{"nested inserted first", []Function{
			{Prefix: "21", TotalDigits: 4},
			{Prefix: "2", TotalDigits: 4},
		}},
		{"shorter completes after longer prefix", []Function{
			{Prefix: "7", TotalDigits: 3},
			{Prefix: "70", TotalDigits: 4},
		}},
		{"duplicate", []Function{
			{Prefix: "60", TotalDigits: 2},
			{Prefix: "60", TotalDigits: 2},
		}},
		{"non digit", []Function{{Prefix: "6A", TotalDigits: 2}}},
		{"over cap", []Function{{Prefix: "6", TotalDigits: 5}}},
		{"prefix longer than total", []Function{{Prefix: "600", TotalDigits: 2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTable(tt.fns); !errors.Is(err, ErrInvalidTable) {
				t.Errorf("NewTable() error = %v, want ErrInvalidTable", err)
			}
		})
	}
}

func TestDefaultTableValid(t *testing.T) {
	if _, err := NewTable(DefaultFunctions); err != nil {
		t.Fatalf("NewTable(DefaultFunctions) error: %v", err)
	}
}
