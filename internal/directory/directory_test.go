package directory

import (
	"reflect"
	"testing"
)

func testDirectory() *Facility {
	return &Facility{
		ID:   "ZOA",
		Name: "Oakland Center",
		Positions: []Position{
			{Callsign: "OAK_33_CTR", Frequency: 135100000, UI: UIVSCS},
		},
		ChildFacilities: []Facility{
			{
				ID:   "NCT",
				Name: "NorCal TRACON",
				Positions: []Position{
					{Callsign: "NCT_APP", Frequency: 135650000, UI: UISTVS},
				},
				ChildFacilities: []Facility{
					{
						ID: "OAK",
						Positions: []Position{
							{
								Callsign:  "OAK_TWR",
								Frequency: 118300000,
								DialCodes: DialCodeTable{
									"APCH": {"12": "N90", "13": "NCT_APP"},
								},
							},
						},
					},
				},
			},
		},
	}
}

func TestFindDialCodeTableNested(t *testing.T) {
	dir := testDirectory()

	table := dir.FindDialCodeTable("OAK_TWR")
	if table == nil {
		t.Fatal("expected dial code table for OAK_TWR")
	}
	if got := table["APCH"]["12"]; got != "N90" {
		t.Errorf("APCH/12 = %q, want %q", got, "N90")
	}
}

func TestFindDialCodeTableMisses(t *testing.T) {
	dir := testDirectory()

	if table := dir.FindDialCodeTable("SFO_TWR"); table != nil {
		t.Errorf("unknown callsign returned %v, want nil", table)
	}
	// Position exists but carries no table.
	if table := dir.FindDialCodeTable("NCT_APP"); table != nil {
		t.Errorf("position without codes returned %v, want nil", table)
	}
	// Exact match only.
	if table := dir.FindDialCodeTable("oak_twr"); table != nil {
		t.Errorf("case-folded callsign returned %v, want nil", table)
	}
}

func TestFindDialCodeTableIdempotent(t *testing.T) {
	dir := testDirectory()

	first := dir.FindDialCodeTable("OAK_TWR")
	second := dir.FindDialCodeTable("OAK_TWR")
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated lookups differ: %v vs %v", first, second)
	}
	if !reflect.DeepEqual(dir, testDirectory()) {
		t.Error("lookup mutated the directory")
	}
}

func TestWalkToleratesEmptyNodes(t *testing.T) {
	var nilDir *Facility
	if p := nilDir.FindPosition("X"); p != nil {
		t.Errorf("nil directory returned %v", p)
	}

	dir := &Facility{ChildFacilities: []Facility{{}, {ChildFacilities: []Facility{{}}}}}
	if n := dir.Count(); n != 0 {
		t.Errorf("Count() = %d, want 0", n)
	}
}

func TestWalkStopsEarly(t *testing.T) {
	dir := testDirectory()
	visited := 0
	dir.Walk(func(*Facility, *Position) bool {
		visited++
		return visited < 2
	})
	if visited != 2 {
		t.Errorf("visited = %d, want 2", visited)
	}
}

func TestResolveDialCode(t *testing.T) {
	table := DialCodeTable{"APCH": {"12": "N90"}}

	tests := []struct {
		name   string
		trunk  string
		code   string
		want   string
		wantOK bool
	}{
		{"hit", "APCH", "12", "N90", true},
		{"unknown code", "APCH", "99", "", false},
		{"unknown trunk", "MISSING", "12", "", false},
		{"no trimming", "APCH", " 12", "", false},
		{"case sensitive trunk", "apch", "12", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveDialCode(table, tt.trunk, tt.code)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ResolveDialCode(%q, %q) = (%q, %v), want (%q, %v)",
					tt.trunk, tt.code, got, ok, tt.want, tt.wantOK)
			}
		})
	}

	if _, ok := ResolveDialCode(nil, "APCH", "12"); ok {
		t.Error("nil table resolved a code")
	}
}

func TestParseFacilityTree(t *testing.T) {
	data := []byte(`{
		"id": "ZOA",
		"positions": [{"callsign": "OAK_33_CTR", "frequency": 135100000, "ui": "vscs"}],
		"childFacilities": [
			{"id": "OAK", "positions": [{"callsign": "OAK_TWR", "dialCodes": {"APCH": {"12": "N90"}}}]},
			{"id": "EMPTY"}
		]
	}`)

	dir, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	if n := dir.Count(); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
	if got, _ := ResolveDialCode(dir.FindDialCodeTable("OAK_TWR"), "APCH", "12"); got != "N90" {
		t.Errorf("resolved = %q, want N90", got)
	}
}

func TestParseFlatList(t *testing.T) {
	data := []byte(` [{"callsign": "OAK_TWR", "ui": "etvs"}, {"callsign": "OAK_GND"}]`)

	dir, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	p := dir.FindPosition("OAK_GND")
	if p == nil {
		t.Fatal("OAK_GND not found")
	}
	if p.UIOrDefault() != UIVSCS {
		t.Errorf("UIOrDefault() = %q, want vscs", p.UIOrDefault())
	}
	if got := dir.FindPosition("OAK_TWR").UI; got != UIETVS {
		t.Errorf("UI = %q, want etvs", got)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse([]byte(`{not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}
