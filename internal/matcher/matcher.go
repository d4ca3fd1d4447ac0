// Package matcher binds a live network identity to a local console
// position and UI variant.
package matcher

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/flowpbx/voiceswitch/internal/directory"
	"github.com/flowpbx/voiceswitch/internal/vnas"
)

// Method records which rule produced a match.
type Method string

const (
	MethodAFVDirect   Method = "afv-direct"
	MethodVatsimMatch Method = "vatsim-match"
	MethodVatsimInfer Method = "vatsim-infer"
	MethodFallback    Method = "fallback"
)

// Identity is who is operating the console. Callsign comes from the voice
// client in real time and is authoritative; AccountID is the network
// account number, zero when unknown.
type Identity struct {
	Callsign  string `json:"callsign"`
	AccountID int64  `json:"account_id,omitempty"`
}

// Match is the resolved position and UI. Position is nil when only a UI
// could be inferred.
type Match struct {
	Position   *directory.Position `json:"position"`
	UI         directory.UI        `json:"ui"`
	Method     Method              `json:"method"`
	Controller *vnas.Controller    `json:"controller,omitempty"`
}

// FeedSource retrieves the live controller list.
type FeedSource interface {
	Fetch(ctx context.Context) (*vnas.Feed, error)
}

// Matcher runs the position auto-detection.
type Matcher struct {
	feed   FeedSource
	logger *slog.Logger
}

// New creates a Matcher backed by feed. A nil feed limits detection to
// direct directory matches.
func New(feed FeedSource, logger *slog.Logger) *Matcher {
	return &Matcher{
		feed:   feed,
		logger: logger.With("subsystem", "matcher"),
	}
}

// AutoDetect resolves identity against dir. It returns nil when no position
// or UI can be determined, including when the feed cannot be fetched.
func (m *Matcher) AutoDetect(ctx context.Context, id Identity, dir *directory.Facility) *Match {
	if id.Callsign != "" {
		if p := dir.FindPosition(id.Callsign); p != nil {
			m.logger.Info("position matched directly", "callsign", id.Callsign)
			return &Match{Position: p, UI: p.UIOrDefault(), Method: MethodAFVDirect}
		}
	}

	if id.AccountID == 0 {
		m.logger.Debug("no direct match and no account id", "callsign", id.Callsign)
		return nil
	}
	if m.feed == nil {
		return nil
	}

	feed, err := m.feed.Fetch(ctx)
	if err != nil || feed == nil {
		m.logger.Warn("controller feed unavailable", "error", err)
		return nil
	}

	ctrl := feed.FindByCID(strconv.FormatInt(id.AccountID, 10))
	if ctrl == nil {
		ctrl = feed.FindByCallsign(id.Callsign)
	}
	if ctrl == nil {
		m.logger.Info("controller not in feed", "callsign", id.Callsign, "account_id", id.AccountID)
		return nil
	}

	if ctrl.Observer() {
		return &Match{UI: directory.UIVSCS, Method: MethodVatsimInfer, Controller: ctrl}
	}

	if p, rule := matchLocal(ctrl, dir); p != nil {
		m.logger.Info("position matched from feed",
			"callsign", ctrl.VatsimData.Callsign,
			"position", p.Callsign,
			"rule", rule,
		)
		return &Match{Position: p, UI: p.UIOrDefault(), Method: MethodVatsimMatch, Controller: ctrl}
	}

	ui := InferUI(ctrl)
	m.logger.Info("ui inferred from feed", "callsign", ctrl.VatsimData.Callsign, "ui", string(ui))
	return &Match{UI: ui, Method: MethodVatsimInfer, Controller: ctrl}
}

// Enrich looks up feed information for a direct match. It returns nil on
// any failure.
func (m *Matcher) Enrich(ctx context.Context, id Identity) *vnas.Controller {
	if m.feed == nil {
		return nil
	}
	feed, err := m.feed.Fetch(ctx)
	if err != nil || feed == nil {
		m.logger.Debug("enrichment fetch failed", "error", err)
		return nil
	}
	if ctrl := feed.FindByCallsign(id.Callsign); ctrl != nil {
		return ctrl
	}
	if id.AccountID != 0 {
		return feed.FindByCID(strconv.FormatInt(id.AccountID, 10))
	}
	return nil
}

// matchLocal tries the local rules in fixed order and returns the first
// position found together with the rule name.
func matchLocal(ctrl *vnas.Controller, dir *directory.Facility) (*directory.Position, string) {
	callsign := ctrl.VatsimData.Callsign

	if callsign != "" {
		if p := dir.FindPosition(callsign); p != nil {
			return p, "callsign"
		}
	}

	if primary := ctrl.PrimaryPosition(); primary != nil && primary.DefaultCallsign != "" {
		if p := dir.FindPosition(primary.DefaultCallsign); p != nil {
			return p, "default-callsign"
		}
	}

	if callsign != "" {
		want := NormalizeCallsign(callsign)
		if p := dir.FindFunc(func(p *directory.Position) bool {
			return NormalizeCallsign(p.Callsign) == want
		}); p != nil {
			return p, "normalized-callsign"
		}
	}

	if freq := ctrl.VatsimData.PrimaryFrequency; freq != 0 {
		if p := dir.FindFunc(func(p *directory.Position) bool {
			return p.Frequency == freq
		}); p != nil {
			return p, "frequency"
		}
	}

	return nil, ""
}

var numericInfix = regexp.MustCompile(`_\d+_`)

// NormalizeCallsign strips numeric infixes so that OAK_1_TWR and OAK_TWR
// compare equal.
func NormalizeCallsign(callsign string) string {
	return numericInfix.ReplaceAllString(callsign, "_")
}

// uiByType maps position and facility types to UI variants.
var uiByType = map[string]directory.UI{
	"artcc":     directory.UIVSCS,
	"tracon":    directory.UISTVS,
	"atct":      directory.UIETVS,
	"tower":     directory.UIETVS,
	"ground":    directory.UIETVS,
	"clearance": directory.UIETVS,
	"delivery":  directory.UIETVS,
}

// InferUI picks a UI from the controller's primary position type, falling
// back to its reported facility type, then to vscs.
func InferUI(ctrl *vnas.Controller) directory.UI {
	var kinds []string
	if p := ctrl.PrimaryPosition(); p != nil {
		kinds = append(kinds, p.PositionType)
	}
	kinds = append(kinds, ctrl.VatsimData.FacilityType)

	for _, k := range kinds {
		if ui, ok := uiByType[strings.ToLower(strings.TrimSpace(k))]; ok {
			return ui
		}
	}
	return directory.UIVSCS
}
