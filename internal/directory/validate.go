package directory

import (
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"
)

// CodeLength is the width of a dial-line code.
const CodeLength = 2

const (
	maxCallsignLen = 40
	maxNameLen     = 200
	maxTrunkLen    = 40
)

// ErrInvalid is returned when a directory fails validation.
var ErrInvalid = errors.New("invalid directory")

// callsignRe accepts ATC callsigns such as OAK_TWR, OAK_33_CTR or N90_APP.
var callsignRe = regexp.MustCompile(`^[A-Za-z0-9]+(_[A-Za-z0-9]+)*$`)

// codeRe matches a dial-line code: exactly CodeLength digits.
var codeRe = regexp.MustCompile(fmt.Sprintf(`^[0-9]{%d}$`, CodeLength))

// ValidCode reports whether code has the shape of a dial-line code.
func ValidCode(code string) bool {
	return codeRe.MatchString(code)
}

// Validate checks every position under f. Positions need a well-formed
// callsign, a known UI if one is set, and two-digit codes with targets.
// A nil or empty facility is valid.
func (f *Facility) Validate() error {
	var err error
	f.Walk(func(fac *Facility, p *Position) bool {
		err = validatePosition(fac, p)
		return err == nil
	})
	return err
}

func validatePosition(f *Facility, p *Position) error {
	switch {
	case p.Callsign == "":
		return fmt.Errorf("%w: position in facility %s has no callsign", ErrInvalid, quoteOrRoot(f.ID))
	case utf8.RuneCountInString(p.Callsign) > maxCallsignLen:
		return fmt.Errorf("%w: callsign %s exceeds maximum length", ErrInvalid, p.Callsign)
	case !callsignRe.MatchString(p.Callsign):
		return fmt.Errorf("%w: callsign %q must be letters and digits separated by underscores", ErrInvalid, p.Callsign)
	case utf8.RuneCountInString(p.Name) > maxNameLen:
		return fmt.Errorf("%w: name of %s exceeds maximum length", ErrInvalid, p.Callsign)
	case p.UI != "" && !p.UI.Valid():
		return fmt.Errorf("%w: %s: ui must be one of vscs, stvs, etvs", ErrInvalid, p.Callsign)
	case p.Frequency < 0:
		return fmt.Errorf("%w: %s: frequency must not be negative", ErrInvalid, p.Callsign)
	}

	for trunk, codes := range p.DialCodes {
		if trunk == "" {
			return fmt.Errorf("%w: %s: trunk is required", ErrInvalid, p.Callsign)
		}
		if utf8.RuneCountInString(trunk) > maxTrunkLen {
			return fmt.Errorf("%w: %s: trunk %s exceeds maximum length", ErrInvalid, p.Callsign, trunk)
		}
		for code, target := range codes {
			if !ValidCode(code) {
				return fmt.Errorf("%w: %s: dial code %q on trunk %s must be two digits", ErrInvalid, p.Callsign, code, trunk)
			}
			if target == "" {
				return fmt.Errorf("%w: %s: dial code %s on trunk %s has no target", ErrInvalid, p.Callsign, code, trunk)
			}
		}
	}
	return nil
}

func quoteOrRoot(id string) string {
	if id == "" {
		return "(root)"
	}
	return `"` + id + `"`
}
