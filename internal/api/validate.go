package api

import (
	"regexp"
	"unicode/utf8"

	"github.com/flowpbx/voiceswitch/internal/call"
)

// maxShortStringLen is the maximum length for short identifiers (trunks,
// call identifiers, status values).
const maxShortStringLen = 40

// callsignRe accepts ATC callsigns such as OAK_TWR, OAK_33_CTR or N90_APP.
var callsignRe = regexp.MustCompile(`^[A-Za-z0-9]+(_[A-Za-z0-9]+)*$`)

// validateStringLen checks that a string does not exceed maxLen runes.
// Returns an error message if invalid, empty string if OK.
func validateStringLen(field, value string, maxLen int) string {
	if utf8.RuneCountInString(value) > maxLen {
		return field + " exceeds maximum length"
	}
	return ""
}

// validateRequiredStringLen checks that a non-empty string does not exceed maxLen.
func validateRequiredStringLen(field, value string, maxLen int) string {
	if value == "" {
		return field + " is required"
	}
	return validateStringLen(field, value, maxLen)
}

// validateCallsign checks an optional callsign.
func validateCallsign(field, value string) string {
	if value == "" {
		return ""
	}
	if msg := validateStringLen(field, value, maxShortStringLen); msg != "" {
		return msg
	}
	if !callsignRe.MatchString(value) {
		return field + " must be letters and digits separated by underscores"
	}
	return ""
}

// containsControlChars checks whether a string has control characters.
func containsControlChars(s string) bool {
	for _, r := range s {
		if r < 32 || r == 127 {
			return true
		}
	}
	return false
}

// validateNoControlChars rejects strings with control characters.
func validateNoControlChars(field, value string) string {
	if containsControlChars(value) {
		return field + " contains invalid characters"
	}
	return ""
}

// validateTrunk checks a trunk selection request.
func validateTrunk(req trunkRequest) string {
	if msg := validateRequiredStringLen("trunk", req.Trunk, maxShortStringLen); msg != "" {
		return msg
	}
	if msg := validateNoControlChars("trunk", req.Trunk); msg != "" {
		return msg
	}
	if _, ok := call.TrunkType(req.Type).Discriminator(); !ok {
		return "type must be one of ring, override, direct"
	}
	return ""
}
