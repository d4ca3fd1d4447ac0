// Package vnas fetches the live controller feed that identifies who is
// working which position on the network.
package vnas

import "time"

// Feed is the controller feed document.
type Feed struct {
	UpdatedAt   time.Time    `json:"updatedAt"`
	Controllers []Controller `json:"controllers"`
}

// Controller is one connected controller session.
type Controller struct {
	ArtccID           string     `json:"artccId"`
	PrimaryFacilityID string     `json:"primaryFacilityId"`
	PrimaryPositionID string     `json:"primaryPositionId"`
	Role              string     `json:"role"`
	Positions         []Position `json:"positions"`
	IsActive          bool       `json:"isActive"`
	IsObserver        bool       `json:"isObserver"`
	LoginTime         time.Time  `json:"loginTime"`
	VatsimData        VatsimData `json:"vatsimData"`
}

// Position is a position a controller has opened.
type Position struct {
	FacilityID      string `json:"facilityId"`
	FacilityName    string `json:"facilityName"`
	PositionID      string `json:"positionId"`
	PositionName    string `json:"positionName"`
	PositionType    string `json:"positionType"`
	RadioName       string `json:"radioName"`
	DefaultCallsign string `json:"defaultCallsign"`
	Frequency       int64  `json:"frequency"`
	IsPrimary       bool   `json:"isPrimary"`
	IsActive        bool   `json:"isActive"`
}

// VatsimData is the network identity attached to a controller session.
type VatsimData struct {
	CID              string `json:"cid"`
	RealName         string `json:"realName"`
	ControllerInfo   string `json:"controllerInfo"`
	UserRating       string `json:"userRating"`
	RequestedRating  string `json:"requestedRating"`
	Callsign         string `json:"callsign"`
	FacilityType     string `json:"facilityType"`
	PrimaryFrequency int64  `json:"primaryFrequency"`
}

// Observer reports whether the session is observing rather than
// controlling.
func (c *Controller) Observer() bool {
	return c.IsObserver || c.Role == "Observer"
}

// PrimaryPosition returns the controller's primary position, or nil.
func (c *Controller) PrimaryPosition() *Position {
	for i := range c.Positions {
		if c.Positions[i].IsPrimary {
			return &c.Positions[i]
		}
	}
	for i := range c.Positions {
		if c.Positions[i].PositionID != "" && c.Positions[i].PositionID == c.PrimaryPositionID {
			return &c.Positions[i]
		}
	}
	return nil
}

// HasCallsign reports whether callsign is the controller's own callsign or
// the default callsign of any of its positions.
func (c *Controller) HasCallsign(callsign string) bool {
	if c.VatsimData.Callsign == callsign {
		return true
	}
	for _, p := range c.Positions {
		if p.DefaultCallsign != "" && p.DefaultCallsign == callsign {
			return true
		}
	}
	return false
}

// FindByCID returns the controller with the given account id, or nil.
func (f *Feed) FindByCID(cid string) *Controller {
	if f == nil || cid == "" {
		return nil
	}
	for i := range f.Controllers {
		if f.Controllers[i].VatsimData.CID == cid {
			return &f.Controllers[i]
		}
	}
	return nil
}

// FindByCallsign returns the first controller matching callsign, or nil.
func (f *Feed) FindByCallsign(callsign string) *Controller {
	if f == nil || callsign == "" {
		return nil
	}
	for i := range f.Controllers {
		if f.Controllers[i].HasCallsign(callsign) {
			return &f.Controllers[i]
		}
	}
	return nil
}
