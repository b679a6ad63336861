package domain

import (
	"fmt"
	"strings"
)

// Zone names one of the nested, color-keyed regions on the board.
type Zone string

const (
	ZoneCenter Zone = "CENTER" // innermost, not playable
	ZoneGreen  Zone = "GREEN"
	ZoneRed    Zone = "RED"
	ZoneBlue   Zone = "BLUE"
)

// Zones lists every zone the classifier knows, innermost first.
var Zones = []Zone{ZoneCenter, ZoneGreen, ZoneRed, ZoneBlue}

// PlayableZones lists the zones a wager may target.
var PlayableZones = []Zone{ZoneGreen, ZoneRed, ZoneBlue}

// Valid reports whether z is a known zone.
func (z Zone) Valid() bool {
	for _, k := range Zones {
		if z == k {
			return true
		}
	}
	return false
}

// Playable reports whether wagers may be placed on z.
func (z Zone) Playable() bool {
	for _, k := range PlayableZones {
		if z == k {
			return true
		}
	}
	return false
}

// ParseZone normalises s and returns the matching zone.
func ParseZone(s string) (Zone, error) {
	z := Zone(strings.ToUpper(strings.TrimSpace(s)))
	if !z.Valid() {
		return "", fmt.Errorf("unknown zone %q", s)
	}
	return z, nil
}

// Verdict is the outcome of a classification attempt: a zone name or one of
// the non-zone values below.
type Verdict string

const (
	// VerdictOutside means the marker was found but lies inside no zone.
	VerdictOutside Verdict = "OUTSIDE"
	// VerdictNoMarker means marker detection itself failed.
	VerdictNoMarker Verdict = "NO_MARKER"
	// VerdictNone is the "no determination" sentinel. Settling with it
	// declares the round without a winner.
	VerdictNone Verdict = "NONE"
)

// VerdictFor returns the verdict naming zone z.
func VerdictFor(z Zone) Verdict { return Verdict(z) }

// Zone returns the zone named by v, if any.
func (v Verdict) Zone() (Zone, bool) {
	z := Zone(v)
	return z, z.Valid()
}

// Valid reports whether v is a known verdict.
func (v Verdict) Valid() bool {
	if _, ok := v.Zone(); ok {
		return true
	}
	switch v {
	case VerdictOutside, VerdictNoMarker, VerdictNone:
		return true
	}
	return false
}

// Playable reports whether v names a zone that wagers can win on.
func (v Verdict) Playable() bool {
	z, ok := v.Zone()
	return ok && z.Playable()
}

// Settleable reports whether a round may be closed out with v. Detection
// failures are not; the operator retakes the capture or settles with
// VerdictNone explicitly.
func (v Verdict) Settleable() bool {
	return v.Valid() && v != VerdictNoMarker
}

// ParseVerdict normalises s and returns the matching verdict.
func ParseVerdict(s string) (Verdict, error) {
	v := Verdict(strings.ToUpper(strings.TrimSpace(s)))
	if !v.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidVerdict, s)
	}
	return v, nil
}
