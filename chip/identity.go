// Package chip identifies embedded devices by probing them over a remote
// serial path and parsing the discovery tool's textual output.
package chip

import (
	"fmt"
	"regexp"
	"strings"
)

// Identity is the result of a successful discovery probe. At least one of
// ChipID and MAC is non-empty; a probe that yields neither is "no identity",
// not an Identity.
type Identity struct {
	ChipType   string
	ChipID     string
	MAC        string
	DevicePath string
}

// ID returns the canonical identity string: the chip ID when present,
// otherwise the MAC.
func (id Identity) ID() string {
	if id.ChipID != "" {
		return id.ChipID
	}
	return id.MAC
}

var (
	chipTypePattern = regexp.MustCompile(`(?:Chip is|Chip type:)\s*(\S+)`)
	chipIDPattern   = regexp.MustCompile(`Chip ID: (0x[0-9a-fA-F]+)`)
	macPattern      = regexp.MustCompile(`MAC:\s+([0-9a-fA-F:]+)`)
)

// ParseIdentity extracts a chip identity from free-text discovery output.
// It tolerates surrounding noise and takes only the first MAC line: the tool
// reports the flash MAC first and may emit further MACs for other radios.
// ok is false when neither a chip ID nor a MAC was found, even if the chip
// type was.
func ParseIdentity(output, devicePath string) (identity Identity, ok bool) {
	identity.DevicePath = devicePath

	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.Contains(line, "Chip is") || strings.Contains(line, "Chip type:"):
			if m := chipTypePattern.FindStringSubmatch(line); m != nil {
				identity.ChipType = m[1]
			}
		case strings.Contains(line, "Chip ID:"):
			if m := chipIDPattern.FindStringSubmatch(line); m != nil {
				identity.ChipID = m[1]
			}
		case strings.Contains(line, "MAC:") && identity.MAC == "":
			if m := macPattern.FindStringSubmatch(line); m != nil {
				identity.MAC = m[1]
			}
		}
	}

	return identity, identity.ChipID != "" || identity.MAC != ""
}

// Verify compares a discovered identity against the recorded one. Matching is
// case-insensitive and tries, in order: the combined identity (chip ID if
// present, else MAC), the chip ID alone, then the MAC alone. Registries may
// hold either form depending on chip family, so any of the three counts.
func Verify(identity Identity, expected string) (matched bool, detail string) {
	actual := identity.ID()
	if actual == "" {
		return false, "no chip ID or MAC found"
	}

	if strings.EqualFold(actual, expected) {
		return true, fmt.Sprintf("Verified: %s", actual)
	}
	if identity.ChipID != "" && strings.EqualFold(identity.ChipID, expected) {
		return true, fmt.Sprintf("Chip ID verified: %s", identity.ChipID)
	}
	if identity.MAC != "" && strings.EqualFold(identity.MAC, expected) {
		return true, fmt.Sprintf("MAC verified: %s", identity.MAC)
	}

	return false, fmt.Sprintf("Mismatch: expected %s, got %s", expected, actual)
}
