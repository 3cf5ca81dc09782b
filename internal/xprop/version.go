package xprop

import (
	"strings"

	"github.com/blang/semver/v4"
)

// ParseCompVersion decodes a COMPTON_VERSION-style string (as written by
// WriteStartupProperties, or read back from another compositor instance
// for diagnostics) into a semver.Version, tolerating a leading "v".
func ParseCompVersion(s string) (semver.Version, bool) {
	v, err := semver.Make(strings.TrimPrefix(s, "v"))
	if err != nil {
		return semver.Version{}, false
	}
	return v, true
}
