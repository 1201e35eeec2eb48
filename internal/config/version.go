package config

import (
	"cmp"
	"fmt"
	"strconv"
	"strings"
)

// SchemaVersion is a config schema version of the form MAJOR.MINOR.
type SchemaVersion struct {
	Major int
	Minor int
}

// SupportedVersions lists every schema version this build can read.
var SupportedVersions = []SchemaVersion{
	{Major: 1, Minor: 0},
}

// ParseVersion parses "1.0". An empty string is treated as 1.0.
func ParseVersion(s string) (SchemaVersion, error) {
	if s == "" {
		return SchemaVersion{Major: 1, Minor: 0}, nil
	}

	majorStr, minorStr, ok := strings.Cut(s, ".")
	if !ok || strings.Contains(minorStr, ".") {
		return SchemaVersion{}, fmt.Errorf("invalid version format: %s (expected X.Y)", s)
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil || major < 0 {
		return SchemaVersion{}, fmt.Errorf("invalid major version: %s", majorStr)
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil || minor < 0 {
		return SchemaVersion{}, fmt.Errorf("invalid minor version: %s", minorStr)
	}
	return SchemaVersion{Major: major, Minor: minor}, nil
}

func (v SchemaVersion) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// Compare orders versions by major then minor, returning -1, 0 or 1.
func (v SchemaVersion) Compare(other SchemaVersion) int {
	if c := cmp.Compare(v.Major, other.Major); c != 0 {
		return c
	}
	return cmp.Compare(v.Minor, other.Minor)
}

// IsSupportedVersion reports whether a reader exists for v's major version.
// Minor bumps only add optional attributes.
func IsSupportedVersion(v SchemaVersion) bool {
	for _, supported := range SupportedVersions {
		if v.Major == supported.Major {
			return true
		}
	}
	return false
}
