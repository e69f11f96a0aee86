package cmn

import (
	"strconv"
	"strings"
)

// SemVer is a minimal major.minor.patch parse — the cluster only ever
// compares major+minor compatibility (spec §4.E), so no third-party semver
// library earns its keep here; this is a handful of lines, not an ambient
// concern.
type SemVer struct {
	Major, Minor, Patch int
}

func ParseSemVer(s string) (SemVer, error) {
	parts := strings.SplitN(strings.TrimPrefix(s, "v"), ".", 3)
	if len(parts) < 2 {
		return SemVer{}, NewError(ProtocolUnknownCommand, "malformed version %q", s)
	}
	var v SemVer
	var err error
	if v.Major, err = strconv.Atoi(parts[0]); err != nil {
		return SemVer{}, NewError(ProtocolUnknownCommand, "malformed version %q", s)
	}
	if v.Minor, err = strconv.Atoi(parts[1]); err != nil {
		return SemVer{}, NewError(ProtocolUnknownCommand, "malformed version %q", s)
	}
	if len(parts) == 3 {
		// patch may carry a pre-release/build suffix; take the leading digits
		p := parts[2]
		end := 0
		for end < len(p) && p[end] >= '0' && p[end] <= '9' {
			end++
		}
		if end > 0 {
			v.Patch, _ = strconv.Atoi(p[:end])
		}
	}
	return v, nil
}

// CompatibleMajorMinor reports whether a and b share the same major and
// minor version (spec §4.E: "major+minor of version match the master's").
func (a SemVer) CompatibleMajorMinor(b SemVer) bool {
	return a.Major == b.Major && a.Minor == b.Minor
}

func (a SemVer) String() string {
	return strconv.Itoa(a.Major) + "." + strconv.Itoa(a.Minor) + "." + strconv.Itoa(a.Patch)
}
