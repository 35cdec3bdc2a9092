package semver

import (
	"fmt"
	"regexp"
	"strings"

	mmsemver "github.com/Masterminds/semver/v3"
)

// Patterns for version classification.
//
// The coercive pattern deliberately accepts sloppy forms seen in the
// wild: a "name@" prefix, a leading v/V, zero-padded components, and a
// missing minor or patch.
var (
	strictRE = regexp.MustCompile(
		`^(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)\.(0|[1-9][0-9]*)(-[-0-9A-Za-z_+.]+)?$`)

	coerceRE = regexp.MustCompile(
		`^(?:.*@)?[vV]?0*([0-9]+)(?:\.0*([0-9]+)(?:\.0*([0-9]+))?)?(-[-0-9A-Za-z_+.]+)?$`)

	// Matches Y-M-D and M-D-Y date versions such as "2023-05-31".
	// Date versions are never treated as semvers.
	dateRE = regexp.MustCompile(
		`^([12][0-9][0-9][0-9]-[0-1]?[0-9]-[0-3]?[0-9]|[0-1]?[0-9]-[0-3]?[0-9]-[12][0-9][0-9][0-9])(-[-0-9A-Za-z_+.]+)?$`)
)

// IsSemver reports whether version is already a strict semver.
func IsSemver(version string) bool {
	return strictRE.MatchString(version)
}

// IsDate reports whether version is a `-`-separated date string.
func IsDate(version string) bool {
	return dateRE.MatchString(version)
}

// Coerce loosens version into a strict "major.minor.patch[-pre]"
// semver, filling missing components with zeros, e.g. "1.2" becomes
// "1.2.0" and "v0.9-beta" becomes "0.9.0-beta". It returns ok=false
// for date versions and anything else that cannot be coerced.
func Coerce(version string) (coerced string, ok bool) {
	if IsSemver(version) {
		return version, true
	}
	if IsDate(version) {
		return "", false
	}
	match := coerceRE.FindStringSubmatch(version)
	if match == nil {
		return "", false
	}
	major, minor, patch, pre := match[1], match[2], match[3], match[4]
	if minor == "" {
		minor = "0"
	}
	if patch == "" {
		patch = "0"
	}
	return fmt.Sprintf("%s.%s.%s%s", major, minor, patch, pre), true
}

// ignoredRanges match everything; Filter short-circuits on them rather
// than handing them to the constraint parser.
var ignoredRanges = map[string]bool{
	"":   true,
	"*":  true,
	"any": true,
	"^*": true,
	"~*": true,
	"x":  true,
	"X":  true,
}

// MatchesAll reports whether rang places no restriction on versions.
func MatchesAll(rang string) bool {
	return ignoredRanges[strings.TrimSpace(rang)]
}

// Filter returns the subset of versions satisfying the node-style
// range rang, preserving input order. Versions are coerced before the
// check, so "1.2" satisfies "^1.2.0" as "1.2.0"; versions that cannot
// be coerced never satisfy a restrictive range.
//
// Pre-release versions are included whenever their release part
// satisfies the range, mirroring `semver --include-prerelease`.
func Filter(rang string, versions []string) ([]string, error) {
	if MatchesAll(rang) {
		out := make([]string, len(versions))
		copy(out, versions)
		return out, nil
	}

	constraint, err := mmsemver.NewConstraint(rang)
	if err != nil {
		return nil, fmt.Errorf("invalid semver range %q: %w", rang, err)
	}

	var out []string
	for _, version := range versions {
		coerced, ok := Coerce(version)
		if !ok {
			continue
		}
		v, err := mmsemver.NewVersion(coerced)
		if err != nil {
			continue
		}
		if constraint.Check(v) || checkWithoutPre(constraint, v) {
			out = append(out, version)
		}
	}
	return out, nil
}

// checkWithoutPre retries a failed constraint check against the release
// part of a pre-release version. The constraint grammar only admits
// pre-releases when the range itself names one; stripping the tag here
// gives the include-prerelease behavior queries expect.
func checkWithoutPre(constraint *mmsemver.Constraints, v *mmsemver.Version) bool {
	if v.Prerelease() == "" {
		return false
	}
	release, err := v.SetPrerelease("")
	if err != nil {
		return false
	}
	return constraint.Check(&release)
}
