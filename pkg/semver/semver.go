// Package semver compares the loosely formatted version strings that package
// managers report. It handles dotted-numeric versions of any length with an
// optional prerelease suffix, and refuses to order anything else.
package semver

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrUnsupported is returned for version strings that cannot be ordered,
// e.g. floating constraints, epochs, or non-numeric segments.
var ErrUnsupported = errors.New("unsupported version")

// Version is a parsed version string.
type Version struct {
	raw  string
	nums []int
	pre  []string
}

// Parse parses a version string. Accepted forms are dotted numeric segments
// with an optional leading "v", an optional prerelease suffix after "-", and
// optional build metadata after "+" (ignored). Any other shape returns
// [ErrUnsupported].
func Parse(s string) (Version, error) {
	v := Version{raw: s}

	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return v, fmt.Errorf("%w: empty string", ErrUnsupported)
	}

	if len(trimmed) > 1 && (trimmed[0] == 'v' || trimmed[0] == 'V') && trimmed[1] >= '0' && trimmed[1] <= '9' {
		trimmed = trimmed[1:]
	}

	// Build metadata does not participate in ordering.
	if idx := strings.IndexByte(trimmed, '+'); idx >= 0 {
		trimmed = trimmed[:idx]
	}

	if idx := strings.IndexByte(trimmed, '-'); idx >= 0 {
		pre := trimmed[idx+1:]
		trimmed = trimmed[:idx]

		if pre == "" {
			return v, fmt.Errorf("%w: %q: empty prerelease", ErrUnsupported, s)
		}

		v.pre = strings.Split(pre, ".")
	}

	for _, part := range strings.Split(trimmed, ".") {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return v, fmt.Errorf("%w: %q: segment %q is not numeric", ErrUnsupported, s, part)
		}

		v.nums = append(v.nums, n)
	}

	return v, nil
}

// MustParse parses a version string, panicking on failure.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("failed to parse version: %v", err))
	}

	return v
}

func (v Version) String() string {
	return v.raw
}

// Compare returns -1, 0, or 1 when v is lower than, equal to, or higher than
// o. Numeric segments compare by value with the shorter version zero-padded.
// A prerelease orders below the same version without one.
func (v Version) Compare(o Version) int {
	segs := len(v.nums)
	if len(o.nums) > segs {
		segs = len(o.nums)
	}

	for i := range segs {
		a, b := 0, 0
		if i < len(v.nums) {
			a = v.nums[i]
		}
		if i < len(o.nums) {
			b = o.nums[i]
		}

		if a != b {
			return sign(a - b)
		}
	}

	return comparePre(v.pre, o.pre)
}

// comparePre orders prerelease identifier lists. No prerelease is highest,
// numeric identifiers order below alphanumeric ones, and a longer list wins
// over its own prefix.
func comparePre(a, b []string) int {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	if len(a) == 0 {
		return 1
	}
	if len(b) == 0 {
		return -1
	}

	for i := 0; i < len(a) && i < len(b); i++ {
		an, aNum := asNumber(a[i])
		bn, bNum := asNumber(b[i])

		switch {
		case aNum && bNum:
			if an != bn {
				return sign(an - bn)
			}
		case aNum:
			return -1
		case bNum:
			return 1
		default:
			if a[i] != b[i] {
				if a[i] < b[i] {
					return -1
				}

				return 1
			}
		}
	}

	return sign(len(a) - len(b))
}

func asNumber(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, false
	}

	return n, true
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}

// Compare orders two version strings. It returns [ErrUnsupported] when
// either side does not parse.
func Compare(a, b string) (int, error) {
	av, err := Parse(a)
	if err != nil {
		return 0, err
	}

	bv, err := Parse(b)
	if err != nil {
		return 0, err
	}

	return av.Compare(bv), nil
}

// IsNewer reports whether latest is a higher version than current. Empty
// strings, development builds, and versions that do not parse are never
// considered newer.
func IsNewer(current, latest string) bool {
	if current == "" || latest == "" || current == "dev" {
		return false
	}

	c, err := Compare(current, latest)
	if err != nil {
		return false
	}

	return c < 0
}

// Max returns the highest of the given version strings. Every version must
// parse; refusing to guess beats silently mis-ordering a prune pass.
func Max(versions []string) (string, error) {
	if len(versions) == 0 {
		return "", fmt.Errorf("%w: no versions", ErrUnsupported)
	}

	highest, err := Parse(versions[0])
	if err != nil {
		return "", err
	}

	for _, s := range versions[1:] {
		v, err := Parse(s)
		if err != nil {
			return "", err
		}

		if v.Compare(highest) > 0 {
			highest = v
		}
	}

	return highest.String(), nil
}
