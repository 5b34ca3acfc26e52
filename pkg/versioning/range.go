// Package versioning parses version ranges and implements the version
// selection policy shared by the resolvers.
//
// Two range syntaxes are accepted. Interval notation uses brackets for
// inclusive and parentheses for exclusive bounds: "[1.0,2.0)", "(,3.0]",
// "[1.2.3]". Operator constraints such as ">= 1.0, < 2.0" or "~> 1.2" are
// handed to hashicorp/go-version. A bare version ("1.0") is a minimum
// inclusive bound and an empty string matches every version.
package versioning

import (
	"strings"

	"github.com/hashicorp/go-version"

	"github.com/glorpus-work/extly/pkg/errors"
)

// Range is a parsed version range. The zero value matches every version.
type Range struct {
	raw          string
	min          *version.Version
	max          *version.Version
	minInclusive bool
	maxInclusive bool
	constraints  version.Constraints
}

// Any returns a range that every version satisfies.
func Any() Range {
	return Range{}
}

// ParseRange parses s. Failures wrap errors.ErrInvalidVersionRange.
func ParseRange(s string) (Range, error) {
	raw := strings.TrimSpace(s)
	if raw == "" || raw == "*" {
		return Range{raw: raw}, nil
	}

	switch raw[0] {
	case '[', '(':
		return parseInterval(raw)
	}

	if strings.ContainsAny(raw, "<>=~!,") {
		c, err := version.NewConstraint(raw)
		if err != nil {
			return Range{}, errors.ErrInvalidVersionRangeWithValue(raw)
		}
		return Range{raw: raw, constraints: c}, nil
	}

	v, err := version.NewVersion(raw)
	if err != nil {
		return Range{}, errors.ErrInvalidVersionRangeWithValue(raw)
	}
	return Range{raw: raw, min: v, minInclusive: true}, nil
}

// MustParseRange is like ParseRange but panics on error.
func MustParseRange(s string) Range {
	r, err := ParseRange(s)
	if err != nil {
		panic(err)
	}
	return r
}

func parseInterval(raw string) (Range, error) {
	last := raw[len(raw)-1]
	if len(raw) < 3 || (last != ']' && last != ')') {
		return Range{}, errors.ErrInvalidVersionRangeWithValue(raw)
	}
	r := Range{
		raw:          raw,
		minInclusive: raw[0] == '[',
		maxInclusive: last == ']',
	}

	parts := strings.Split(raw[1:len(raw)-1], ",")
	switch len(parts) {
	case 1:
		// "[1.0]" pins an exact version.
		if !r.minInclusive || !r.maxInclusive {
			return Range{}, errors.ErrInvalidVersionRangeWithValue(raw)
		}
		v, err := version.NewVersion(strings.TrimSpace(parts[0]))
		if err != nil {
			return Range{}, errors.ErrInvalidVersionRangeWithValue(raw)
		}
		r.min, r.max = v, v
		return r, nil
	case 2:
	default:
		return Range{}, errors.ErrInvalidVersionRangeWithValue(raw)
	}

	lo, hi := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	if lo == "" && hi == "" {
		return Range{}, errors.ErrInvalidVersionRangeWithValue(raw)
	}
	if lo != "" {
		v, err := version.NewVersion(lo)
		if err != nil {
			return Range{}, errors.ErrInvalidVersionRangeWithValue(raw)
		}
		r.min = v
	} else {
		r.minInclusive = false
	}
	if hi != "" {
		v, err := version.NewVersion(hi)
		if err != nil {
			return Range{}, errors.ErrInvalidVersionRangeWithValue(raw)
		}
		r.max = v
	} else {
		r.maxInclusive = false
	}

	if r.min != nil && r.max != nil {
		cmp := r.min.Compare(r.max)
		if cmp > 0 || (cmp == 0 && !(r.minInclusive && r.maxInclusive)) {
			return Range{}, errors.ErrInvalidVersionRangeWithValue(raw)
		}
	}
	return r, nil
}

// String returns the range as written.
func (r Range) String() string {
	return r.raw
}

// IsAny reports whether the range places no restriction on versions.
func (r Range) IsAny() bool {
	return r.min == nil && r.max == nil && r.constraints == nil
}

// Satisfies reports whether v lies within the range. Prerelease filtering is
// left to the caller.
func (r Range) Satisfies(v *version.Version) bool {
	if v == nil {
		return false
	}
	if r.constraints != nil {
		return r.constraints.Check(v)
	}
	if r.min != nil {
		cmp := v.Compare(r.min)
		if cmp < 0 || (cmp == 0 && !r.minInclusive) {
			return false
		}
	}
	if r.max != nil {
		cmp := v.Compare(r.max)
		if cmp > 0 || (cmp == 0 && !r.maxInclusive) {
			return false
		}
	}
	return true
}

// HasLowerBound reports whether the range names a minimum version.
func (r Range) HasLowerBound() bool {
	if r.constraints != nil {
		for _, c := range r.constraints {
			op := strings.TrimSpace(c.String())
			if op == "" {
				continue
			}
			switch op[0] {
			case '>', '=', '~':
				return true
			}
			if op[0] >= '0' && op[0] <= '9' {
				return true
			}
		}
		return false
	}
	return r.min != nil
}

// IncludesPrerelease reports whether a bound of the range is itself a
// prerelease. Selection still requires explicit prerelease permission.
func (r Range) IncludesPrerelease() bool {
	if r.constraints != nil {
		return strings.Contains(r.constraints.String(), "-")
	}
	return (r.min != nil && r.min.Prerelease() != "") ||
		(r.max != nil && r.max.Prerelease() != "")
}

// IsPrerelease reports whether v carries a prerelease tag.
func IsPrerelease(v *version.Version) bool {
	return v != nil && v.Prerelease() != ""
}
