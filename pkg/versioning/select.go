package versioning

import (
	"sort"

	"github.com/hashicorp/go-version"
)

// ParseVersions parses every string in vs, skipping entries that are not
// valid versions.
func ParseVersions(vs []string) []*version.Version {
	out := make([]*version.Version, 0, len(vs))
	for _, s := range vs {
		v, err := version.NewVersion(s)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Sorted returns a copy of vs in ascending order.
func Sorted(vs []*version.Version) []*version.Version {
	out := make([]*version.Version, len(vs))
	copy(out, vs)
	sort.Sort(version.Collection(out))
	return out
}

// Allowed reports whether v may be picked for r. Prereleases need the
// caller's permission even when a bound of r is itself a prerelease, matching
// the rule the dependency cache validates against.
func Allowed(v *version.Version, r Range, allowPrerelease bool) bool {
	if IsPrerelease(v) && !allowPrerelease {
		return false
	}
	return r.Satisfies(v)
}

// FindBestMatch picks the version to use for r among versions. A range with a
// lower bound prefers the lowest satisfying version; an open range picks the
// highest allowed one. It returns nil when nothing qualifies.
func FindBestMatch(versions []*version.Version, r Range, allowPrerelease bool) *version.Version {
	var best *version.Version
	for _, v := range versions {
		if !Allowed(v, r, allowPrerelease) {
			continue
		}
		if Better(r, v, best) {
			best = v
		}
	}
	return best
}

// Better reports whether candidate is a better pick for r than current.
// A nil current always loses to a non-nil candidate.
func Better(r Range, candidate, current *version.Version) bool {
	if candidate == nil {
		return false
	}
	if current == nil {
		return true
	}
	if r.HasLowerBound() {
		return candidate.LessThan(current)
	}
	return candidate.GreaterThan(current)
}

// MinSatisfying returns the lowest version in versions that satisfies r,
// preferring stable releases and falling back to prereleases only when no
// stable version qualifies.
func MinSatisfying(versions []*version.Version, r Range) *version.Version {
	var stable, pre *version.Version
	for _, v := range versions {
		if !r.Satisfies(v) {
			continue
		}
		if IsPrerelease(v) {
			if pre == nil || v.LessThan(pre) {
				pre = v
			}
			continue
		}
		if stable == nil || v.LessThan(stable) {
			stable = v
		}
	}
	if stable != nil {
		return stable
	}
	return pre
}
