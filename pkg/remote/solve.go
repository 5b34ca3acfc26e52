package remote

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/glorpus-work/extly/pkg/errors"
	"github.com/glorpus-work/extly/pkg/versioning"
)

// maxSolveSteps bounds the backtracking search.
const maxSolveSteps = 100000

// solver assigns at most one node per package id so that every dependency
// range of an assigned node holds. A nil assignment leaves the id out.
type solver struct {
	ctx        context.Context
	ids        []string
	index      map[string]int
	candidates [][]*node
	required   map[string][]versioning.Range
	assign     []*node

	steps   int
	deepest int
	err     error
}

// solve runs the consistency pass over the discovered pool. Roots prefer
// their selected version, then newer ones; everything else prefers the
// oldest version that satisfies every constraint. Packages no longer
// reachable from a root or an additional request are dropped.
func solve(ctx context.Context, p *pool, roots []*rootRequest, extra []constraint) ([]*node, error) {
	s := &solver{
		ctx:      ctx,
		ids:      p.order,
		index:    make(map[string]int, len(p.order)),
		required: make(map[string][]versioning.Range),
		assign:   make([]*node, len(p.order)),
	}
	for i, id := range p.order {
		s.index[id] = i
	}
	for _, c := range extra {
		key := strings.ToLower(c.id)
		s.required[key] = append(s.required[key], c.rng)
	}

	rootByID := make(map[string]*rootRequest, len(roots))
	for _, root := range roots {
		rootByID[strings.ToLower(root.spec.PackageID)] = root
	}

	s.candidates = make([][]*node, len(p.order))
	for i, id := range p.order {
		if root, ok := rootByID[id]; ok {
			s.candidates[i] = rootCandidates(p.byID[id], root)
			continue
		}
		cands := ascending(p.byID[id])
		if _, needed := s.required[id]; !needed {
			cands = append(cands, nil)
		}
		s.candidates[i] = cands
	}

	if !s.search(0) {
		if s.err != nil {
			return nil, s.err
		}
		failed := ""
		if s.deepest < len(s.ids) {
			failed = p.byID[s.ids[s.deepest]][0].identity.ID
		}
		return nil, fmt.Errorf("%w: %s", errors.ErrVersionConflict, failed)
	}

	return s.reachable(roots, extra), nil
}

func (s *solver) search(i int) bool {
	if i == len(s.ids) {
		return true
	}
	if i > s.deepest {
		s.deepest = i
	}
	s.steps++
	if s.steps > maxSolveSteps {
		s.err = fmt.Errorf("%w: search limit exceeded", errors.ErrVersionConflict)
		return false
	}
	if err := s.ctx.Err(); err != nil {
		s.err = err
		return false
	}

	for _, cand := range s.candidates[i] {
		if !s.consistent(i, cand) {
			continue
		}
		s.assign[i] = cand
		if s.search(i + 1) {
			return true
		}
		if s.err != nil {
			return false
		}
	}
	s.assign[i] = nil
	return false
}

// consistent checks cand for position i against the constraints of every
// earlier assignment and the additional requests.
func (s *solver) consistent(i int, cand *node) bool {
	id := s.ids[i]
	for _, rng := range s.required[id] {
		if cand == nil || !rng.Satisfies(cand.identity.Version) {
			return false
		}
	}
	for j := 0; j < i; j++ {
		if a := s.assign[j]; a != nil && !satisfiesDeps(a, id, cand) {
			return false
		}
	}
	if cand == nil {
		return true
	}
	for _, dep := range cand.deps {
		key := strings.ToLower(dep.id)
		j, ok := s.index[key]
		if !ok {
			return false
		}
		switch {
		case j < i:
			if a := s.assign[j]; a == nil || !dep.rng.Satisfies(a.identity.Version) {
				return false
			}
		case j == i:
			if !dep.rng.Satisfies(cand.identity.Version) {
				return false
			}
		}
	}
	return true
}

// satisfiesDeps reports whether assigning cand to id keeps every dependency
// of a on id satisfied.
func satisfiesDeps(a *node, id string, cand *node) bool {
	for _, dep := range a.deps {
		if strings.ToLower(dep.id) != id {
			continue
		}
		if cand == nil || !dep.rng.Satisfies(cand.identity.Version) {
			return false
		}
	}
	return true
}

// reachable returns the assigned nodes reachable from the roots and the
// additional requests, in discovery order.
func (s *solver) reachable(roots []*rootRequest, extra []constraint) []*node {
	seen := make(map[string]bool)
	queue := make([]string, 0, len(roots)+len(extra))
	for _, root := range roots {
		queue = append(queue, strings.ToLower(root.spec.PackageID))
	}
	for _, c := range extra {
		queue = append(queue, strings.ToLower(c.id))
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		if i, ok := s.index[id]; ok && s.assign[i] != nil {
			for _, dep := range s.assign[i].deps {
				queue = append(queue, strings.ToLower(dep.id))
			}
		}
	}

	out := make([]*node, 0, len(seen))
	for i, id := range s.ids {
		if seen[id] && s.assign[i] != nil {
			out = append(out, s.assign[i])
		}
	}
	return out
}

// ascending orders stable versions oldest first, followed by prereleases.
func ascending(nodes []*node) []*node {
	out := make([]*node, len(nodes))
	copy(out, nodes)
	sort.SliceStable(out, func(i, j int) bool {
		return preferMinimum(out[i].identity.Version, out[j].identity.Version)
	})
	return out
}

// rootCandidates orders the versions allowed for a root: the selected one,
// then newer versions oldest first, then older versions newest first.
func rootCandidates(nodes []*node, root *rootRequest) []*node {
	var selected *node
	var newer, older []*node
	for _, n := range nodes {
		v := n.identity.Version
		if !versioning.Allowed(v, root.rng, root.spec.AllowPrerelease) {
			continue
		}
		switch {
		case v.Equal(root.selected.Version):
			if selected == nil {
				selected = n
			}
		case v.GreaterThan(root.selected.Version):
			newer = append(newer, n)
		default:
			older = append(older, n)
		}
	}
	sort.SliceStable(newer, func(i, j int) bool { return newer[i].identity.Version.LessThan(newer[j].identity.Version) })
	sort.SliceStable(older, func(i, j int) bool { return older[i].identity.Version.GreaterThan(older[j].identity.Version) })

	out := make([]*node, 0, len(nodes))
	if selected != nil {
		out = append(out, selected)
	}
	out = append(out, newer...)
	return append(out, older...)
}
