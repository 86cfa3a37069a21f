// Package overlap partitions tasks into independently schedulable work and
// serialized conflict groups based on their declared resource footprints.
package overlap

import (
	"sort"

	"github.com/jharlow/foreman/pkg/models"
)

// Group is a set of tasks whose footprints transitively intersect. Members
// are held in merge order: ascending by creation time, ties broken by id.
// The order is fixed at construction and never changes for the group's
// lifetime; member k must not start until member k-1 has completed.
type Group struct {
	// Members lists task ids in merge order.
	Members []string
}

// Result is the output of a single detection pass.
type Result struct {
	// Independent lists task ids with no footprint conflicts, ascending by
	// id. These are eligible for parallel dispatch immediately.
	Independent []string
	// Groups lists conflict groups, ordered by their first member's id.
	Groups []*Group
}

// GroupFor returns the group containing the given id, or nil. A task id
// belongs to at most one group.
func (r *Result) GroupFor(id string) *Group {
	for _, g := range r.Groups {
		for _, m := range g.Members {
			if m == id {
				return g
			}
		}
	}
	return nil
}

// ComputeGroups partitions the given tasks by footprint intersection. Two
// tasks conflict if their footprints share at least one key; keys are
// compared by exact string equality, with no path normalization. Connected
// components of size one (and every task with an empty footprint) land in
// Independent; larger components become Groups.
//
// The function is pure and deterministic for a fixed input.
func ComputeGroups(leaves []*models.WorkItem) *Result {
	ids := make([]string, 0, len(leaves))
	byID := make(map[string]*models.WorkItem, len(leaves))
	for _, leaf := range leaves {
		ids = append(ids, leaf.ID)
		byID[leaf.ID] = leaf
	}
	sort.Strings(ids)

	uf := newUnionFind(ids)

	// Union tasks that share a footprint key. Tasks with empty footprints
	// never join a component and always end up independent.
	keyOwner := make(map[string]string)
	for _, id := range ids {
		for _, key := range byID[id].Footprint {
			if owner, ok := keyOwner[key]; ok {
				uf.union(owner, id)
			} else {
				keyOwner[key] = id
			}
		}
	}

	components := make(map[string][]string)
	for _, id := range ids {
		root := uf.find(id)
		components[root] = append(components[root], id)
	}

	result := &Result{}
	for _, members := range components {
		if len(members) == 1 {
			result.Independent = append(result.Independent, members[0])
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			a, b := byID[members[i]], byID[members[j]]
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
			return a.ID < b.ID
		})
		result.Groups = append(result.Groups, &Group{Members: members})
	}

	sort.Strings(result.Independent)
	sort.Slice(result.Groups, func(i, j int) bool {
		return result.Groups[i].Members[0] < result.Groups[j].Members[0]
	})
	return result
}

// unionFind is a standard disjoint-set over string ids with path compression
// and union by rank.
type unionFind struct {
	parent map[string]string
	rank   map[string]int
}

func newUnionFind(ids []string) *unionFind {
	uf := &unionFind{
		parent: make(map[string]string, len(ids)),
		rank:   make(map[string]int, len(ids)),
	}
	for _, id := range ids {
		uf.parent[id] = id
	}
	return uf
}

func (uf *unionFind) find(id string) string {
	for uf.parent[id] != id {
		uf.parent[id] = uf.parent[uf.parent[id]]
		id = uf.parent[id]
	}
	return id
}

func (uf *unionFind) union(a, b string) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
}
