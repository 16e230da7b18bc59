package planner

import "sort"

// edge is one candidate join in the weighted undirected join graph.
type edge struct {
	From       string
	To         string
	FromColumn string
	ToColumn   string
	Cost       float64
	Confidence float64
}

// unionFind is a standard disjoint-set with path compression, used both for
// Kruskal's MST and for splitting the induced subgraph into connected
// components.
type unionFind struct {
	parent map[string]string
	rank   map[string]int
}

func newUnionFind(nodes []string) *unionFind {
	uf := &unionFind{
		parent: make(map[string]string, len(nodes)),
		rank:   make(map[string]int, len(nodes)),
	}
	for _, n := range nodes {
		uf.parent[n] = n
	}
	return uf
}

func (uf *unionFind) find(x string) string {
	root := x
	for uf.parent[root] != root {
		root = uf.parent[root]
	}
	for uf.parent[x] != root {
		uf.parent[x], x = root, uf.parent[x]
	}
	return root
}

func (uf *unionFind) union(a, b string) bool {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return false
	}
	if uf.rank[ra] < uf.rank[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	if uf.rank[ra] == uf.rank[rb] {
		uf.rank[ra]++
	}
	return true
}

// minimumSpanningTree runs Kruskal over the edges. The graph is tiny
// (tables, not rows), so sorting dominates and that is fine.
func minimumSpanningTree(nodes []string, edges []edge) []edge {
	sorted := make([]edge, len(edges))
	copy(sorted, edges)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Cost != sorted[j].Cost {
			return sorted[i].Cost < sorted[j].Cost
		}
		return sorted[i].From+sorted[i].To < sorted[j].From+sorted[j].To
	})

	uf := newUnionFind(nodes)
	mst := make([]edge, 0, len(nodes)-1)
	for _, e := range sorted {
		if uf.union(e.From, e.To) {
			mst = append(mst, e)
			if len(mst) == len(nodes)-1 {
				break
			}
		}
	}
	return mst
}

// connectedComponents splits nodes into components induced by edges.
// Components come back sorted by size descending, members sorted by name.
func connectedComponents(nodes []string, edges []edge) [][]string {
	uf := newUnionFind(nodes)
	for _, e := range edges {
		uf.union(e.From, e.To)
	}

	groups := make(map[string][]string)
	for _, n := range nodes {
		root := uf.find(n)
		groups[root] = append(groups[root], n)
	}

	components := make([][]string, 0, len(groups))
	for _, members := range groups {
		sort.Strings(members)
		components = append(components, members)
	}
	sort.Slice(components, func(i, j int) bool {
		if len(components[i]) != len(components[j]) {
			return len(components[i]) > len(components[j])
		}
		return components[i][0] < components[j][0]
	})
	return components
}
