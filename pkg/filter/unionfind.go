package filter

// unionFind is a disjoint-set forest over dense integer ids with path
// halving and union by rank.
type unionFind struct {
	parent []int
	rank   []uint8
}

func newUnionFind(capacity int) *unionFind {
	return &unionFind{
		parent: make([]int, 0, capacity),
		rank:   make([]uint8, 0, capacity),
	}
}

// add creates a singleton set and returns its id.
func (u *unionFind) add() int {
	id := len(u.parent)
	u.parent = append(u.parent, id)
	u.rank = append(u.rank, 0)
	return id
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	switch {
	case u.rank[ra] < u.rank[rb]:
		u.parent[ra] = rb
	case u.rank[ra] > u.rank[rb]:
		u.parent[rb] = ra
	default:
		u.parent[rb] = ra
		u.rank[ra]++
	}
}
