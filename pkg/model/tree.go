package model

import "sort"

// treeNode is one node of a flattened regression tree. Leaf nodes only
// carry Value; split nodes route rows with x[Feature] <= Threshold left.
type treeNode struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     float64
	Gain      float64
	Leaf      bool
}

// regressionTree is a CART tree fitted on squared error. Nodes[0] is the root.
type regressionTree struct {
	Nodes []treeNode
}

func (t *regressionTree) predict(x []float64) float64 {
	i := 0
	for !t.Nodes[i].Leaf {
		n := t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

// treeBuilder grows trees over a fixed design matrix. Rows are presorted
// once per feature and reused across every tree of an ensemble; nodeOf
// tracks which node a row currently sits in so a split scan is linear.
type treeBuilder struct {
	x        [][]float64
	order    [][]int
	nodeOf   []int
	maxDepth int
	minSplit int
	minLeaf  int

	y     []float64
	nodes []treeNode
}

func newTreeBuilder(x [][]float64, maxDepth, minSplit, minLeaf int) *treeBuilder {
	n := len(x)
	p := 0
	if n > 0 {
		p = len(x[0])
	}

	order := make([][]int, p)
	for f := 0; f < p; f++ {
		idx := make([]int, n)
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return x[idx[a]][f] < x[idx[b]][f]
		})
		order[f] = idx
	}

	return &treeBuilder{
		x:        x,
		order:    order,
		nodeOf:   make([]int, n),
		maxDepth: maxDepth,
		minSplit: minSplit,
		minLeaf:  minLeaf,
	}
}

// fit grows a tree on targets y using only rows.
func (b *treeBuilder) fit(y []float64, rows []int) *regressionTree {
	b.y = y
	b.nodes = nil
	for i := range b.nodeOf {
		b.nodeOf[i] = -1
	}
	b.grow(rows, 0)
	return &regressionTree{Nodes: b.nodes}
}

func (b *treeBuilder) grow(rows []int, depth int) int {
	id := len(b.nodes)
	sum := 0.0
	for _, r := range rows {
		sum += b.y[r]
		b.nodeOf[r] = id
	}
	value := 0.0
	if len(rows) > 0 {
		value = sum / float64(len(rows))
	}
	b.nodes = append(b.nodes, treeNode{Leaf: true, Value: value})

	if b.maxDepth > 0 && depth >= b.maxDepth {
		return id
	}
	if len(rows) < b.minSplit || len(rows) < 2*b.minLeaf {
		return id
	}

	feat, thr, gain, ok := b.bestSplit(id, rows, sum)
	if !ok {
		return id
	}

	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	for _, r := range rows {
		if b.x[r][feat] <= thr {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	l := b.grow(left, depth+1)
	rt := b.grow(right, depth+1)
	b.nodes[id] = treeNode{
		Feature:   feat,
		Threshold: thr,
		Left:      l,
		Right:     rt,
		Value:     value,
		Gain:      gain,
	}
	return id
}

// bestSplit scans every feature in sorted order and returns the split with
// the largest squared error reduction. Ties keep the first candidate found.
func (b *treeBuilder) bestSplit(id int, rows []int, sum float64) (feat int, thr, gain float64, ok bool) {
	n := len(rows)
	parent := sum * sum / float64(n)
	best := parent + 1e-12*(1+parent)

	for f := range b.order {
		nl := 0
		sl := 0.0
		last := 0.0
		for _, r := range b.order[f] {
			if b.nodeOf[r] != id {
				continue
			}
			v := b.x[r][f]
			if nl > 0 && v > last && nl >= b.minLeaf && n-nl >= b.minLeaf {
				sr := sum - sl
				score := sl*sl/float64(nl) + sr*sr/float64(n-nl)
				if score > best {
					best = score
					feat = f
					thr = last + (v-last)/2
					if thr >= v {
						thr = last
					}
					ok = true
				}
			}
			sl += b.y[r]
			nl++
			last = v
		}
	}

	if ok {
		gain = best - parent
	}
	return feat, thr, gain, ok
}
