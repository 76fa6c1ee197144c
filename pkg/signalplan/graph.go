package signalplan

import "github.com/kunquat/kunquat-go/pkg/kqerr"

// Edge records that node From's output feeds node To's input.
type Edge struct {
	From, To int
}

// Build performs a layered topological sort of a connection graph: layer 0
// is the sink (master output, no outgoing edges); higher layers are
// upstream, one more than the longest path to the sink. True cycles are
// rejected; feedback is only ever expressed through explicit feedback
// ports, which do not appear as graph edges here.
func Build(numNodes int, procs []Processor, edges []Edge) (*MixedPlan, error) {
	if len(procs) != numNodes {
		return nil, kqerr.New(kqerr.KindFormat, "processor count does not match node count")
	}

	out := make([][]int, numNodes)
	for _, e := range edges {
		if e.From < 0 || e.From >= numNodes || e.To < 0 || e.To >= numNodes {
			return nil, kqerr.New(kqerr.KindFormat, "edge references an out-of-range node")
		}
		out[e.From] = append(out[e.From], e.To)
	}

	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)
	state := make([]int8, numNodes)
	layer := make([]int, numNodes)

	var visit func(n int) (int, error)
	visit = func(n int) (int, error) {
		switch state[n] {
		case visiting:
			return 0, kqerr.New(kqerr.KindFormat, "connection graph contains a cycle")
		case done:
			return layer[n], nil
		}
		state[n] = visiting
		maxDown := -1
		for _, to := range out[n] {
			l, err := visit(to)
			if err != nil {
				return 0, err
			}
			if l > maxDown {
				maxDown = l
			}
		}
		layer[n] = maxDown + 1
		state[n] = done
		return layer[n], nil
	}

	for i := 0; i < numNodes; i++ {
		if state[i] == unvisited {
			if _, err := visit(i); err != nil {
				return nil, err
			}
		}
	}

	maxLayer := 0
	for _, l := range layer {
		if l > maxLayer {
			maxLayer = l
		}
	}
	layers := make([][]int, maxLayer+1)
	for i, l := range layer {
		layers[l] = append(layers[l], i)
	}

	return &MixedPlan{Procs: procs, NodeLayer: layer, LayersNodes: layers}, nil
}
