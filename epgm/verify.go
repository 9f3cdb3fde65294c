package epgm

import (
	"context"
	"fmt"
	"sort"

	"github.com/juju/errors"

	"github.com/lynxkite/lynxkite/epgm/dataset"
)

// ConsistencyError lists the edges that claim membership in a graph that one
// of their endpoints does not belong to.
type ConsistencyError struct {
	Edges []ID
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("%d edges are not covered by their endpoints' graphs: %v", len(e.Edges), e.Edges)
}

// endpointGraphs carries an edge and the graphs its endpoints share so far.
type endpointGraphs struct {
	edge   *Edge
	shared IDSet
}

// Verify checks the structural consistency of a collection on a separate job:
// every edge endpoint must exist and every edge's membership set must be a
// subset of the intersection of its endpoints' membership sets. Dangling
// endpoints are reported with dataset.ErrDanglingReference as the cause.
func Verify(ctx context.Context, c *GraphCollection) error {
	job := dataset.NewJob(ctx, c.Job().Env())
	c = c.In(job)
	withSource := dataset.JoinUnique(c.Edges, c.Vertices, EdgeSource, VertexID,
		func(e *Edge, v *Vertex) (endpointGraphs, error) {
			return endpointGraphs{edge: e, shared: v.Graphs}, nil
		})
	covered := dataset.JoinUnique(withSource, c.Vertices,
		func(eg endpointGraphs) ID { return eg.edge.Target }, VertexID,
		func(eg endpointGraphs, v *Vertex) (endpointGraphs, error) {
			eg.shared = eg.shared.Intersect(v.Graphs)
			return eg, nil
		})
	bad := dataset.FlatMap(covered, func(eg endpointGraphs, emit func(ID)) error {
		if !eg.edge.Graphs.IsSubsetOf(eg.shared) {
			emit(eg.edge.ID)
		}
		return nil
	})
	ids, err := dataset.Collect(bad)
	if err != nil {
		return errors.Annotate(err, "verifying graph collection")
	}
	if len(ids) > 0 {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		return &ConsistencyError{Edges: ids}
	}
	return nil
}
