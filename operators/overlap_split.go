// Implements the OverlapSplit operation

package operators

import (
	"context"
	"fmt"

	"github.com/juju/errors"

	"github.com/lynxkite/lynxkite/epgm/dataset"
	"github.com/lynxkite/lynxkite/epgm/epgm"
)

// OverlapSplit splits a logical graph into a collection of possibly
// overlapping graphs. Every vertex joins the graphs the classifier assigns it
// to. An edge joins a new graph if both of its endpoints are in it. Edges
// that join none of the new graphs are not part of the result.
type OverlapSplit struct {
	Classifier Classifier
}

type classifiedVertex struct {
	vertex *epgm.Vertex // Already carries the new graphs.
	added  epgm.IDSet
}

// edgeEndpoints is an edge ID with the membership sets of its endpoints.
type edgeEndpoints struct {
	edge   epgm.ID
	target epgm.ID
	source epgm.IDSet
	dst    epgm.IDSet
}

type admittedEdge struct {
	edge   epgm.ID
	graphs epgm.IDSet
}

func SplitGraphLabel(id epgm.ID) string {
	return fmt.Sprintf("split graph %d", id)
}

func (op *OverlapSplit) Execute(ctx context.Context, g *epgm.LogicalGraph) (*epgm.GraphCollection, error) {
	if op.Classifier == nil {
		return nil, errors.NotValidf("overlap split without a classifier")
	}
	job := dataset.NewJob(ctx, g.Job().Env())
	g = g.In(job)

	classified := dataset.Map(g.Vertices, func(v *epgm.Vertex) (classifiedVertex, error) {
		added, err := classify(op.Classifier, v)
		if err != nil {
			return classifiedVertex{}, err
		}
		return classifiedVertex{vertex: v.WithGraphs(v.Graphs.Union(added)), added: added}, nil
	})
	vertices := dataset.Map(classified, func(cv classifiedVertex) (*epgm.Vertex, error) {
		return cv.vertex, nil
	})

	newIDs := dataset.Distinct(
		dataset.FlatMap(classified, func(cv classifiedVertex, emit func(epgm.ID)) error {
			for id := range cv.added {
				emit(id)
			}
			return nil
		}),
		func(id epgm.ID) epgm.ID { return id })
	heads := dataset.Map(newIDs, func(id epgm.ID) (*epgm.GraphHead, error) {
		return &epgm.GraphHead{ID: id, Label: SplitGraphLabel(id)}, nil
	})

	withSource := dataset.JoinUnique(g.Edges, vertices, epgm.EdgeSource, epgm.VertexID,
		func(e *epgm.Edge, v *epgm.Vertex) (edgeEndpoints, error) {
			return edgeEndpoints{edge: e.ID, target: e.Target, source: v.Graphs}, nil
		})
	withBoth := dataset.JoinUnique(withSource, vertices,
		func(ee edgeEndpoints) epgm.ID { return ee.target }, epgm.VertexID,
		func(ee edgeEndpoints, v *epgm.Vertex) (edgeEndpoints, error) {
			ee.dst = v.Graphs
			return ee, nil
		})

	allNew := dataset.Reduce(
		dataset.Map(newIDs, func(id epgm.ID) (epgm.IDSet, error) { return epgm.NewIDSet(id), nil }),
		func(a, b epgm.IDSet) (epgm.IDSet, error) { return a.Union(b), nil })
	candidates := dataset.CrossWithTiny(withBoth, allNew,
		func(ee edgeEndpoints, ids epgm.IDSet) (admittedEdge, error) {
			admitted := epgm.NewIDSet()
			for id := range ids {
				if ee.source.Contains(id) && ee.dst.Contains(id) {
					admitted.Add(id)
				}
			}
			return admittedEdge{edge: ee.edge, graphs: admitted}, nil
		})
	admitted := dataset.Filter(candidates, func(ae admittedEdge) (bool, error) {
		return ae.graphs.Len() > 0, nil
	})

	edges := dataset.JoinUnique(admitted, g.Edges,
		func(ae admittedEdge) epgm.ID { return ae.edge }, epgm.EdgeID,
		func(ae admittedEdge, e *epgm.Edge) (*epgm.Edge, error) {
			return e.WithGraphs(e.Graphs.Union(ae.graphs)), nil
		})

	done, err := job.Finish()
	if err != nil {
		return nil, errors.Annotate(err, "overlap split")
	}
	log.Debug("split graph {{graph}}", "graph", headID(g))
	c := &epgm.GraphCollection{Heads: heads, Vertices: vertices, Edges: edges}
	return c.In(done), nil
}

func headID(g *epgm.LogicalGraph) interface{} {
	if g.Head == nil {
		return "without head"
	}
	return g.Head.ID
}

func init() {
	Register("OverlapSplit", Operation{
		execute: func(ctx context.Context, ea *EntityAccessor) error {
			g, err := ea.getGraph("graph")
			if err != nil {
				return err
			}
			desc, err := ea.GetMapParam("classifier")
			if err != nil {
				return err
			}
			c, err := ParseClassifier(desc)
			if err != nil {
				return err
			}
			split, err := (&OverlapSplit{Classifier: c}).Execute(ctx, g)
			if err != nil {
				return err
			}
			ea.output("collection", split)
			return nil
		},
		canCompute: func(params map[string]interface{}) bool {
			desc, ok := params["classifier"].(map[string]interface{})
			if !ok {
				return false
			}
			_, err := ParseClassifier(desc)
			return err == nil
		},
	})
}
