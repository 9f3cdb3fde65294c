// Implements the RandomNodeSampling operation

package operators

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/juju/errors"

	"github.com/lynxkite/lynxkite/epgm/dataset"
	"github.com/lynxkite/lynxkite/epgm/epgm"
)

// RandomNodeSampling keeps every vertex with probability SampleRatio and the
// edges between kept vertices. The result is tagged with GraphID, or with a
// fresh ID if GraphID is zero.
//
// With a Seed the draw of a vertex only depends on the seed and the vertex
// ID, so the result does not change with the parallelism. Without one every
// partition uses its own generator.
type RandomNodeSampling struct {
	SampleRatio float64
	Seed        *int64
	GraphID     epgm.ID
}

type sampledVertex struct {
	vertex *epgm.Vertex
	keep   bool
}

type sampledEdge struct {
	edge       *epgm.Edge
	sourceKept bool
	kept       bool
}

func SampledGraphLabel(id epgm.ID) string {
	return fmt.Sprintf("sampled graph %d", id)
}

func (op *RandomNodeSampling) Execute(ctx context.Context, g *epgm.LogicalGraph) (*epgm.LogicalGraph, error) {
	ratio := op.SampleRatio
	if math.IsNaN(ratio) || ratio < 0 {
		return nil, errors.NotValidf("sample ratio %v", ratio)
	}
	graphID := op.GraphID
	if graphID == 0 {
		graphID = epgm.NewID()
	}
	job := dataset.NewJob(ctx, g.Job().Env())
	g = g.In(job)

	var sampled *dataset.Dataset[sampledVertex]
	if op.Seed != nil {
		seed := uint64(*op.Seed)
		sampled = dataset.Map(g.Vertices, func(v *epgm.Vertex) (sampledVertex, error) {
			r := rand.New(rand.NewPCG(seed, uint64(v.ID)))
			return sampledVertex{vertex: v, keep: r.Float64() < ratio}, nil
		})
	} else {
		base := rand.Uint64()
		sampled = dataset.MapPartition(g.Vertices,
			func(partition int, in []*epgm.Vertex, emit func(sampledVertex)) error {
				r := rand.New(rand.NewPCG(base, uint64(partition)))
				for _, v := range in {
					emit(sampledVertex{vertex: v, keep: r.Float64() < ratio})
				}
				return nil
			})
	}

	member := epgm.NewIDSet(graphID)
	vertices := dataset.FlatMap(sampled, func(sv sampledVertex, emit func(*epgm.Vertex)) error {
		if sv.keep {
			emit(sv.vertex.WithGraphs(sv.vertex.Graphs.Union(member)))
		}
		return nil
	})

	// Joining against all vertices, not only the kept ones, so an edge with a
	// missing endpoint fails the job instead of silently disappearing.
	withSource := dataset.JoinUnique(g.Edges, sampled, epgm.EdgeSource,
		func(sv sampledVertex) epgm.ID { return sv.vertex.ID },
		func(e *epgm.Edge, sv sampledVertex) (sampledEdge, error) {
			return sampledEdge{edge: e, sourceKept: sv.keep}, nil
		})
	withBoth := dataset.JoinUnique(withSource, sampled,
		func(se sampledEdge) epgm.ID { return se.edge.Target },
		func(sv sampledVertex) epgm.ID { return sv.vertex.ID },
		func(se sampledEdge, sv sampledVertex) (sampledEdge, error) {
			se.kept = se.sourceKept && sv.keep
			return se, nil
		})
	edges := dataset.FlatMap(withBoth, func(se sampledEdge, emit func(*epgm.Edge)) error {
		if se.kept {
			emit(se.edge.WithGraphs(se.edge.Graphs.Union(member)))
		}
		return nil
	})

	done, err := job.Finish()
	if err != nil {
		return nil, errors.Annotate(err, "random node sampling")
	}
	log.Debug("sampled graph {{graph}} with ratio {{ratio}}", "graph", graphID, "ratio", ratio)
	sampledGraph := &epgm.LogicalGraph{
		Head:     &epgm.GraphHead{ID: graphID, Label: SampledGraphLabel(graphID)},
		Vertices: vertices,
		Edges:    edges,
	}
	return sampledGraph.In(done), nil
}

func init() {
	Register("RandomNodeSampling", Operation{
		execute: func(ctx context.Context, ea *EntityAccessor) error {
			g, err := ea.getGraph("graph")
			if err != nil {
				return err
			}
			ratio, err := ea.GetFloatParam("sampleRatio")
			if err != nil {
				return err
			}
			op := &RandomNodeSampling{SampleRatio: ratio}
			if ea.hasParam("seed") {
				seed, err := ea.GetFloatParam("seed")
				if err != nil {
					return err
				}
				s := int64(seed)
				op.Seed = &s
			}
			if ea.hasParam("graphId") {
				id, err := ea.GetFloatParam("graphId")
				if err != nil {
					return err
				}
				op.GraphID = epgm.ID(id)
			}
			sampled, err := op.Execute(ctx, g)
			if err != nil {
				return err
			}
			ea.output("graph", sampled.AsCollection())
			return nil
		},
		canCompute: func(params map[string]interface{}) bool {
			ratio, ok := params["sampleRatio"].(float64)
			if !ok || math.IsNaN(ratio) || ratio < 0 {
				return false
			}
			for _, name := range []string{"seed", "graphId"} {
				if v, present := params[name]; present {
					if f, ok := v.(float64); !ok || math.IsNaN(f) {
						return false
					}
				}
			}
			return true
		},
	})
}
