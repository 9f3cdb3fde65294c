package operators

import (
	"context"
	"math"
	"testing"

	"github.com/go-test/deep"
	"github.com/juju/errors"

	"github.com/lynxkite/lynxkite/epgm/dataset"
	"github.com/lynxkite/lynxkite/epgm/epgm"
)

// pathGraph has n vertices and n-1 edges: 0 -> 1 -> ... -> n-1.
func pathGraph(parallelism, n int) *epgm.LogicalGraph {
	var vs []*epgm.Vertex
	var es []*epgm.Edge
	for i := 0; i < n; i++ {
		vs = append(vs, &epgm.Vertex{ID: epgm.ID(i), Label: "v"})
		if i > 0 {
			es = append(es, &epgm.Edge{ID: epgm.ID(1000 + i), Source: epgm.ID(i - 1), Target: epgm.ID(i)})
		}
	}
	return newTestGraph(parallelism, vs, es)
}

func vertexIDs(vs []*epgm.Vertex) epgm.IDSet {
	ids := epgm.NewIDSet()
	for _, v := range vs {
		ids.Add(v.ID)
	}
	return ids
}

func TestRandomNodeSamplingFullRatio(t *testing.T) {
	g := pathGraph(2, 5)
	seed := int64(3)
	for _, op := range []*RandomNodeSampling{
		{SampleRatio: 1, GraphID: 7},
		{SampleRatio: 1, GraphID: 7, Seed: &seed},
		{SampleRatio: 1.5, GraphID: 7},
	} {
		s, err := op.Execute(context.Background(), g)
		if err != nil {
			t.Fatal(err)
		}
		if s.Head.ID != 7 || s.Head.Label != SampledGraphLabel(7) {
			t.Errorf("Graph head is %+v", s.Head)
		}
		vs := sortedVertices(t, s.Vertices)
		es := sortedEdges(t, s.Edges)
		if len(vs) != 5 || len(es) != 4 {
			t.Fatalf("Sampled %d vertices and %d edges", len(vs), len(es))
		}
		for _, v := range vs {
			if !v.Graphs.Equal(epgm.NewIDSet(baseGraph, 7)) {
				t.Errorf("Vertex %d is in %v", v.ID, v.Graphs)
			}
		}
		for _, e := range es {
			if !e.Graphs.Equal(epgm.NewIDSet(baseGraph, 7)) {
				t.Errorf("Edge %d is in %v", e.ID, e.Graphs)
			}
		}
	}
	// The input is unchanged.
	for _, v := range sortedVertices(t, g.Vertices) {
		if !v.Graphs.Equal(epgm.NewIDSet(baseGraph)) {
			t.Errorf("Input vertex %d changed: %v", v.ID, v.Graphs)
		}
	}
}

func TestRandomNodeSamplingZeroRatio(t *testing.T) {
	s, err := (&RandomNodeSampling{SampleRatio: 0}).Execute(context.Background(), pathGraph(3, 10))
	if err != nil {
		t.Fatal(err)
	}
	if s.Head == nil || s.Head.ID <= 0 {
		t.Errorf("No fresh graph ID: %+v", s.Head)
	}
	if vs := sortedVertices(t, s.Vertices); len(vs) != 0 {
		t.Errorf("Sampled vertices: %v", vs)
	}
	if es := sortedEdges(t, s.Edges); len(es) != 0 {
		t.Errorf("Sampled edges: %v", es)
	}
}

func TestRandomNodeSamplingInvalidRatio(t *testing.T) {
	for _, ratio := range []float64{-0.1, math.NaN()} {
		_, err := (&RandomNodeSampling{SampleRatio: ratio}).Execute(context.Background(), pathGraph(1, 3))
		if !errors.IsNotValid(err) {
			t.Errorf("Expected NotValid for %v, got %v", ratio, err)
		}
	}
}

func TestRandomNodeSamplingResultOutlivesContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s, err := (&RandomNodeSampling{SampleRatio: 1}).Execute(ctx, pathGraph(2, 4))
	cancel()
	if err != nil {
		t.Fatal(err)
	}
	if vs, es := sortedVertices(t, s.Vertices), sortedEdges(t, s.Edges); len(vs) != 4 || len(es) != 3 {
		t.Errorf("Sampled %d vertices and %d edges", len(vs), len(es))
	}
}

func TestRandomNodeSamplingCanCompute(t *testing.T) {
	op, _ := Lookup("RandomNodeSampling")
	for _, c := range []struct {
		params map[string]interface{}
		can    bool
	}{
		{map[string]interface{}{"sampleRatio": 0.5}, true},
		{map[string]interface{}{"sampleRatio": 0.5, "seed": 3.0, "graphId": 9.0}, true},
		{map[string]interface{}{"sampleRatio": 0.5, "seed": "three"}, false},
		{map[string]interface{}{"sampleRatio": 0.5, "graphId": []interface{}{9.0}}, false},
		{map[string]interface{}{"sampleRatio": "half"}, false},
		{map[string]interface{}{}, false},
	} {
		if can := op.CanCompute(c.params); can != c.can {
			t.Errorf("CanCompute(%v) = %v", c.params, can)
		}
	}
}

func TestRandomNodeSamplingSeeded(t *testing.T) {
	seed := int64(12345)
	op := &RandomNodeSampling{SampleRatio: 0.5, Seed: &seed, GraphID: 9}
	var first *epgm.LogicalGraph
	for _, parallelism := range []int{4, 4, 1, 7} {
		s, err := op.Execute(context.Background(), pathGraph(parallelism, 1000))
		if err != nil {
			t.Fatal(err)
		}
		if first == nil {
			first = s
			continue
		}
		if diff := deep.Equal(sortedVertices(t, s.Vertices), sortedVertices(t, first.Vertices)); diff != nil {
			t.Errorf("parallelism %d: %v", parallelism, diff)
		}
		if diff := deep.Equal(sortedEdges(t, s.Edges), sortedEdges(t, first.Edges)); diff != nil {
			t.Errorf("parallelism %d: %v", parallelism, diff)
		}
	}
	kept := vertexIDs(sortedVertices(t, first.Vertices))
	if kept.Len() < 400 || kept.Len() > 600 {
		t.Errorf("Kept %d vertices out of 1000 with ratio 0.5", kept.Len())
	}
	for _, e := range sortedEdges(t, first.Edges) {
		if !kept.Contains(e.Source) || !kept.Contains(e.Target) {
			t.Errorf("Edge %d has an endpoint that was not kept", e.ID)
		}
	}
	if err := epgm.Verify(context.Background(), first.AsCollection()); err != nil {
		t.Error(err)
	}
}

func TestRandomNodeSamplingUnseeded(t *testing.T) {
	s, err := (&RandomNodeSampling{SampleRatio: 0.3}).Execute(context.Background(), pathGraph(4, 500))
	if err != nil {
		t.Fatal(err)
	}
	kept := vertexIDs(sortedVertices(t, s.Vertices))
	if kept.Len() == 0 || kept.Len() == 500 {
		t.Errorf("Kept %d vertices out of 500 with ratio 0.3", kept.Len())
	}
	for _, e := range sortedEdges(t, s.Edges) {
		if !kept.Contains(e.Source) || !kept.Contains(e.Target) {
			t.Errorf("Edge %d has an endpoint that was not kept", e.ID)
		}
	}
}

func TestRandomNodeSamplingDanglingEdge(t *testing.T) {
	g := newTestGraph(2,
		[]*epgm.Vertex{{ID: 1}, {ID: 2}},
		[]*epgm.Edge{{ID: 10, Source: 1, Target: 2}, {ID: 11, Source: 3, Target: 2}})
	// Even with ratio 0 the broken reference is detected.
	for _, ratio := range []float64{0, 1} {
		s, err := (&RandomNodeSampling{SampleRatio: ratio}).Execute(context.Background(), g)
		if s != nil || errors.Cause(err) != dataset.ErrDanglingReference {
			t.Errorf("Expected a dangling reference, got %v, %v", s, err)
		}
	}
}
