package operators

import (
	"context"
	"testing"

	"github.com/juju/errors"

	"github.com/lynxkite/lynxkite/epgm/dataset"
	"github.com/lynxkite/lynxkite/epgm/epgm"
)

func runOperation(t *testing.T, name string, inputs map[string]*epgm.GraphCollection, params map[string]interface{}) (map[string]*epgm.GraphCollection, error) {
	t.Helper()
	op, ok := Lookup(name)
	if !ok {
		t.Fatalf("Operation %v is not registered", name)
	}
	ea := NewEntityAccessor(dataset.NewEnv(3), inputs, params)
	err := op.Execute(context.Background(), ea)
	return ea.Outputs(), err
}

func exampleGraph(t *testing.T) *epgm.GraphCollection {
	out, err := runOperation(t, "ExampleGraph", nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	return out["graph"]
}

func TestOverlapSplitOperation(t *testing.T) {
	out, err := runOperation(t, "OverlapSplit",
		map[string]*epgm.GraphCollection{"graph": exampleGraph(t)},
		map[string]interface{}{
			"classifier": map[string]interface{}{
				"type": "property",
				"key":  "gender",
				"mapping": map[string]interface{}{
					"Male":   []interface{}{1.0},
					"Female": []interface{}{2.0},
				},
			},
		})
	if err != nil {
		t.Fatal(err)
	}
	c := out["collection"]
	if ids := headIDs(t, c); !ids.Equal(epgm.NewIDSet(1, 2)) {
		t.Errorf("Graph heads are %v", ids)
	}
	// Only Bob envies Adam is between two men.
	es := sortedEdges(t, c.Edges)
	if len(es) != 1 || es[0].ID != 2 || !es[0].Graphs.Equal(epgm.NewIDSet(epgm.ExampleGraphID, 1)) {
		t.Errorf("Split edges are %v", es)
	}
	if _, err := runOperation(t, "VerifyConsistency", map[string]*epgm.GraphCollection{"collection": c}, nil); err != nil {
		t.Error(err)
	}
	out, err = runOperation(t, "SelectGraph",
		map[string]*epgm.GraphCollection{"collection": c},
		map[string]interface{}{"graphId": 2.0})
	if err != nil {
		t.Fatal(err)
	}
	if vs := sortedVertices(t, out["graph"].Vertices); len(vs) != 1 || vs[0].Properties["name"] != "Eve" {
		t.Errorf("Graph 2 has vertices %v", vs)
	}
}

func TestRandomNodeSamplingOperation(t *testing.T) {
	out, err := runOperation(t, "RandomNodeSampling",
		map[string]*epgm.GraphCollection{"graph": exampleGraph(t)},
		map[string]interface{}{"sampleRatio": 1.0, "seed": 5.0, "graphId": 77.0})
	if err != nil {
		t.Fatal(err)
	}
	g := out["graph"]
	if ids := vertexIDs(sortedVertices(t, g.Vertices)); ids.Len() != 4 {
		t.Errorf("Sampled vertices are %v", ids)
	}
	heads, err := g.CollectHeads()
	if err != nil {
		t.Fatal(err)
	}
	if len(heads) != 1 || heads[0].ID != 77 {
		t.Errorf("Graph heads are %v", heads)
	}
}

func TestOperationInputErrors(t *testing.T) {
	_, err := runOperation(t, "RandomNodeSampling", nil, map[string]interface{}{"sampleRatio": 1.0})
	if !errors.IsNotFound(err) {
		t.Errorf("Expected NotFound for a missing input, got %v", err)
	}
	_, err = runOperation(t, "RandomNodeSampling",
		map[string]*epgm.GraphCollection{"graph": exampleGraph(t)},
		map[string]interface{}{"sampleRatio": "half"})
	if !errors.IsNotValid(err) {
		t.Errorf("Expected NotValid for a bad parameter, got %v", err)
	}
	job := dataset.NewJob(context.Background(), dataset.NewEnv(1))
	twoHeads := epgm.NewGraphCollection(job, []*epgm.GraphHead{{ID: 1}, {ID: 2}}, nil, nil)
	_, err = runOperation(t, "OverlapSplit",
		map[string]*epgm.GraphCollection{"graph": twoHeads},
		map[string]interface{}{"classifier": map[string]interface{}{"type": "label", "mapping": map[string]interface{}{}}})
	if !errors.IsNotValid(err) {
		t.Errorf("Expected NotValid for a collection input, got %v", err)
	}
}

func TestCanCompute(t *testing.T) {
	split, _ := Lookup("OverlapSplit")
	sampling, _ := Lookup("RandomNodeSampling")
	example, _ := Lookup("ExampleGraph")
	cases := []struct {
		op       Operation
		params   map[string]interface{}
		expected bool
	}{
		{split, map[string]interface{}{"classifier": map[string]interface{}{"type": "label", "mapping": map[string]interface{}{}}}, true},
		{split, map[string]interface{}{"classifier": map[string]interface{}{"type": "oracle"}}, false},
		{split, map[string]interface{}{}, false},
		{sampling, map[string]interface{}{"sampleRatio": 0.5}, true},
		{sampling, map[string]interface{}{"sampleRatio": -1.0}, false},
		{example, nil, true},
	}
	for i, c := range cases {
		if got := c.op.CanCompute(c.params); got != c.expected {
			t.Errorf("case %d: CanCompute returned %v", i, got)
		}
	}
	if _, ok := Lookup("PageRank"); ok {
		t.Error("PageRank should not be registered")
	}
}
