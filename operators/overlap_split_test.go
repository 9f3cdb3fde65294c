package operators

import (
	"context"
	"reflect"
	"sort"
	"testing"

	"github.com/go-test/deep"
	"github.com/golang/mock/gomock"
	"github.com/juju/errors"

	"github.com/lynxkite/lynxkite/epgm/dataset"
	"github.com/lynxkite/lynxkite/epgm/epgm"
	"github.com/lynxkite/lynxkite/epgm/internal/mocks"
)

const baseGraph epgm.ID = 100

func newTestGraph(parallelism int, vertices []*epgm.Vertex, edges []*epgm.Edge) *epgm.LogicalGraph {
	job := dataset.NewJob(context.Background(), dataset.NewEnv(parallelism))
	for _, v := range vertices {
		v.Graphs = epgm.NewIDSet(baseGraph)
	}
	for _, e := range edges {
		e.Graphs = epgm.NewIDSet(baseGraph)
	}
	return epgm.NewLogicalGraph(job, &epgm.GraphHead{ID: baseGraph, Label: "base"}, vertices, edges)
}

// abcGraph is A -> B -> C.
func abcGraph(parallelism int) *epgm.LogicalGraph {
	return newTestGraph(parallelism,
		[]*epgm.Vertex{{ID: 1, Label: "A"}, {ID: 2, Label: "B"}, {ID: 3, Label: "C"}},
		[]*epgm.Edge{{ID: 10, Source: 1, Target: 2}, {ID: 11, Source: 2, Target: 3}})
}

func starGraph(leaves int) *epgm.LogicalGraph {
	vs := []*epgm.Vertex{{ID: 0, Label: "center"}}
	es := []*epgm.Edge{}
	for i := 1; i <= leaves; i++ {
		vs = append(vs, &epgm.Vertex{ID: epgm.ID(i), Label: "leaf"})
		es = append(es, &epgm.Edge{ID: epgm.ID(100 + i), Source: 0, Target: epgm.ID(i)})
		if i%2 == 0 {
			es = append(es, &epgm.Edge{ID: epgm.ID(200 + i), Source: epgm.ID(i), Target: 0})
		}
	}
	return newTestGraph(3, vs, es)
}

func sortedVertices(t *testing.T, ds *dataset.Dataset[*epgm.Vertex]) []*epgm.Vertex {
	t.Helper()
	vs, err := dataset.Collect(ds)
	if err != nil {
		t.Fatal(err)
	}
	sort.Slice(vs, func(i, j int) bool { return vs[i].ID < vs[j].ID })
	return vs
}

func sortedEdges(t *testing.T, ds *dataset.Dataset[*epgm.Edge]) []*epgm.Edge {
	t.Helper()
	es, err := dataset.Collect(ds)
	if err != nil {
		t.Fatal(err)
	}
	sort.Slice(es, func(i, j int) bool { return es[i].ID < es[j].ID })
	return es
}

func headIDs(t *testing.T, c *epgm.GraphCollection) epgm.IDSet {
	t.Helper()
	heads, err := c.CollectHeads()
	if err != nil {
		t.Fatal(err)
	}
	ids := epgm.NewIDSet()
	for _, h := range heads {
		if h.Label != SplitGraphLabel(h.ID) {
			t.Errorf("Graph head %d has label %q", h.ID, h.Label)
		}
		ids.Add(h.ID)
	}
	return ids
}

func graphsOf(es []*epgm.Edge) map[epgm.ID]epgm.IDSet {
	m := map[epgm.ID]epgm.IDSet{}
	for _, e := range es {
		m[e.ID] = e.Graphs
	}
	return m
}

func TestOverlapSplitChain(t *testing.T) {
	for _, parallelism := range []int{1, 2, 5} {
		g := abcGraph(parallelism)
		op := &OverlapSplit{Classifier: ByLabel(map[string][]epgm.ID{
			"A": {1},
			"B": {1, 2},
			"C": {2},
		})}
		c, err := op.Execute(context.Background(), g)
		if err != nil {
			t.Fatal(err)
		}
		if ids := headIDs(t, c); !ids.Equal(epgm.NewIDSet(1, 2)) {
			t.Errorf("Graph heads are %v", ids)
		}
		vs := sortedVertices(t, c.Vertices)
		expectedVertices := map[epgm.ID]epgm.IDSet{
			1: epgm.NewIDSet(baseGraph, 1),
			2: epgm.NewIDSet(baseGraph, 1, 2),
			3: epgm.NewIDSet(baseGraph, 2),
		}
		for _, v := range vs {
			if !v.Graphs.Equal(expectedVertices[v.ID]) {
				t.Errorf("Vertex %d is in %v", v.ID, v.Graphs)
			}
		}
		expectedEdges := map[epgm.ID]epgm.IDSet{
			10: epgm.NewIDSet(baseGraph, 1),
			11: epgm.NewIDSet(baseGraph, 2),
		}
		if diff := deep.Equal(graphsOf(sortedEdges(t, c.Edges)), expectedEdges); diff != nil {
			t.Errorf("parallelism %d: %v", parallelism, diff)
		}
		if err := epgm.Verify(context.Background(), c); err != nil {
			t.Error(err)
		}
	}
}

func TestOverlapSplitEmptyClassification(t *testing.T) {
	g := abcGraph(2)
	before := sortedVertices(t, g.Vertices)
	op := &OverlapSplit{Classifier: ClassifierFunc(func(*epgm.Vertex) (epgm.IDSet, error) {
		return nil, nil
	})}
	c, err := op.Execute(context.Background(), g)
	if err != nil {
		t.Fatal(err)
	}
	if ids := headIDs(t, c); ids.Len() != 0 {
		t.Errorf("Graph heads are %v", ids)
	}
	if diff := deep.Equal(sortedVertices(t, c.Vertices), before); diff != nil {
		t.Error(diff)
	}
	if es := sortedEdges(t, c.Edges); len(es) != 0 {
		t.Errorf("Edges were admitted: %v", es)
	}
}

func TestOverlapSplitStar(t *testing.T) {
	g := starGraph(6)
	allEdges := sortedEdges(t, g.Edges)
	op := &OverlapSplit{Classifier: ClassifierFunc(func(v *epgm.Vertex) (epgm.IDSet, error) {
		if v.Label == "center" {
			return epgm.NewIDSet(1, 2), nil
		}
		return epgm.NewIDSet(1), nil
	})}
	c, err := op.Execute(context.Background(), g)
	if err != nil {
		t.Fatal(err)
	}
	if ids := headIDs(t, c); !ids.Equal(epgm.NewIDSet(1, 2)) {
		t.Errorf("Graph heads are %v", ids)
	}
	es := sortedEdges(t, c.Edges)
	if len(es) != len(allEdges) {
		t.Fatalf("Got %d edges, expected %d", len(es), len(allEdges))
	}
	for _, e := range es {
		if !e.Graphs.Equal(epgm.NewIDSet(baseGraph, 1)) {
			t.Errorf("Edge %d is in %v", e.ID, e.Graphs)
		}
	}
	two, err := c.Graph(2)
	if err != nil {
		t.Fatal(err)
	}
	if vs := sortedVertices(t, two.Vertices); len(vs) != 1 || vs[0].ID != 0 {
		t.Errorf("Graph 2 has vertices %v", vs)
	}
	if es := sortedEdges(t, two.Edges); len(es) != 0 {
		t.Errorf("Graph 2 has edges %v", es)
	}
}

func TestOverlapSplitInvariants(t *testing.T) {
	var vs []*epgm.Vertex
	var es []*epgm.Edge
	for i := 0; i < 200; i++ {
		vs = append(vs, &epgm.Vertex{ID: epgm.ID(i)})
		es = append(es, &epgm.Edge{ID: epgm.ID(1000 + i), Source: epgm.ID(i), Target: epgm.ID((i * 7) % 200)})
	}
	g := newTestGraph(4, vs, es)
	ids := []epgm.ID{1, 2, 3, 4}
	op := &OverlapSplit{Classifier: RandomClassifier(42, ids, 0.4)}
	c, err := op.Execute(context.Background(), g)
	if err != nil {
		t.Fatal(err)
	}
	if err := epgm.Verify(context.Background(), c); err != nil {
		t.Fatal(err)
	}
	classified := epgm.NewIDSet()
	for _, v := range sortedVertices(t, c.Vertices) {
		if !v.Graphs.Contains(baseGraph) {
			t.Errorf("Vertex %d lost its graphs: %v", v.ID, v.Graphs)
		}
		classified.AddAll(v.Graphs)
	}
	delete(classified, baseGraph)
	if heads := headIDs(t, c); !heads.Equal(classified) {
		t.Errorf("Graph heads %v do not match the classification %v", heads, classified)
	}
	for _, e := range sortedEdges(t, c.Edges) {
		if e.Graphs.Len() < 2 {
			t.Errorf("Edge %d was not admitted anywhere: %v", e.ID, e.Graphs)
		}
	}
	// The same seed classifies the same way on a different partitioning.
	again, err := op.Execute(context.Background(), g.In(dataset.NewJob(context.Background(), dataset.NewEnv(3))))
	if err != nil {
		t.Fatal(err)
	}
	if diff := deep.Equal(sortedVertices(t, again.Vertices), sortedVertices(t, c.Vertices)); diff != nil {
		t.Error(diff)
	}
}

func TestOverlapSplitClassifierFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	classifier := mocks.NewMockClassifier(ctrl)
	classifier.EXPECT().Classify(gomock.Any()).DoAndReturn(func(v *epgm.Vertex) (epgm.IDSet, error) {
		if v.ID == 2 {
			return nil, errors.New("no idea")
		}
		return epgm.NewIDSet(1), nil
	}).MinTimes(1).MaxTimes(3)

	g := abcGraph(3)
	before := sortedVertices(t, g.Vertices)
	c, err := (&OverlapSplit{Classifier: classifier}).Execute(context.Background(), g)
	if c != nil {
		t.Errorf("Got a partial result: %v", c)
	}
	if errors.Cause(err) != ErrClassifierFailed {
		t.Errorf("Expected a classifier failure, got %v", err)
	}
	if g.Job().Err() != nil {
		t.Errorf("The input graph's job failed: %v", g.Job().Err())
	}
	if diff := deep.Equal(sortedVertices(t, g.Vertices), before); diff != nil {
		t.Error(diff)
	}
}

func TestOverlapSplitClassifierPanic(t *testing.T) {
	op := &OverlapSplit{Classifier: ClassifierFunc(func(v *epgm.Vertex) (epgm.IDSet, error) {
		var m map[string]int
		m["x"] = 1
		return nil, nil
	})}
	_, err := op.Execute(context.Background(), abcGraph(2))
	if errors.Cause(err) != ErrClassifierFailed {
		t.Errorf("Expected a classifier failure, got %v", err)
	}
}

func TestOverlapSplitDanglingEdge(t *testing.T) {
	g := newTestGraph(2,
		[]*epgm.Vertex{{ID: 1, Label: "A"}},
		[]*epgm.Edge{{ID: 10, Source: 1, Target: 9}})
	_, err := (&OverlapSplit{Classifier: ByLabel(map[string][]epgm.ID{"A": {1}})}).Execute(context.Background(), g)
	if errors.Cause(err) != dataset.ErrDanglingReference {
		t.Errorf("Expected a dangling reference, got %v", err)
	}
}

func TestOverlapSplitWithoutClassifier(t *testing.T) {
	_, err := (&OverlapSplit{}).Execute(context.Background(), abcGraph(1))
	if !errors.IsNotValid(err) {
		t.Errorf("Expected NotValid, got %v", err)
	}
}

func TestOverlapSplitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := (&OverlapSplit{Classifier: ByLabel(nil)}).Execute(ctx, abcGraph(2))
	if errors.Cause(err) != context.Canceled {
		t.Errorf("Expected cancellation, got %v", err)
	}
}

func TestOverlapSplitResultOutlivesContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c, err := (&OverlapSplit{Classifier: ByLabel(map[string][]epgm.ID{"A": {1}, "B": {1}})}).Execute(ctx, abcGraph(2))
	cancel()
	if err != nil {
		t.Fatal(err)
	}
	if vs := sortedVertices(t, c.Vertices); len(vs) != 3 {
		t.Errorf("Got %d vertices", len(vs))
	}
	if es := sortedEdges(t, c.Edges); len(es) != 1 || es[0].ID != 10 {
		t.Errorf("Got edges %v", es)
	}
	if ids := headIDs(t, c); !ids.Equal(epgm.NewIDSet(1)) {
		t.Errorf("Graph heads are %v", ids)
	}
}

func TestClassifiers(t *testing.T) {
	v := &epgm.Vertex{ID: 1, Label: "Person", Properties: epgm.Properties{"age": 20.0}}
	byLabel := ByLabel(map[string][]epgm.ID{"Person": {1, 2}})
	ids, err := byLabel.Classify(v)
	if err != nil || !ids.Equal(epgm.NewIDSet(1, 2)) {
		t.Errorf("ByLabel returned %v, %v", ids, err)
	}
	ids.Add(3)
	if again, _ := byLabel.Classify(v); !again.Equal(epgm.NewIDSet(1, 2)) {
		t.Errorf("ByLabel result was shared: %v", again)
	}
	byAge := ByProperty("age", map[string][]epgm.ID{"20": {5}})
	if ids, _ := byAge.Classify(v); !ids.Equal(epgm.NewIDSet(5)) {
		t.Errorf("ByProperty returned %v", ids)
	}
	if ids, _ := ByProperty("name", nil).Classify(v); ids.Len() != 0 {
		t.Errorf("ByProperty classified a vertex without the property: %v", ids)
	}
	r := RandomClassifier(7, []epgm.ID{1, 2, 3}, 0.5)
	first, _ := r.Classify(v)
	second, _ := r.Classify(v)
	if !first.Equal(second) {
		t.Errorf("RandomClassifier is not deterministic: %v %v", first, second)
	}
	if all, _ := RandomClassifier(7, []epgm.ID{1, 2, 3}, 1).Classify(v); all.Len() != 3 {
		t.Errorf("RandomClassifier with probability 1 returned %v", all)
	}
}

func TestParseClassifier(t *testing.T) {
	c, err := ParseClassifier(map[string]interface{}{
		"type":    "property",
		"key":     "gender",
		"mapping": map[string]interface{}{"Male": []interface{}{1.0}},
	})
	if err != nil {
		t.Fatal(err)
	}
	ids, _ := c.Classify(&epgm.Vertex{Properties: epgm.Properties{"gender": "Male"}})
	if !reflect.DeepEqual(ids.Sorted(), []epgm.ID{1}) {
		t.Errorf("Classified into %v", ids)
	}
	bad := []map[string]interface{}{
		{"type": "magic"},
		{"type": "label", "mapping": map[string]interface{}{"A": []interface{}{1.5}}},
		{"type": "property", "mapping": map[string]interface{}{}},
		{"type": "random", "ids": []interface{}{1.0}},
	}
	for _, desc := range bad {
		if _, err := ParseClassifier(desc); !errors.IsNotValid(err) {
			t.Errorf("Expected NotValid for %v, got %v", desc, err)
		}
	}
}
