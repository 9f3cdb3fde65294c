// The example graph used by tests and the ExampleGraph operation.

package epgm

import "github.com/lynxkite/lynxkite/epgm/dataset"

// ExampleGraphID is the graph head ID of ExampleGraph.
const ExampleGraphID ID = 1000

// ExampleGraph returns a small social graph: Adam, Eve, Bob and Isolated Joe
// (vertex IDs 0-3) with four edges between the first three.
func ExampleGraph(job *dataset.Job) *LogicalGraph {
	member := func() IDSet { return NewIDSet(ExampleGraphID) }
	person := func(id ID, name string, age float64, gender string, income interface{}) *Vertex {
		props := Properties{"name": name, "age": age, "gender": gender}
		if income != nil {
			props["income"] = income
		}
		return &Vertex{ID: id, Label: "Person", Properties: props, Graphs: member()}
	}
	vertices := []*Vertex{
		person(0, "Adam", 20.3, "Male", 1000.0),
		person(1, "Eve", 18.2, "Female", nil),
		person(2, "Bob", 50.3, "Male", 2000.0),
		person(3, "Isolated Joe", 2.0, "Male", nil),
	}
	edge := func(id, src, dst ID, label, comment string, weight float64) *Edge {
		return &Edge{
			ID: id, Source: src, Target: dst, Label: label,
			Properties: Properties{"comment": comment, "weight": weight},
			Graphs:     member(),
		}
	}
	edges := []*Edge{
		edge(0, 0, 1, "loves", "Adam loves Eve", 1),
		edge(1, 1, 0, "loves", "Eve loves Adam", 2),
		edge(2, 2, 0, "envies", "Bob envies Adam", 3),
		edge(3, 2, 1, "loves", "Bob loves Eve", 4),
	}
	head := &GraphHead{
		ID:         ExampleGraphID,
		Label:      "ExampleGraph",
		Properties: Properties{"greeting": "Hello world! 😀 "},
	}
	return NewLogicalGraph(job, head, vertices, edges)
}
