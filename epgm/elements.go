package epgm

// Properties is the opaque payload of an element. The engine copies it but
// never looks inside.
type Properties map[string]interface{}

func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	c := make(Properties, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

type GraphHead struct {
	ID         ID
	Label      string
	Properties Properties
}

// Vertex is a graph vertex. Graphs is the set of graphs it belongs to.
// Operators never modify a vertex they received, they derive a new one.
type Vertex struct {
	ID         ID
	Label      string
	Properties Properties
	Graphs     IDSet
}

// WithGraphs returns a copy of the vertex with a different membership set.
func (v *Vertex) WithGraphs(graphs IDSet) *Vertex {
	c := *v
	c.Graphs = graphs
	return &c
}

// Edge is a directed edge between the vertices with IDs Source and Target.
// Its membership set must be a subset of the membership sets of both
// endpoints.
type Edge struct {
	ID         ID
	Source     ID
	Target     ID
	Label      string
	Properties Properties
	Graphs     IDSet
}

func (e *Edge) WithGraphs(graphs IDSet) *Edge {
	c := *e
	c.Graphs = graphs
	return &c
}

// Key functions for keyed dataset operations.

func VertexID(v *Vertex) ID { return v.ID }
func EdgeID(e *Edge) ID { return e.ID }
func EdgeSource(e *Edge) ID { return e.Source }
func EdgeTarget(e *Edge) ID { return e.Target }
func GraphHeadID(g *GraphHead) ID { return g.ID }
