package epgm

import (
	"github.com/juju/errors"

	"github.com/lynxkite/lynxkite/epgm/dataset"
)

// LogicalGraph is one graph head with its vertices and edges.
type LogicalGraph struct {
	Head     *GraphHead
	Vertices *dataset.Dataset[*Vertex]
	Edges    *dataset.Dataset[*Edge]
}

// GraphCollection is a set of graph heads sharing one vertex and one edge
// dataset. The membership sets tell which elements belong to which graph; an
// element may belong to several of them.
type GraphCollection struct {
	Heads    *dataset.Dataset[*GraphHead]
	Vertices *dataset.Dataset[*Vertex]
	Edges    *dataset.Dataset[*Edge]
}

func NewLogicalGraph(job *dataset.Job, head *GraphHead, vertices []*Vertex, edges []*Edge) *LogicalGraph {
	return &LogicalGraph{
		Head:     head,
		Vertices: dataset.FromSlice(job, vertices),
		Edges:    dataset.FromSlice(job, edges),
	}
}

func NewGraphCollection(job *dataset.Job, heads []*GraphHead, vertices []*Vertex, edges []*Edge) *GraphCollection {
	return &GraphCollection{
		Heads:    dataset.FromSlice(job, heads),
		Vertices: dataset.FromSlice(job, vertices),
		Edges:    dataset.FromSlice(job, edges),
	}
}

func (g *LogicalGraph) Job() *dataset.Job {
	return g.Vertices.Job()
}

// In returns the same graph bound to another job.
func (g *LogicalGraph) In(job *dataset.Job) *LogicalGraph {
	return &LogicalGraph{
		Head:     g.Head,
		Vertices: dataset.Rebind(g.Vertices, job),
		Edges:    dataset.Rebind(g.Edges, job),
	}
}

// AsCollection returns a collection with g as its only member.
func (g *LogicalGraph) AsCollection() *GraphCollection {
	heads := []*GraphHead{}
	if g.Head != nil {
		heads = append(heads, g.Head)
	}
	return &GraphCollection{
		Heads:    dataset.FromSlice(g.Job(), heads),
		Vertices: g.Vertices,
		Edges:    g.Edges,
	}
}

func (g *LogicalGraph) CollectVertices() ([]*Vertex, error) {
	return dataset.Collect(g.Vertices)
}

func (g *LogicalGraph) CollectEdges() ([]*Edge, error) {
	return dataset.Collect(g.Edges)
}

func (c *GraphCollection) Job() *dataset.Job {
	return c.Vertices.Job()
}

func (c *GraphCollection) In(job *dataset.Job) *GraphCollection {
	return &GraphCollection{
		Heads:    dataset.Rebind(c.Heads, job),
		Vertices: dataset.Rebind(c.Vertices, job),
		Edges:    dataset.Rebind(c.Edges, job),
	}
}

func (c *GraphCollection) CollectHeads() ([]*GraphHead, error) {
	return dataset.Collect(c.Heads)
}

func (c *GraphCollection) CollectVertices() ([]*Vertex, error) {
	return dataset.Collect(c.Vertices)
}

func (c *GraphCollection) CollectEdges() ([]*Edge, error) {
	return dataset.Collect(c.Edges)
}

// Graph selects the member graph with the given ID: its head and the vertices
// and edges whose membership set contains id.
func (c *GraphCollection) Graph(id ID) (*LogicalGraph, error) {
	heads, err := dataset.Collect(dataset.Filter(c.Heads, func(h *GraphHead) (bool, error) {
		return h.ID == id, nil
	}))
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(heads) == 0 {
		return nil, errors.NotFoundf("graph %d", id)
	}
	g := &LogicalGraph{
		Head: heads[0],
		Vertices: dataset.Filter(c.Vertices, func(v *Vertex) (bool, error) {
			return v.Graphs.Contains(id), nil
		}),
		Edges: dataset.Filter(c.Edges, func(e *Edge) (bool, error) {
			return e.Graphs.Contains(id), nil
		}),
	}
	if err := g.Job().Err(); err != nil {
		return nil, errors.Trace(err)
	}
	return g, nil
}
