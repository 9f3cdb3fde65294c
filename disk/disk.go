// Package disk stores graph collections. The unordered disk keeps parquet part
// files that other tools can produce and consume. The ordered disk keeps one
// arrow file per element kind and is what the server uses as its own spill
// space. Both mark complete writes with a _SUCCESS file.
package disk

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/juju/errors"
	"github.com/mandelsoft/logging"

	"github.com/lynxkite/lynxkite/epgm/dataset"
	"github.com/lynxkite/lynxkite/epgm/epgm"
)

var REALM = logging.DefineRealm("epgm/disk", "graph storage")

var log = logging.DynamicLogger(logging.DefaultContext(), REALM)

// GUID identifies a stored collection.
type GUID string

type Source interface {
	Read(ctx context.Context, env *dataset.Env, guid GUID, opts ...ReadOption) (*epgm.GraphCollection, error)
}

type Sink interface {
	Write(ctx context.Context, guid GUID, c *epgm.GraphCollection) error
}

// ReadOption restricts what a Source returns.
type ReadOption func(*readOptions)

type readOptions struct {
	vertexLabels map[string]bool
	edgeLabels   map[string]bool
}

func labelSet(labels []string) map[string]bool {
	m := make(map[string]bool, len(labels))
	for _, l := range labels {
		m[l] = true
	}
	return m
}

// VertexLabelIn only reads the vertices with one of the given labels. Edges
// with an endpoint that was not read are skipped too.
func VertexLabelIn(labels ...string) ReadOption {
	return func(o *readOptions) { o.vertexLabels = labelSet(labels) }
}

// EdgeLabelIn only reads the edges with one of the given labels.
func EdgeLabelIn(labels ...string) ReadOption {
	return func(o *readOptions) { o.edgeLabels = labelSet(labels) }
}

func newReadOptions(opts []ReadOption) *readOptions {
	o := &readOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *readOptions) keepVertex(v *epgm.Vertex) bool {
	return o.vertexLabels == nil || o.vertexLabels[v.Label]
}

func (o *readOptions) keepEdge(e *epgm.Edge) bool {
	return o.edgeLabels == nil || o.edgeLabels[e.Label]
}

// newCollection builds the collection that was read and applies the filters.
func (o *readOptions) newCollection(
	ctx context.Context, env *dataset.Env,
	heads []*epgm.GraphHead, vertices []*epgm.Vertex, edges []*epgm.Edge) (*epgm.GraphCollection, error) {
	job := dataset.NewJob(ctx, env)
	c := epgm.NewGraphCollection(job, heads, vertices, edges)
	if o.vertexLabels == nil && o.edgeLabels == nil {
		return c, nil
	}
	c.Vertices = dataset.Filter(c.Vertices, func(v *epgm.Vertex) (bool, error) { return o.keepVertex(v), nil })
	c.Edges = dataset.Filter(c.Edges, func(e *epgm.Edge) (bool, error) { return o.keepEdge(e), nil })
	if o.vertexLabels != nil {
		keep := func(e *epgm.Edge, _ *epgm.Vertex) (*epgm.Edge, error) { return e, nil }
		c.Edges = dataset.Join(c.Edges, c.Vertices, epgm.EdgeSource, epgm.VertexID, keep)
		c.Edges = dataset.Join(c.Edges, c.Vertices, epgm.EdgeTarget, epgm.VertexID, keep)
	}
	if err := job.Err(); err != nil {
		return nil, errors.Annotate(err, "filtering graph elements")
	}
	return c, nil
}

func encodeProperties(p epgm.Properties) (string, error) {
	if len(p) == 0 {
		return "", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", errors.Annotate(err, "encoding properties")
	}
	return string(b), nil
}

func decodeProperties(s string) (epgm.Properties, error) {
	if s == "" {
		return nil, nil
	}
	var p epgm.Properties
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, errors.Annotatef(err, "decoding properties %q", s)
	}
	return p, nil
}

func hasOnDisk(dataDir string, guid GUID) (bool, error) {
	filename := fmt.Sprintf("%v/%v/_SUCCESS", dataDir, guid)
	_, err := os.Stat(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Trace(err)
	}
	return true, nil
}

func writeSuccess(dirName string) error {
	if err := os.WriteFile(dirName+"/_SUCCESS", nil, 0664); err != nil {
		return errors.Annotate(err, "writing success file")
	}
	return nil
}

// collectAll collects the three datasets of a collection.
func collectAll(c *epgm.GraphCollection) ([]*epgm.GraphHead, []*epgm.Vertex, []*epgm.Edge, error) {
	heads, err := c.CollectHeads()
	if err != nil {
		return nil, nil, nil, err
	}
	vertices, err := c.CollectVertices()
	if err != nil {
		return nil, nil, nil, err
	}
	edges, err := c.CollectEdges()
	if err != nil {
		return nil, nil, nil, err
	}
	return heads, vertices, edges, nil
}
