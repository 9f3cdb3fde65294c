// Functions to read and write the ordered disk.

package disk

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/juju/errors"

	"github.com/lynxkite/lynxkite/epgm/dataset"
	"github.com/lynxkite/lynxkite/epgm/epgm"
)

var arrowAllocator = memory.NewGoAllocator()

const collectionTypeName = "GraphCollection"

var elementFields = []arrow.Field{
	{Name: "id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "label", Type: arrow.BinaryTypes.String},
	{Name: "properties", Type: arrow.BinaryTypes.String},
	{Name: "graphs", Type: arrow.ListOf(arrow.PrimitiveTypes.Int64)},
}

var headSchema = arrow.NewSchema(elementFields[:3], nil)
var vertexSchema = arrow.NewSchema(elementFields, nil)
var edgeSchema = arrow.NewSchema(append([]arrow.Field{
	{Name: "src", Type: arrow.PrimitiveTypes.Int64},
	{Name: "dst", Type: arrow.PrimitiveTypes.Int64},
}, elementFields...), nil)

// elementBuilder builds the columns that every element kind has.
type elementBuilder struct {
	ids    *array.Int64Builder
	labels *array.StringBuilder
	props  *array.StringBuilder
	graphs *array.ListBuilder
}

func newElementBuilder(withGraphs bool) *elementBuilder {
	b := &elementBuilder{
		ids:    array.NewInt64Builder(arrowAllocator),
		labels: array.NewStringBuilder(arrowAllocator),
		props:  array.NewStringBuilder(arrowAllocator),
	}
	if withGraphs {
		b.graphs = array.NewListBuilder(arrowAllocator, arrow.PrimitiveTypes.Int64)
	}
	return b
}

func (b *elementBuilder) append(id epgm.ID, label string, props epgm.Properties, graphs epgm.IDSet) error {
	p, err := encodeProperties(props)
	if err != nil {
		return err
	}
	b.ids.Append(int64(id))
	b.labels.Append(label)
	b.props.Append(p)
	if b.graphs != nil {
		b.graphs.Append(true)
		values := b.graphs.ValueBuilder().(*array.Int64Builder)
		values.AppendValues(graphs.Int64s(), nil)
	}
	return nil
}

func (b *elementBuilder) arrays() []arrow.Array {
	cols := []arrow.Array{b.ids.NewArray(), b.labels.NewArray(), b.props.NewArray()}
	if b.graphs != nil {
		cols = append(cols, b.graphs.NewArray())
	}
	return cols
}

func (b *elementBuilder) release() {
	b.ids.Release()
	b.labels.Release()
	b.props.Release()
	if b.graphs != nil {
		b.graphs.Release()
	}
}

func newRecord(schema *arrow.Schema, cols []arrow.Array, n int) arrow.Record {
	rec := array.NewRecord(schema, cols, int64(n))
	for _, c := range cols {
		c.Release()
	}
	return rec
}

func headsRecord(heads []*epgm.GraphHead) (arrow.Record, error) {
	b := newElementBuilder(false)
	defer b.release()
	for _, h := range heads {
		if err := b.append(h.ID, h.Label, h.Properties, nil); err != nil {
			return nil, err
		}
	}
	return newRecord(headSchema, b.arrays(), len(heads)), nil
}

func verticesRecord(vertices []*epgm.Vertex) (arrow.Record, error) {
	b := newElementBuilder(true)
	defer b.release()
	for _, v := range vertices {
		if err := b.append(v.ID, v.Label, v.Properties, v.Graphs); err != nil {
			return nil, err
		}
	}
	return newRecord(vertexSchema, b.arrays(), len(vertices)), nil
}

func edgesRecord(edges []*epgm.Edge) (arrow.Record, error) {
	src := array.NewInt64Builder(arrowAllocator)
	defer src.Release()
	dst := array.NewInt64Builder(arrowAllocator)
	defer dst.Release()
	b := newElementBuilder(true)
	defer b.release()
	for _, e := range edges {
		src.Append(int64(e.Source))
		dst.Append(int64(e.Target))
		if err := b.append(e.ID, e.Label, e.Properties, e.Graphs); err != nil {
			return nil, err
		}
	}
	cols := append([]arrow.Array{src.NewArray(), dst.NewArray()}, b.arrays()...)
	return newRecord(edgeSchema, cols, len(edges)), nil
}

// elementColumns reads the common columns starting at column offset.
type elementColumns struct {
	ids    *array.Int64
	labels *array.String
	props  *array.String
	graphs *array.List
}

func newElementColumns(rec arrow.Record, offset int) (*elementColumns, error) {
	c := &elementColumns{}
	var ok bool
	if c.ids, ok = rec.Column(offset).(*array.Int64); !ok {
		return nil, errors.NotValidf("id column of type %v", rec.Column(offset).DataType())
	}
	if c.labels, ok = rec.Column(offset + 1).(*array.String); !ok {
		return nil, errors.NotValidf("label column of type %v", rec.Column(offset+1).DataType())
	}
	if c.props, ok = rec.Column(offset + 2).(*array.String); !ok {
		return nil, errors.NotValidf("properties column of type %v", rec.Column(offset+2).DataType())
	}
	if int(rec.NumCols()) > offset+3 {
		if c.graphs, ok = rec.Column(offset + 3).(*array.List); !ok {
			return nil, errors.NotValidf("graphs column of type %v", rec.Column(offset+3).DataType())
		}
	}
	return c, nil
}

func (c *elementColumns) properties(i int) (epgm.Properties, error) {
	return decodeProperties(c.props.Value(i))
}

func (c *elementColumns) graphSet(i int) epgm.IDSet {
	values := c.graphs.ListValues().(*array.Int64)
	start, end := c.graphs.ValueOffsets(i)
	ids := make([]int64, 0, end-start)
	for j := start; j < end; j++ {
		ids = append(ids, values.Value(int(j)))
	}
	return epgm.IDSetFromInt64s(ids)
}

// OrderedDisk keeps collections as arrow files under Dir/<guid>/. The records
// are sorted by ID.
type OrderedDisk struct {
	Dir string
}

func (d *OrderedDisk) Has(guid GUID) (bool, error) {
	return hasOnDisk(d.Dir, guid)
}

func (d *OrderedDisk) Write(ctx context.Context, guid GUID, c *epgm.GraphCollection) error {
	onDisk, err := d.Has(guid)
	if err != nil {
		return err
	}
	if onDisk {
		log.Info("{{guid}} is already on ordered disk", "guid", guid)
		return nil
	}
	log.Info("writing {{guid}} to ordered disk", "guid", guid)
	dirName := fmt.Sprintf("%v/%v", d.Dir, guid)
	if err := os.MkdirAll(dirName, 0775); err != nil {
		return errors.Trace(err)
	}
	if err := os.WriteFile(dirName+"/type_name", []byte(collectionTypeName), 0664); err != nil {
		return errors.Annotate(err, "writing type file")
	}
	heads, vertices, edges, err := collectAll(c.In(dataset.NewJob(ctx, c.Job().Env())))
	if err != nil {
		return errors.Annotatef(err, "collecting %v", guid)
	}
	sort.Slice(heads, func(i, j int) bool { return heads[i].ID < heads[j].ID })
	sort.Slice(vertices, func(i, j int) bool { return vertices[i].ID < vertices[j].ID })
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	records := []struct {
		name  string
		build func() (arrow.Record, error)
	}{
		{"graphs", func() (arrow.Record, error) { return headsRecord(heads) }},
		{"vertices", func() (arrow.Record, error) { return verticesRecord(vertices) }},
		{"edges", func() (arrow.Record, error) { return edgesRecord(edges) }},
	}
	for _, r := range records {
		rec, err := r.build()
		if err != nil {
			return errors.Annotatef(err, "converting %v of %v", r.name, guid)
		}
		err = writeArrow(fmt.Sprintf("%v/%v.arrow", dirName, r.name), rec)
		rec.Release()
		if err != nil {
			return err
		}
	}
	return writeSuccess(dirName)
}

func writeArrow(fname string, rec arrow.Record) error {
	f, err := os.Create(fname)
	if err != nil {
		return errors.Annotate(err, "creating arrow file")
	}
	defer f.Close()
	w, err := ipc.NewFileWriter(f, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(arrowAllocator))
	if err != nil {
		return errors.Annotate(err, "creating arrow writer")
	}
	if rec.NumRows() > 0 {
		if err := w.Write(rec); err != nil {
			return errors.Annotatef(err, "writing %v", fname)
		}
	}
	if err := w.Close(); err != nil {
		return errors.Annotatef(err, "writing %v", fname)
	}
	return errors.Trace(f.Close())
}

// readArrow calls fn with the record of the file. Empty files have no record
// and fn is not called.
func readArrow(fname string, fn func(rec arrow.Record) error) error {
	f, err := os.Open(fname)
	if err != nil {
		return errors.Trace(err)
	}
	defer f.Close()
	r, err := ipc.NewFileReader(f, ipc.WithAllocator(arrowAllocator))
	if err != nil {
		return errors.Annotatef(err, "opening %v", fname)
	}
	defer r.Close()
	switch n := r.NumRecords(); {
	case n == 0:
		return nil
	case n > 1:
		return errors.NotValidf("%v with %d records", fname, n)
	}
	rec, err := r.Record(0)
	if err != nil {
		return errors.Annotatef(err, "reading %v", fname)
	}
	return fn(rec)
}

func (d *OrderedDisk) Read(ctx context.Context, env *dataset.Env, guid GUID, opts ...ReadOption) (*epgm.GraphCollection, error) {
	onDisk, err := d.Has(guid)
	if err != nil {
		return nil, err
	}
	if !onDisk {
		return nil, errors.NotFoundf("%v on ordered disk", guid)
	}
	log.Info("reading {{guid}} from ordered disk", "guid", guid)
	dirName := fmt.Sprintf("%v/%v", d.Dir, guid)
	typeName, err := os.ReadFile(dirName + "/type_name")
	if err != nil {
		return nil, errors.Annotatef(err, "reading type of %v", guid)
	}
	if string(typeName) != collectionTypeName {
		return nil, errors.NotValidf("%v of type %q", guid, typeName)
	}
	var heads []*epgm.GraphHead
	var vertices []*epgm.Vertex
	var edges []*epgm.Edge
	err = readArrow(dirName+"/graphs.arrow", func(rec arrow.Record) error {
		c, err := newElementColumns(rec, 0)
		if err != nil {
			return err
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			props, err := c.properties(i)
			if err != nil {
				return err
			}
			heads = append(heads, &epgm.GraphHead{ID: epgm.ID(c.ids.Value(i)), Label: c.labels.Value(i), Properties: props})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = readArrow(dirName+"/vertices.arrow", func(rec arrow.Record) error {
		c, err := newElementColumns(rec, 0)
		if err != nil {
			return err
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			props, err := c.properties(i)
			if err != nil {
				return err
			}
			vertices = append(vertices, &epgm.Vertex{
				ID: epgm.ID(c.ids.Value(i)), Label: c.labels.Value(i), Properties: props,
				Graphs: c.graphSet(i),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	err = readArrow(dirName+"/edges.arrow", func(rec arrow.Record) error {
		src, ok := rec.Column(0).(*array.Int64)
		dst, ok2 := rec.Column(1).(*array.Int64)
		if !ok || !ok2 {
			return errors.NotValidf("edge endpoint columns in %v", guid)
		}
		c, err := newElementColumns(rec, 2)
		if err != nil {
			return err
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			props, err := c.properties(i)
			if err != nil {
				return err
			}
			edges = append(edges, &epgm.Edge{
				ID: epgm.ID(c.ids.Value(i)), Source: epgm.ID(src.Value(i)), Target: epgm.ID(dst.Value(i)),
				Label: c.labels.Value(i), Properties: props, Graphs: c.graphSet(i),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return newReadOptions(opts).newCollection(ctx, env, heads, vertices, edges)
}
