// Functions to read and write the unordered disk.

package disk

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/juju/errors"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/lynxkite/lynxkite/epgm/dataset"
	"github.com/lynxkite/lynxkite/epgm/epgm"
)

const numGoRoutines int64 = 4

type GraphHeadRow struct {
	Id         int64  `parquet:"name=id, type=INT64"`
	Label      string `parquet:"name=label, type=UTF8"`
	Properties string `parquet:"name=properties, type=UTF8"`
}

type VertexRow struct {
	Id         int64   `parquet:"name=id, type=INT64"`
	Label      string  `parquet:"name=label, type=UTF8"`
	Properties string  `parquet:"name=properties, type=UTF8"`
	Graphs     []int64 `parquet:"name=graphs, type=LIST, valuetype=INT64"`
}

type EdgeRow struct {
	Id         int64   `parquet:"name=id, type=INT64"`
	Src        int64   `parquet:"name=src, type=INT64"`
	Dst        int64   `parquet:"name=dst, type=INT64"`
	Label      string  `parquet:"name=label, type=UTF8"`
	Properties string  `parquet:"name=properties, type=UTF8"`
	Graphs     []int64 `parquet:"name=graphs, type=LIST, valuetype=INT64"`
}

func toGraphHeadRow(h *epgm.GraphHead) (interface{}, error) {
	props, err := encodeProperties(h.Properties)
	if err != nil {
		return nil, err
	}
	return GraphHeadRow{Id: int64(h.ID), Label: h.Label, Properties: props}, nil
}

func toVertexRow(v *epgm.Vertex) (interface{}, error) {
	props, err := encodeProperties(v.Properties)
	if err != nil {
		return nil, err
	}
	return VertexRow{Id: int64(v.ID), Label: v.Label, Properties: props, Graphs: v.Graphs.Int64s()}, nil
}

func toEdgeRow(e *epgm.Edge) (interface{}, error) {
	props, err := encodeProperties(e.Properties)
	if err != nil {
		return nil, err
	}
	return EdgeRow{
		Id: int64(e.ID), Src: int64(e.Source), Dst: int64(e.Target),
		Label: e.Label, Properties: props, Graphs: e.Graphs.Int64s(),
	}, nil
}

func (r *GraphHeadRow) toGraphHead() (*epgm.GraphHead, error) {
	props, err := decodeProperties(r.Properties)
	if err != nil {
		return nil, err
	}
	return &epgm.GraphHead{ID: epgm.ID(r.Id), Label: r.Label, Properties: props}, nil
}

func (r *VertexRow) toVertex() (*epgm.Vertex, error) {
	props, err := decodeProperties(r.Properties)
	if err != nil {
		return nil, err
	}
	return &epgm.Vertex{
		ID: epgm.ID(r.Id), Label: r.Label, Properties: props,
		Graphs: epgm.IDSetFromInt64s(r.Graphs),
	}, nil
}

func (r *EdgeRow) toEdge() (*epgm.Edge, error) {
	props, err := decodeProperties(r.Properties)
	if err != nil {
		return nil, err
	}
	return &epgm.Edge{
		ID: epgm.ID(r.Id), Source: epgm.ID(r.Src), Target: epgm.ID(r.Dst),
		Label: r.Label, Properties: props, Graphs: epgm.IDSetFromInt64s(r.Graphs),
	}, nil
}

// UnorderedDisk keeps collections as parquet files under
// Dir/<guid>/{graphs,vertices,edges}/part-NNNNN.parquet. Every partition of a
// dataset becomes one part file. Any number of part files can be read.
type UnorderedDisk struct {
	Dir string
}

func (d *UnorderedDisk) Has(guid GUID) (bool, error) {
	return hasOnDisk(d.Dir, guid)
}

func (d *UnorderedDisk) Write(ctx context.Context, guid GUID, c *epgm.GraphCollection) error {
	onDisk, err := d.Has(guid)
	if err != nil {
		return err
	}
	if onDisk {
		log.Info("{{guid}} is already on unordered disk", "guid", guid)
		return nil
	}
	log.Info("writing {{guid}} to unordered disk", "guid", guid)
	dirName := fmt.Sprintf("%v/%v", d.Dir, guid)
	// Leftovers of an interrupted write.
	if err := os.RemoveAll(dirName); err != nil {
		return errors.Trace(err)
	}
	c = c.In(dataset.NewJob(ctx, c.Job().Env()))
	if err := writeParquet(dirName+"/graphs", c.Heads, new(GraphHeadRow), toGraphHeadRow); err != nil {
		return errors.Annotatef(err, "writing graph heads of %v", guid)
	}
	if err := writeParquet(dirName+"/vertices", c.Vertices, new(VertexRow), toVertexRow); err != nil {
		return errors.Annotatef(err, "writing vertices of %v", guid)
	}
	if err := writeParquet(dirName+"/edges", c.Edges, new(EdgeRow), toEdgeRow); err != nil {
		return errors.Annotatef(err, "writing edges of %v", guid)
	}
	return writeSuccess(dirName)
}

func writeParquet[T any](dirName string, ds *dataset.Dataset[T], schema interface{}, toRow func(T) (interface{}, error)) error {
	if err := os.MkdirAll(dirName, 0775); err != nil {
		return errors.Trace(err)
	}
	return dataset.ForEachPartition(ds, func(partition int, in []T) error {
		if len(in) == 0 {
			return nil
		}
		fname := fmt.Sprintf("%v/part-%05d.parquet", dirName, partition)
		fw, err := local.NewLocalFileWriter(fname)
		if err != nil {
			return errors.Annotatef(err, "creating %v", fname)
		}
		defer fw.Close()
		pw, err := writer.NewParquetWriter(fw, schema, numGoRoutines)
		if err != nil {
			return errors.Annotate(err, "creating parquet writer")
		}
		for _, t := range in {
			row, err := toRow(t)
			if err != nil {
				return err
			}
			if err := pw.Write(row); err != nil {
				return errors.Annotatef(err, "writing %v", fname)
			}
		}
		if err := pw.WriteStop(); err != nil {
			return errors.Annotatef(err, "finishing %v", fname)
		}
		return nil
	})
}

// readParquet reads the rows of all part files in a directory.
func readParquet[R any](dirName string) ([]R, error) {
	files, err := os.ReadDir(dirName)
	if err != nil {
		return nil, errors.Annotate(err, "listing part files")
	}
	rows := make([]R, 0)
	for _, f := range files {
		if !strings.HasPrefix(f.Name(), "part-") {
			continue
		}
		path := fmt.Sprintf("%v/%v", dirName, f.Name())
		partialRows, err := readParquetFile[R](path)
		if err != nil {
			return nil, err
		}
		rows = append(rows, partialRows...)
	}
	return rows, nil
}

func readParquetFile[R any](path string) ([]R, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, errors.Annotatef(err, "opening %v", path)
	}
	defer fr.Close()
	pr, err := reader.NewParquetReader(fr, new(R), numGoRoutines)
	if err != nil {
		return nil, errors.Annotatef(err, "creating parquet reader for %v", path)
	}
	defer pr.ReadStop()
	rows := make([]R, int(pr.GetNumRows()))
	if err := pr.Read(&rows); err != nil {
		return nil, errors.Annotatef(err, "reading %v", path)
	}
	return rows, nil
}

func (d *UnorderedDisk) Read(ctx context.Context, env *dataset.Env, guid GUID, opts ...ReadOption) (*epgm.GraphCollection, error) {
	onDisk, err := d.Has(guid)
	if err != nil {
		return nil, err
	}
	if !onDisk {
		return nil, errors.NotFoundf("%v on unordered disk", guid)
	}
	log.Info("reading {{guid}} from unordered disk", "guid", guid)
	dirName := fmt.Sprintf("%v/%v", d.Dir, guid)
	headRows, err := readParquet[GraphHeadRow](dirName + "/graphs")
	if err != nil {
		return nil, err
	}
	vertexRows, err := readParquet[VertexRow](dirName + "/vertices")
	if err != nil {
		return nil, err
	}
	edgeRows, err := readParquet[EdgeRow](dirName + "/edges")
	if err != nil {
		return nil, err
	}
	o := newReadOptions(opts)
	heads := make([]*epgm.GraphHead, len(headRows))
	for i := range headRows {
		if heads[i], err = headRows[i].toGraphHead(); err != nil {
			return nil, err
		}
	}
	vertices := make([]*epgm.Vertex, 0, len(vertexRows))
	for i := range vertexRows {
		v, err := vertexRows[i].toVertex()
		if err != nil {
			return nil, err
		}
		vertices = append(vertices, v)
	}
	edges := make([]*epgm.Edge, 0, len(edgeRows))
	for i := range edgeRows {
		e, err := edgeRows[i].toEdge()
		if err != nil {
			return nil, err
		}
		edges = append(edges, e)
	}
	return o.newCollection(ctx, env, heads, vertices, edges)
}
