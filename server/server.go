// Package server is the gRPC front of the engine. A client asks it to compute
// operations on collections identified by GUIDs. Results stay in an in-memory
// cache and are spilled to the ordered disk in the background.
package server

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync"

	"github.com/juju/errors"
	"github.com/mandelsoft/logging"

	"github.com/lynxkite/lynxkite/epgm/config"
	"github.com/lynxkite/lynxkite/epgm/dataset"
	"github.com/lynxkite/lynxkite/epgm/disk"
	"github.com/lynxkite/lynxkite/epgm/epgm"
	"github.com/lynxkite/lynxkite/epgm/operators"
)

var REALM = logging.DefineRealm("epgm/server", "gRPC engine server")

var log = logging.DynamicLogger(logging.DefaultContext(), REALM)

type Server struct {
	entityCache   *EntityCache
	env           *dataset.Env
	orderedDisk   *disk.OrderedDisk
	unorderedDisk *disk.UnorderedDisk
	// Where inputs missing from the cache are looked up, in order.
	sources      []disk.Source
	spill        disk.Sink
	samplingSeed *int64
	spills       sync.WaitGroup
}

type Option func(*Server)

// WithSources replaces the ordered disk as the place to load missing inputs
// from.
func WithSources(sources ...disk.Source) Option {
	return func(s *Server) { s.sources = sources }
}

// WithSpill replaces the ordered disk as the place computed outputs are
// written to. A nil sink turns spilling off.
func WithSpill(sink disk.Sink) Option {
	return func(s *Server) { s.spill = sink }
}

func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	for _, dir := range []string{cfg.DataDir, cfg.UnorderedDataDir} {
		if err := os.MkdirAll(dir, 0775); err != nil {
			return nil, errors.Annotatef(err, "creating %v", dir)
		}
	}
	s := &Server{
		entityCache:   NewEntityCache(cfg.CacheMaxMemMB),
		env:           dataset.NewEnv(cfg.Parallelism),
		orderedDisk:   &disk.OrderedDisk{Dir: cfg.DataDir},
		unorderedDisk: &disk.UnorderedDisk{Dir: cfg.UnorderedDataDir},
		samplingSeed:  cfg.SamplingSeed(),
	}
	s.sources = []disk.Source{s.orderedDisk}
	s.spill = s.orderedDisk
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func OperationInstanceFromJSON(opJSON string) (*OperationInstance, error) {
	var opInst OperationInstance
	if err := json.Unmarshal([]byte(opJSON), &opInst); err != nil {
		return nil, errors.NewNotValid(err, "operation JSON")
	}
	return &opInst, nil
}

// shortOpName drops the package prefix of a fully qualified class name.
func shortOpName(opInst *OperationInstance) string {
	className := opInst.Operation.Class
	return className[strings.LastIndex(className, ".")+1:]
}

func (s *Server) CanCompute(ctx context.Context, in *CanComputeRequest) (*CanComputeReply, error) {
	opInst, err := OperationInstanceFromJSON(in.Operation)
	if err != nil {
		return nil, err
	}
	can := false
	if in.Domain == DomainMemory {
		if op, ok := operators.Lookup(shortOpName(opInst)); ok {
			can = op.CanCompute(opInst.Operation.Data)
		}
	}
	return &CanComputeReply{CanCompute: can}, nil
}

// params returns the operation parameters with the server defaults filled in.
func (s *Server) params(opInst *OperationInstance) map[string]interface{} {
	params := make(map[string]interface{}, len(opInst.Operation.Data)+1)
	for k, v := range opInst.Operation.Data {
		params[k] = v
	}
	if shortOpName(opInst) == "RandomNodeSampling" && s.samplingSeed != nil {
		if _, ok := params["seed"]; !ok {
			params["seed"] = float64(*s.samplingSeed)
		}
	}
	return params
}

func (s *Server) collectInputs(ctx context.Context, opInst *OperationInstance) (map[string]*epgm.GraphCollection, error) {
	inputs := make(map[string]*epgm.GraphCollection, len(opInst.Inputs))
	for name, guid := range opInst.Inputs {
		c, err := s.load(ctx, guid)
		if err != nil {
			return nil, errors.Annotatef(err, "input %v", name)
		}
		inputs[name] = c
	}
	return inputs, nil
}

// load returns the collection from the cache, or from the first source that
// has it.
func (s *Server) load(ctx context.Context, guid disk.GUID) (*epgm.GraphCollection, error) {
	if c, ok := s.entityCache.Get(guid); ok {
		return c, nil
	}
	for _, src := range s.sources {
		c, err := src.Read(ctx, s.env, guid)
		if errors.IsNotFound(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		c = s.detach(c)
		if err := c.Job().Err(); err != nil {
			return nil, err
		}
		s.entityCache.Set(guid, c)
		return c, nil
	}
	return nil, NotInCacheError("collection", guid)
}

// detach moves c to a job that outlives the request that created it.
func (s *Server) detach(c *epgm.GraphCollection) *epgm.GraphCollection {
	return c.In(dataset.NewJob(context.Background(), s.env))
}

func (s *Server) Compute(ctx context.Context, in *ComputeRequest) (*ComputeReply, error) {
	opInst, err := OperationInstanceFromJSON(in.Operation)
	if err != nil {
		return nil, err
	}
	name := shortOpName(opInst)
	if in.Domain != DomainMemory {
		return nil, errors.NotSupportedf("computing %v in %v", name, in.Domain)
	}
	op, ok := operators.Lookup(name)
	if !ok {
		return nil, errors.NotFoundf("operation %v", name)
	}
	log.Info("computing {{op}}", "op", name, "guid", opInst.GUID)
	inputs, err := s.collectInputs(ctx, opInst)
	if err != nil {
		return nil, err
	}
	ea := operators.NewEntityAccessor(s.env, inputs, s.params(opInst))
	if err := op.Execute(ctx, ea); err != nil {
		return nil, errors.Annotatef(err, "computing %v", name)
	}
	outputs := make(map[disk.GUID]*epgm.GraphCollection, len(ea.Outputs()))
	for outName, c := range ea.Outputs() {
		guid, ok := opInst.Outputs[outName]
		if !ok {
			return nil, errors.NotValidf("output %q of %v has no GUID", outName, name)
		}
		c = s.detach(c)
		if err := c.Job().Err(); err != nil {
			return nil, errors.Annotatef(err, "computing %v", name)
		}
		outputs[guid] = c
	}
	for guid, c := range outputs {
		s.entityCache.Set(guid, c)
		s.spillAsync(guid, c)
	}
	return &ComputeReply{}, nil
}

func (s *Server) spillAsync(guid disk.GUID, c *epgm.GraphCollection) {
	if s.spill == nil {
		return
	}
	s.spills.Add(1)
	go func() {
		defer s.spills.Done()
		if err := s.spill.Write(context.Background(), guid, c); err != nil {
			log.Error("spilling {{guid}} failed", "guid", guid, "error", err)
		}
	}()
}

// Wait blocks until the pending spills are written.
func (s *Server) Wait() {
	s.spills.Wait()
}

func (s *Server) HasInMemory(ctx context.Context, in *HasInMemoryRequest) (*HasInMemoryReply, error) {
	_, exists := s.entityCache.Get(in.Guid)
	return &HasInMemoryReply{HasInMemory: exists}, nil
}

func (s *Server) HasOnOrderedDisk(ctx context.Context, in *HasOnOrderedDiskRequest) (*HasOnOrderedDiskReply, error) {
	has, err := s.orderedDisk.Has(in.Guid)
	if err != nil {
		return nil, err
	}
	return &HasOnOrderedDiskReply{HasOnDisk: has}, nil
}

func (s *Server) WriteToUnorderedDisk(ctx context.Context, in *WriteToUnorderedDiskRequest) (*WriteToUnorderedDiskReply, error) {
	c, exists := s.entityCache.Get(in.Guid)
	if !exists {
		return nil, NotInCacheError("collection", in.Guid)
	}
	if err := s.unorderedDisk.Write(ctx, in.Guid, c); err != nil {
		return nil, err
	}
	return &WriteToUnorderedDiskReply{}, nil
}

func (s *Server) ReadFromUnorderedDisk(ctx context.Context, in *ReadFromUnorderedDiskRequest) (*ReadFromUnorderedDiskReply, error) {
	var opts []disk.ReadOption
	if len(in.VertexLabels) > 0 {
		opts = append(opts, disk.VertexLabelIn(in.VertexLabels...))
	}
	if len(in.EdgeLabels) > 0 {
		opts = append(opts, disk.EdgeLabelIn(in.EdgeLabels...))
	}
	c, err := s.unorderedDisk.Read(ctx, s.env, in.Guid, opts...)
	if err != nil {
		return nil, err
	}
	c = s.detach(c)
	if err := c.Job().Err(); err != nil {
		return nil, err
	}
	s.entityCache.Set(in.Guid, c)
	return &ReadFromUnorderedDiskReply{}, nil
}

func (s *Server) GetCollection(ctx context.Context, in *GetCollectionRequest) (*GetCollectionReply, error) {
	c, exists := s.entityCache.Get(in.Guid)
	if !exists {
		return nil, NotInCacheError("collection", in.Guid)
	}
	c = c.In(dataset.NewJob(ctx, s.env))
	heads, err := c.CollectHeads()
	if err != nil {
		return nil, err
	}
	vertices, err := c.CollectVertices()
	if err != nil {
		return nil, err
	}
	edges, err := c.CollectEdges()
	if err != nil {
		return nil, err
	}
	return &GetCollectionReply{Heads: heads, Vertices: vertices, Edges: edges}, nil
}

func (s *Server) Clear(ctx context.Context, in *ClearRequest) (*ClearReply, error) {
	var dir string
	switch in.Domain {
	case DomainMemory:
		s.entityCache.Clear()
		return &ClearReply{}, nil
	case DomainOrderedDisk:
		s.Wait()
		dir = s.orderedDisk.Dir
	case DomainUnorderedDisk:
		dir = s.unorderedDisk.Dir
	default:
		return nil, errors.NotValidf("domain %q", in.Domain)
	}
	if err := os.RemoveAll(dir); err != nil {
		return nil, errors.Trace(err)
	}
	if err := os.MkdirAll(dir, 0775); err != nil {
		return nil, errors.Trace(err)
	}
	return &ClearReply{}, nil
}
