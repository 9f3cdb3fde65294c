// The gRPC service definition. Messages are plain structs sent with the JSON
// codec.

package server

import (
	"context"
	"encoding/json"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/lynxkite/lynxkite/epgm/disk"
	"github.com/lynxkite/lynxkite/epgm/epgm"
)

const codecName = "json"

type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func (jsonCodec) Name() string {
	return codecName
}

func init() {
	encoding.RegisterCodec(jsonCodec{})
}

// Domains name where an entity lives.
const (
	DomainMemory        = "EngineMemory"
	DomainOrderedDisk   = "OrderedEngineDisk"
	DomainUnorderedDisk = "UnorderedEngineDisk"
)

type OperationDescription struct {
	Class string
	Data  map[string]interface{}
}

type OperationInstance struct {
	GUID      disk.GUID
	Inputs    map[string]disk.GUID
	Outputs   map[string]disk.GUID
	Operation OperationDescription
}

type CanComputeRequest struct {
	Operation string
	Domain    string
}

type CanComputeReply struct {
	CanCompute bool
}

type ComputeRequest struct {
	Operation string
	Domain    string
}

type ComputeReply struct{}

type HasInMemoryRequest struct {
	Guid disk.GUID
}

type HasInMemoryReply struct {
	HasInMemory bool
}

type HasOnOrderedDiskRequest struct {
	Guid disk.GUID
}

type HasOnOrderedDiskReply struct {
	HasOnDisk bool
}

type WriteToUnorderedDiskRequest struct {
	Guid disk.GUID
}

type WriteToUnorderedDiskReply struct{}

type ReadFromUnorderedDiskRequest struct {
	Guid         disk.GUID
	VertexLabels []string
	EdgeLabels   []string
}

type ReadFromUnorderedDiskReply struct{}

type GetCollectionRequest struct {
	Guid disk.GUID
}

type GetCollectionReply struct {
	Heads    []*epgm.GraphHead
	Vertices []*epgm.Vertex
	Edges    []*epgm.Edge
}

type ClearRequest struct {
	Domain string
}

type ClearReply struct{}

type EngineServer interface {
	CanCompute(context.Context, *CanComputeRequest) (*CanComputeReply, error)
	Compute(context.Context, *ComputeRequest) (*ComputeReply, error)
	HasInMemory(context.Context, *HasInMemoryRequest) (*HasInMemoryReply, error)
	HasOnOrderedDisk(context.Context, *HasOnOrderedDiskRequest) (*HasOnOrderedDiskReply, error)
	WriteToUnorderedDisk(context.Context, *WriteToUnorderedDiskRequest) (*WriteToUnorderedDiskReply, error)
	ReadFromUnorderedDisk(context.Context, *ReadFromUnorderedDiskRequest) (*ReadFromUnorderedDiskReply, error)
	GetCollection(context.Context, *GetCollectionRequest) (*GetCollectionReply, error)
	Clear(context.Context, *ClearRequest) (*ClearReply, error)
}

const serviceName = "epgm.Engine"

func unaryMethod[Req, Rep any](name string, call func(EngineServer, context.Context, *Req) (*Rep, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(EngineServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + name}
			handler := func(ctx context.Context, req interface{}) (interface{}, error) {
				return call(srv.(EngineServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var engineServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*EngineServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("CanCompute", EngineServer.CanCompute),
		unaryMethod("Compute", EngineServer.Compute),
		unaryMethod("HasInMemory", EngineServer.HasInMemory),
		unaryMethod("HasOnOrderedDisk", EngineServer.HasOnOrderedDisk),
		unaryMethod("WriteToUnorderedDisk", EngineServer.WriteToUnorderedDisk),
		unaryMethod("ReadFromUnorderedDisk", EngineServer.ReadFromUnorderedDisk),
		unaryMethod("GetCollection", EngineServer.GetCollection),
		unaryMethod("Clear", EngineServer.Clear),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "engine",
}

func RegisterEngineServer(s grpc.ServiceRegistrar, srv EngineServer) {
	s.RegisterService(&engineServiceDesc, srv)
}

// EngineClient calls the service over a connection. All calls use the JSON
// codec.
type EngineClient struct {
	cc grpc.ClientConnInterface
}

func NewEngineClient(cc grpc.ClientConnInterface) *EngineClient {
	return &EngineClient{cc: cc}
}

func invoke[Rep any](ctx context.Context, c *EngineClient, method string, in interface{}, opts []grpc.CallOption) (*Rep, error) {
	out := new(Rep)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *EngineClient) CanCompute(ctx context.Context, in *CanComputeRequest, opts ...grpc.CallOption) (*CanComputeReply, error) {
	return invoke[CanComputeReply](ctx, c, "CanCompute", in, opts)
}

func (c *EngineClient) Compute(ctx context.Context, in *ComputeRequest, opts ...grpc.CallOption) (*ComputeReply, error) {
	return invoke[ComputeReply](ctx, c, "Compute", in, opts)
}

func (c *EngineClient) HasInMemory(ctx context.Context, in *HasInMemoryRequest, opts ...grpc.CallOption) (*HasInMemoryReply, error) {
	return invoke[HasInMemoryReply](ctx, c, "HasInMemory", in, opts)
}

func (c *EngineClient) HasOnOrderedDisk(ctx context.Context, in *HasOnOrderedDiskRequest, opts ...grpc.CallOption) (*HasOnOrderedDiskReply, error) {
	return invoke[HasOnOrderedDiskReply](ctx, c, "HasOnOrderedDisk", in, opts)
}

func (c *EngineClient) WriteToUnorderedDisk(ctx context.Context, in *WriteToUnorderedDiskRequest, opts ...grpc.CallOption) (*WriteToUnorderedDiskReply, error) {
	return invoke[WriteToUnorderedDiskReply](ctx, c, "WriteToUnorderedDisk", in, opts)
}

func (c *EngineClient) ReadFromUnorderedDisk(ctx context.Context, in *ReadFromUnorderedDiskRequest, opts ...grpc.CallOption) (*ReadFromUnorderedDiskReply, error) {
	return invoke[ReadFromUnorderedDiskReply](ctx, c, "ReadFromUnorderedDisk", in, opts)
}

func (c *EngineClient) GetCollection(ctx context.Context, in *GetCollectionRequest, opts ...grpc.CallOption) (*GetCollectionReply, error) {
	return invoke[GetCollectionReply](ctx, c, "GetCollection", in, opts)
}

func (c *EngineClient) Clear(ctx context.Context, in *ClearRequest, opts ...grpc.CallOption) (*ClearReply, error) {
	return invoke[ClearReply](ctx, c, "Clear", in, opts)
}
