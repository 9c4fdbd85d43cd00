// Package proto declares the tfs.Stat gRPC service. Messages are protobuf
// well-known types: the request is the filesystem name, the response a
// Struct keyed by the constants below.
package proto

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	StatServiceName        = "tfs.Stat"
	StatStatFullMethodName = "/tfs.Stat/Stat"
)

// Response keys.
const (
	KeyID           = "id"
	KeyName         = "name"
	KeyBlockSize    = "blockSize"
	KeyBlocks       = "blocks"
	KeyBlocksFree   = "blocksFree"
	KeyInodes       = "inodes"
	KeyInodesFree   = "inodesFree"
	KeyOpenFiles    = "openFiles"
	KeyOpenFilesMax = "openFilesMax"
	KeyDirEntries   = "dirEntries"
	KeyDirCapacity  = "dirCapacity"
	KeyRSS          = "rss"
)

// StatClient is the client API for the tfs.Stat service.
type StatClient interface {
	Stat(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type statClient struct {
	cc grpc.ClientConnInterface
}

func NewStatClient(cc grpc.ClientConnInterface) StatClient {
	return &statClient{cc}
}

func (c *statClient) Stat(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, StatStatFullMethodName, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// StatServer is the server API for the tfs.Stat service.
type StatServer interface {
	Stat(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

// UnimplementedStatServer can be embedded to have forward compatible implementations.
type UnimplementedStatServer struct{}

func (UnimplementedStatServer) Stat(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Errorf(codes.Unimplemented, "method Stat not implemented")
}

func RegisterStatServer(s grpc.ServiceRegistrar, srv StatServer) {
	s.RegisterService(&StatServiceDesc, srv)
}

func statHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(StatServer).Stat(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: StatStatFullMethodName,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(StatServer).Stat(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// StatServiceDesc is the grpc.ServiceDesc for the tfs.Stat service.
var StatServiceDesc = grpc.ServiceDesc{
	ServiceName: StatServiceName,
	HandlerType: (*StatServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Stat",
			Handler:    statHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tfs/stat.proto",
}
