package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
)

const ServiceName = "exex.Exex"

// ExexServer exex.Exex 服务端接口
type ExexServer interface {
	Exec(context.Context, *ExecRequest) (*ExecResponse, error)
	Open(context.Context, *OpenRequest) (*OpenResponse, error)
	Read(context.Context, *ReadRequest) (*ReadResponse, error)
	Write(context.Context, *WriteRequest) (*WriteResponse, error)
	Scan(context.Context, *ScanRequest) (*ScanResponse, error)
	Delete(context.Context, *DeleteRequest) (*DeleteResponse, error)
	Create(context.Context, *CreateRequest) (*CreateResponse, error)
	Rename(context.Context, *RenameRequest) (*RenameResponse, error)
	ReloadPolicy(context.Context, *emptypb.Empty) (*ReloadPolicyResponse, error)
	Health(context.Context, *emptypb.Empty) (*HealthResponse, error)
	Shutdown(context.Context, *emptypb.Empty) (*ShutdownResponse, error)
	mustEmbedUnimplementedExexServer()
}

// UnimplementedExexServer 嵌入后未实现的方法返回 codes.Unimplemented
type UnimplementedExexServer struct{}

func (UnimplementedExexServer) Exec(context.Context, *ExecRequest) (*ExecResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Exec not implemented")
}
func (UnimplementedExexServer) Open(context.Context, *OpenRequest) (*OpenResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Open not implemented")
}
func (UnimplementedExexServer) Read(context.Context, *ReadRequest) (*ReadResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Read not implemented")
}
func (UnimplementedExexServer) Write(context.Context, *WriteRequest) (*WriteResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Write not implemented")
}
func (UnimplementedExexServer) Scan(context.Context, *ScanRequest) (*ScanResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Scan not implemented")
}
func (UnimplementedExexServer) Delete(context.Context, *DeleteRequest) (*DeleteResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Delete not implemented")
}
func (UnimplementedExexServer) Create(context.Context, *CreateRequest) (*CreateResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Create not implemented")
}
func (UnimplementedExexServer) Rename(context.Context, *RenameRequest) (*RenameResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Rename not implemented")
}
func (UnimplementedExexServer) ReloadPolicy(context.Context, *emptypb.Empty) (*ReloadPolicyResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ReloadPolicy not implemented")
}
func (UnimplementedExexServer) Health(context.Context, *emptypb.Empty) (*HealthResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Health not implemented")
}
func (UnimplementedExexServer) Shutdown(context.Context, *emptypb.Empty) (*ShutdownResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Shutdown not implemented")
}
func (UnimplementedExexServer) mustEmbedUnimplementedExexServer() {}

func RegisterExexServer(s grpc.ServiceRegistrar, srv ExexServer) {
	s.RegisterService(&Exex_ServiceDesc, srv)
}

func unaryMethod[Req, Resp any](name string, call func(ExexServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ExexServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ExexServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// Exex_ServiceDesc exex.Exex 的服务描述
var Exex_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExexServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("Exec", ExexServer.Exec),
		unaryMethod("Open", ExexServer.Open),
		unaryMethod("Read", ExexServer.Read),
		unaryMethod("Write", ExexServer.Write),
		unaryMethod("Scan", ExexServer.Scan),
		unaryMethod("Delete", ExexServer.Delete),
		unaryMethod("Create", ExexServer.Create),
		unaryMethod("Rename", ExexServer.Rename),
		unaryMethod("ReloadPolicy", ExexServer.ReloadPolicy),
		unaryMethod("Health", ExexServer.Health),
		unaryMethod("Shutdown", ExexServer.Shutdown),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "exex.proto",
}

// ExexClient exex.Exex 客户端
type ExexClient interface {
	Exec(ctx context.Context, in *ExecRequest, opts ...grpc.CallOption) (*ExecResponse, error)
	Open(ctx context.Context, in *OpenRequest, opts ...grpc.CallOption) (*OpenResponse, error)
	Read(ctx context.Context, in *ReadRequest, opts ...grpc.CallOption) (*ReadResponse, error)
	Write(ctx context.Context, in *WriteRequest, opts ...grpc.CallOption) (*WriteResponse, error)
	Scan(ctx context.Context, in *ScanRequest, opts ...grpc.CallOption) (*ScanResponse, error)
	Delete(ctx context.Context, in *DeleteRequest, opts ...grpc.CallOption) (*DeleteResponse, error)
	Create(ctx context.Context, in *CreateRequest, opts ...grpc.CallOption) (*CreateResponse, error)
	Rename(ctx context.Context, in *RenameRequest, opts ...grpc.CallOption) (*RenameResponse, error)
	ReloadPolicy(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*ReloadPolicyResponse, error)
	Health(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*HealthResponse, error)
	Shutdown(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*ShutdownResponse, error)
}

type exexClient struct {
	cc grpc.ClientConnInterface
}

func NewExexClient(cc grpc.ClientConnInterface) ExexClient {
	return &exexClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *exexClient) Exec(ctx context.Context, in *ExecRequest, opts ...grpc.CallOption) (*ExecResponse, error) {
	return invoke[ExecResponse](ctx, c.cc, "Exec", in, opts)
}

func (c *exexClient) Open(ctx context.Context, in *OpenRequest, opts ...grpc.CallOption) (*OpenResponse, error) {
	return invoke[OpenResponse](ctx, c.cc, "Open", in, opts)
}

func (c *exexClient) Read(ctx context.Context, in *ReadRequest, opts ...grpc.CallOption) (*ReadResponse, error) {
	return invoke[ReadResponse](ctx, c.cc, "Read", in, opts)
}

func (c *exexClient) Write(ctx context.Context, in *WriteRequest, opts ...grpc.CallOption) (*WriteResponse, error) {
	return invoke[WriteResponse](ctx, c.cc, "Write", in, opts)
}

func (c *exexClient) Scan(ctx context.Context, in *ScanRequest, opts ...grpc.CallOption) (*ScanResponse, error) {
	return invoke[ScanResponse](ctx, c.cc, "Scan", in, opts)
}

func (c *exexClient) Delete(ctx context.Context, in *DeleteRequest, opts ...grpc.CallOption) (*DeleteResponse, error) {
	return invoke[DeleteResponse](ctx, c.cc, "Delete", in, opts)
}

func (c *exexClient) Create(ctx context.Context, in *CreateRequest, opts ...grpc.CallOption) (*CreateResponse, error) {
	return invoke[CreateResponse](ctx, c.cc, "Create", in, opts)
}

func (c *exexClient) Rename(ctx context.Context, in *RenameRequest, opts ...grpc.CallOption) (*RenameResponse, error) {
	return invoke[RenameResponse](ctx, c.cc, "Rename", in, opts)
}

func (c *exexClient) ReloadPolicy(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*ReloadPolicyResponse, error) {
	return invoke[ReloadPolicyResponse](ctx, c.cc, "ReloadPolicy", in, opts)
}

func (c *exexClient) Health(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*HealthResponse, error) {
	return invoke[HealthResponse](ctx, c.cc, "Health", in, opts)
}

func (c *exexClient) Shutdown(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*ShutdownResponse, error) {
	return invoke[ShutdownResponse](ctx, c.cc, "Shutdown", in, opts)
}
