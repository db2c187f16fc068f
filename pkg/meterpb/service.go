package meterpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// PushMethod is the full gRPC method name of ReadingService.Push.
const PushMethod = "/wattboard.meter.v1.ReadingService/Push"

// ReadingServiceServer is implemented by the server-side receiver.
type ReadingServiceServer interface {
	Push(context.Context, *Batch) (*PushResponse, error)
}

// UnimplementedReadingServiceServer can be embedded to satisfy
// ReadingServiceServer before every method is written.
type UnimplementedReadingServiceServer struct{}

func (UnimplementedReadingServiceServer) Push(context.Context, *Batch) (*PushResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Push not implemented")
}

// ReadingServiceDesc describes ReadingService for grpc.Server.RegisterService.
var ReadingServiceDesc = grpc.ServiceDesc{
	ServiceName: "wattboard.meter.v1.ReadingService",
	HandlerType: (*ReadingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Push", Handler: pushHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "wattboard/meter/v1/reading.proto",
}

// RegisterReadingServiceServer attaches srv to s.
func RegisterReadingServiceServer(s grpc.ServiceRegistrar, srv ReadingServiceServer) {
	s.RegisterService(&ReadingServiceDesc, srv)
}

func pushHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Batch)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReadingServiceServer).Push(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PushMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ReadingServiceServer).Push(ctx, req.(*Batch))
	}
	return interceptor(ctx, in, info, handler)
}

// ReadingServiceClient is the agent-side stub.
type ReadingServiceClient interface {
	Push(ctx context.Context, in *Batch, opts ...grpc.CallOption) (*PushResponse, error)
}

type readingServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewReadingServiceClient returns a client that sends JSON-encoded calls on cc.
func NewReadingServiceClient(cc grpc.ClientConnInterface) ReadingServiceClient {
	return &readingServiceClient{cc: cc}
}

func (c *readingServiceClient) Push(ctx context.Context, in *Batch, opts ...grpc.CallOption) (*PushResponse, error) {
	out := new(PushResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, PushMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
