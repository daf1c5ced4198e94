package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "uniqueid.v1.IDService"

const (
	methodGenerate = "/" + ServiceName + "/Generate"
	methodExec     = "/" + ServiceName + "/Exec"
)

// IDServiceServer is the server API for the identifier service.
//
// Generate takes an id kind and returns one identifier of that kind.
// Exec takes the ID.EXEC arguments (target first) and returns the
// two-element [generated, result] list.
type IDServiceServer interface {
	Generate(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	Exec(context.Context, *structpb.ListValue) (*structpb.ListValue, error)
}

// RegisterIDServiceServer registers srv on s.
func RegisterIDServiceServer(s grpc.ServiceRegistrar, srv IDServiceServer) {
	s.RegisterService(&IDServiceDesc, srv)
}

func _IDService_Generate_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IDServiceServer).Generate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodGenerate,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IDServiceServer).Generate(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _IDService_Exec_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.ListValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(IDServiceServer).Exec(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodExec,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(IDServiceServer).Exec(ctx, req.(*structpb.ListValue))
	}
	return interceptor(ctx, in, info, handler)
}

// IDServiceDesc is the grpc.ServiceDesc for IDService.
var IDServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IDServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Generate",
			Handler:    _IDService_Generate_Handler,
		},
		{
			MethodName: "Exec",
			Handler:    _IDService_Exec_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "uniqueid/v1/id_service.proto",
}

// Client is a thin client for IDService.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a Client over cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Generate requests one identifier of kind.
func (c *Client) Generate(ctx context.Context, kind string, opts ...grpc.CallOption) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, methodGenerate, wrapperspb.String(kind), out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// Exec runs ID.EXEC remotely. Integer replies arrive as decimal strings.
func (c *Client) Exec(ctx context.Context, args []string, opts ...grpc.CallOption) ([]interface{}, error) {
	in := &structpb.ListValue{Values: make([]*structpb.Value, len(args))}
	for i, a := range args {
		in.Values[i] = structpb.NewStringValue(a)
	}

	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, methodExec, in, out, opts...); err != nil {
		return nil, err
	}
	return out.AsSlice(), nil
}
