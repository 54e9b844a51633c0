package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Messages are google.protobuf.Struct values whose field names match the HTTP JSON API.
const (
	PaymentServiceName        = "terminalrelay.v1.PaymentService"
	PaymentPurchaseFullMethod = "/" + PaymentServiceName + "/Purchase"
	PaymentStatusFullMethod   = "/" + PaymentServiceName + "/Status"
)

// PaymentServiceServer is the server API for the PaymentService service
type PaymentServiceServer interface {
	Purchase(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	Status(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// PaymentServiceDesc describes PaymentService for grpc.Server.RegisterService
var PaymentServiceDesc = grpc.ServiceDesc{
	ServiceName: PaymentServiceName,
	HandlerType: (*PaymentServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Purchase", Handler: purchaseHandler},
		{MethodName: "Status", Handler: statusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "terminalrelay/v1/payment.proto",
}

// RegisterPaymentServiceServer registers srv on s
func RegisterPaymentServiceServer(s grpc.ServiceRegistrar, srv PaymentServiceServer) {
	s.RegisterService(&PaymentServiceDesc, srv)
}

func purchaseHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PaymentServiceServer).Purchase(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PaymentPurchaseFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PaymentServiceServer).Purchase(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

func statusHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(PaymentServiceServer).Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: PaymentStatusFullMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(PaymentServiceServer).Status(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// PaymentServiceClient calls PaymentService over a client connection
type PaymentServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewPaymentServiceClient creates a client on cc
func NewPaymentServiceClient(cc grpc.ClientConnInterface) *PaymentServiceClient {
	return &PaymentServiceClient{cc: cc}
}

// Purchase calls PaymentService/Purchase
func (c *PaymentServiceClient) Purchase(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PaymentPurchaseFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Status calls PaymentService/Status
func (c *PaymentServiceClient) Status(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, PaymentStatusFullMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
