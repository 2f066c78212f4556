package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified admin service name.
const ServiceName = "landing.v1.PayloadAdmin"

// Full method names.
const (
	LoginMethod   = "/" + ServiceName + "/Login"
	EncryptMethod = "/" + ServiceName + "/Encrypt"
	DecryptMethod = "/" + ServiceName + "/Decrypt"
	EventsMethod  = "/" + ServiceName + "/Events"
	StatsMethod   = "/" + ServiceName + "/Stats"
)

// PayloadAdminServer is the admin API. Messages are well-known types so no
// generated stubs are needed.
type PayloadAdminServer interface {
	// Login exchanges the admin secret for a bearer token.
	Login(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
	// Encrypt mints a payload from an instruction set; the reply holds payload and url.
	Encrypt(context.Context, *structpb.Struct) (*structpb.Struct, error)
	// Decrypt returns the validated instruction set carried by a payload.
	Decrypt(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	// Events lists recent analytics rows; the request holds optional since and limit.
	Events(context.Context, *structpb.Struct) (*structpb.ListValue, error)
	// Stats counts analytics rows newer than the given duration.
	Stats(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
}

func unaryHandler[Req any, Resp any](method string, call func(PayloadAdminServer, context.Context, *Req) (Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PayloadAdminServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PayloadAdminServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// PayloadAdminServiceDesc describes the admin service for grpc.Server.
var PayloadAdminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PayloadAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Login", Handler: unaryHandler(LoginMethod, PayloadAdminServer.Login)},
		{MethodName: "Encrypt", Handler: unaryHandler(EncryptMethod, PayloadAdminServer.Encrypt)},
		{MethodName: "Decrypt", Handler: unaryHandler(DecryptMethod, PayloadAdminServer.Decrypt)},
		{MethodName: "Events", Handler: unaryHandler(EventsMethod, PayloadAdminServer.Events)},
		{MethodName: "Stats", Handler: unaryHandler(StatsMethod, PayloadAdminServer.Stats)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "landing/v1/admin",
}

// RegisterPayloadAdminServer registers srv on s.
func RegisterPayloadAdminServer(s grpc.ServiceRegistrar, srv PayloadAdminServer) {
	s.RegisterService(&PayloadAdminServiceDesc, srv)
}

// AdminClient calls PayloadAdmin over an existing connection.
type AdminClient struct {
	cc grpc.ClientConnInterface
}

// NewAdminClient wraps cc.
func NewAdminClient(cc grpc.ClientConnInterface) *AdminClient {
	return &AdminClient{cc: cc}
}

func (c *AdminClient) Login(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.StringValue, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, LoginMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminClient) Encrypt(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, EncryptMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminClient) Decrypt(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, DecryptMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminClient) Events(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, EventsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdminClient) Stats(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, StatsMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
