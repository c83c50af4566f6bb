package handler

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/rl1809/smart-shop/internal/core/domain"
	"github.com/rl1809/smart-shop/internal/core/service"
)

const (
	OrderServiceName        = "smartshop.OrderService"
	CreateOrderFullMethod   = "/" + OrderServiceName + "/CreateOrder"
	GetOrderFullMethod      = "/" + OrderServiceName + "/GetOrder"
	orderServiceProtoSource = "smartshop/order.proto"
)

// OrderServiceServer exchanges google.protobuf.Struct messages shaped like
// the REST bodies.
type OrderServiceServer interface {
	CreateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: OrderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "CreateOrder", Handler: unaryHandler(CreateOrderFullMethod, OrderServiceServer.CreateOrder)},
		{MethodName: "GetOrder", Handler: unaryHandler(GetOrderFullMethod, OrderServiceServer.GetOrder)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: orderServiceProtoSource,
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

func unaryHandler(
	fullMethod string,
	call func(OrderServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

type GRPCHandler struct {
	orders *service.OrderService
	logger *zap.Logger
}

func NewGRPCHandler(orders *service.OrderService, logger *zap.Logger) *GRPCHandler {
	return &GRPCHandler{orders: orders, logger: logger}
}

func (h *GRPCHandler) CreateOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in CreateOrderHTTPRequest
	if err := decodeStruct(req, &in); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid request: %v", err)
	}

	details, err := h.orders.CreateOrder(ctx, domain.CreateOrderRequest{
		RequestID: in.RequestID,
		UserID:    in.UserID,
		Items:     in.Items,
	})
	if err != nil {
		return nil, h.grpcError(err)
	}
	return encodeStruct(details)
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := req.GetFields()["id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "id is required")
	}

	details, err := h.orders.GetOrder(ctx, id)
	if err != nil {
		return nil, h.grpcError(err)
	}
	return encodeStruct(details)
}

func (h *GRPCHandler) grpcError(err error) error {
	code := grpcCode(err)
	if code == codes.Internal {
		h.logger.Error("grpc request failed", zap.Error(err))
		return status.Error(code, "internal error")
	}
	return status.Error(code, err.Error())
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrInvalidArgument):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrAlreadyExists), errors.Is(err, domain.ErrDuplicateRequest):
		return codes.AlreadyExists
	case errors.Is(err, domain.ErrOutOfStock),
		errors.Is(err, domain.ErrProductUnavailable),
		errors.Is(err, domain.ErrConflict):
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// decodeStruct maps a Struct onto a JSON-tagged Go value.
func decodeStruct(s *structpb.Struct, out any) error {
	raw, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func encodeStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(raw, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}

var _ OrderServiceServer = (*GRPCHandler)(nil)
