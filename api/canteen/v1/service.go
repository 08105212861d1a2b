package canteenv1

import (
	"context"
	"encoding/base64"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	StorefrontServiceName = "canteen.v1.StorefrontService"
	AdminServiceName      = "canteen.v1.AdminService"

	StorefrontService_ListProducts_FullMethodName = "/canteen.v1.StorefrontService/ListProducts"
	StorefrontService_Checkout_FullMethodName     = "/canteen.v1.StorefrontService/Checkout"
	StorefrontService_GetOrder_FullMethodName     = "/canteen.v1.StorefrontService/GetOrder"
	StorefrontService_GetSettings_FullMethodName  = "/canteen.v1.StorefrontService/GetSettings"

	AdminService_UpsertProduct_FullMethodName  = "/canteen.v1.AdminService/UpsertProduct"
	AdminService_DeleteProduct_FullMethodName  = "/canteen.v1.AdminService/DeleteProduct"
	AdminService_AdjustStock_FullMethodName    = "/canteen.v1.AdminService/AdjustStock"
	AdminService_ListOrders_FullMethodName     = "/canteen.v1.AdminService/ListOrders"
	AdminService_MarkCompleted_FullMethodName  = "/canteen.v1.AdminService/MarkCompleted"
	AdminService_CancelOrder_FullMethodName    = "/canteen.v1.AdminService/CancelOrder"
	AdminService_DeleteOrder_FullMethodName    = "/canteen.v1.AdminService/DeleteOrder"
	AdminService_GetStats_FullMethodName       = "/canteen.v1.AdminService/GetStats"
	AdminService_UpdateSettings_FullMethodName = "/canteen.v1.AdminService/UpdateSettings"

	// IdempotencyKeyHeader — metadata с ключом идемпотентности оформления заказа.
	IdempotencyKeyHeader = "idempotency-key"
	// AuthorizationHeader — metadata с Basic-учётными данными администратора.
	AuthorizationHeader = "authorization"
)

// StorefrontServiceServer — операции покупателя.
type StorefrontServiceServer interface {
	ListProducts(context.Context, *ListProductsRequest) (*ListProductsResponse, error)
	Checkout(context.Context, *CheckoutRequest) (*CheckoutResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error)
	GetSettings(context.Context, *GetSettingsRequest) (*SettingsResponse, error)
}

// AdminServiceServer — операции администратора.
type AdminServiceServer interface {
	UpsertProduct(context.Context, *UpsertProductRequest) (*UpsertProductResponse, error)
	DeleteProduct(context.Context, *DeleteProductRequest) (*DeleteProductResponse, error)
	AdjustStock(context.Context, *AdjustStockRequest) (*AdjustStockResponse, error)
	ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error)
	MarkCompleted(context.Context, *OrderActionRequest) (*OrderActionResponse, error)
	CancelOrder(context.Context, *OrderActionRequest) (*OrderActionResponse, error)
	DeleteOrder(context.Context, *OrderActionRequest) (*OrderActionResponse, error)
	GetStats(context.Context, *GetStatsRequest) (*Stats, error)
	UpdateSettings(context.Context, *UpdateSettingsRequest) (*SettingsResponse, error)
}

// UnimplementedStorefrontServiceServer встраивается в реализации ради совместимости вперёд.
type UnimplementedStorefrontServiceServer struct{}

func (UnimplementedStorefrontServiceServer) ListProducts(context.Context, *ListProductsRequest) (*ListProductsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListProducts not implemented")
}

func (UnimplementedStorefrontServiceServer) Checkout(context.Context, *CheckoutRequest) (*CheckoutResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Checkout not implemented")
}

func (UnimplementedStorefrontServiceServer) GetOrder(context.Context, *GetOrderRequest) (*GetOrderResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetOrder not implemented")
}

func (UnimplementedStorefrontServiceServer) GetSettings(context.Context, *GetSettingsRequest) (*SettingsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetSettings not implemented")
}

// UnimplementedAdminServiceServer встраивается в реализации ради совместимости вперёд.
type UnimplementedAdminServiceServer struct{}

func (UnimplementedAdminServiceServer) UpsertProduct(context.Context, *UpsertProductRequest) (*UpsertProductResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method UpsertProduct not implemented")
}

func (UnimplementedAdminServiceServer) DeleteProduct(context.Context, *DeleteProductRequest) (*DeleteProductResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DeleteProduct not implemented")
}

func (UnimplementedAdminServiceServer) AdjustStock(context.Context, *AdjustStockRequest) (*AdjustStockResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method AdjustStock not implemented")
}

func (UnimplementedAdminServiceServer) ListOrders(context.Context, *ListOrdersRequest) (*ListOrdersResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListOrders not implemented")
}

func (UnimplementedAdminServiceServer) MarkCompleted(context.Context, *OrderActionRequest) (*OrderActionResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method MarkCompleted not implemented")
}

func (UnimplementedAdminServiceServer) CancelOrder(context.Context, *OrderActionRequest) (*OrderActionResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method CancelOrder not implemented")
}

func (UnimplementedAdminServiceServer) DeleteOrder(context.Context, *OrderActionRequest) (*OrderActionResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method DeleteOrder not implemented")
}

func (UnimplementedAdminServiceServer) GetStats(context.Context, *GetStatsRequest) (*Stats, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStats not implemented")
}

func (UnimplementedAdminServiceServer) UpdateSettings(context.Context, *UpdateSettingsRequest) (*SettingsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method UpdateSettings not implemented")
}

// unaryHandler строит grpc.MethodHandler для метода с типизированным запросом.
func unaryHandler[S any, Req any, Resp any](fullMethod string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(S), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(S), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// StorefrontService_ServiceDesc — дескриптор StorefrontService.
var StorefrontService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: StorefrontServiceName,
	HandlerType: (*StorefrontServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListProducts", Handler: unaryHandler(StorefrontService_ListProducts_FullMethodName, StorefrontServiceServer.ListProducts)},
		{MethodName: "Checkout", Handler: unaryHandler(StorefrontService_Checkout_FullMethodName, StorefrontServiceServer.Checkout)},
		{MethodName: "GetOrder", Handler: unaryHandler(StorefrontService_GetOrder_FullMethodName, StorefrontServiceServer.GetOrder)},
		{MethodName: "GetSettings", Handler: unaryHandler(StorefrontService_GetSettings_FullMethodName, StorefrontServiceServer.GetSettings)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "canteen/v1/canteen.json",
}

// AdminService_ServiceDesc — дескриптор AdminService.
var AdminService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: AdminServiceName,
	HandlerType: (*AdminServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "UpsertProduct", Handler: unaryHandler(AdminService_UpsertProduct_FullMethodName, AdminServiceServer.UpsertProduct)},
		{MethodName: "DeleteProduct", Handler: unaryHandler(AdminService_DeleteProduct_FullMethodName, AdminServiceServer.DeleteProduct)},
		{MethodName: "AdjustStock", Handler: unaryHandler(AdminService_AdjustStock_FullMethodName, AdminServiceServer.AdjustStock)},
		{MethodName: "ListOrders", Handler: unaryHandler(AdminService_ListOrders_FullMethodName, AdminServiceServer.ListOrders)},
		{MethodName: "MarkCompleted", Handler: unaryHandler(AdminService_MarkCompleted_FullMethodName, AdminServiceServer.MarkCompleted)},
		{MethodName: "CancelOrder", Handler: unaryHandler(AdminService_CancelOrder_FullMethodName, AdminServiceServer.CancelOrder)},
		{MethodName: "DeleteOrder", Handler: unaryHandler(AdminService_DeleteOrder_FullMethodName, AdminServiceServer.DeleteOrder)},
		{MethodName: "GetStats", Handler: unaryHandler(AdminService_GetStats_FullMethodName, AdminServiceServer.GetStats)},
		{MethodName: "UpdateSettings", Handler: unaryHandler(AdminService_UpdateSettings_FullMethodName, AdminServiceServer.UpdateSettings)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "canteen/v1/canteen.json",
}

// RegisterStorefrontServiceServer регистрирует реализацию StorefrontService.
func RegisterStorefrontServiceServer(s grpc.ServiceRegistrar, srv StorefrontServiceServer) {
	s.RegisterService(&StorefrontService_ServiceDesc, srv)
}

// RegisterAdminServiceServer регистрирует реализацию AdminService.
func RegisterAdminServiceServer(s grpc.ServiceRegistrar, srv AdminServiceServer) {
	s.RegisterService(&AdminService_ServiceDesc, srv)
}

// StorefrontServiceClient — клиент StorefrontService.
type StorefrontServiceClient interface {
	ListProducts(ctx context.Context, in *ListProductsRequest, opts ...grpc.CallOption) (*ListProductsResponse, error)
	Checkout(ctx context.Context, in *CheckoutRequest, opts ...grpc.CallOption) (*CheckoutResponse, error)
	GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error)
	GetSettings(ctx context.Context, in *GetSettingsRequest, opts ...grpc.CallOption) (*SettingsResponse, error)
}

// AdminServiceClient — клиент AdminService.
type AdminServiceClient interface {
	UpsertProduct(ctx context.Context, in *UpsertProductRequest, opts ...grpc.CallOption) (*UpsertProductResponse, error)
	DeleteProduct(ctx context.Context, in *DeleteProductRequest, opts ...grpc.CallOption) (*DeleteProductResponse, error)
	AdjustStock(ctx context.Context, in *AdjustStockRequest, opts ...grpc.CallOption) (*AdjustStockResponse, error)
	ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error)
	MarkCompleted(ctx context.Context, in *OrderActionRequest, opts ...grpc.CallOption) (*OrderActionResponse, error)
	CancelOrder(ctx context.Context, in *OrderActionRequest, opts ...grpc.CallOption) (*OrderActionResponse, error)
	DeleteOrder(ctx context.Context, in *OrderActionRequest, opts ...grpc.CallOption) (*OrderActionResponse, error)
	GetStats(ctx context.Context, in *GetStatsRequest, opts ...grpc.CallOption) (*Stats, error)
	UpdateSettings(ctx context.Context, in *UpdateSettingsRequest, opts ...grpc.CallOption) (*SettingsResponse, error)
}

// invoke выполняет unary-вызов через JSON-кодек контракта.
func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	callOpts := append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, callOpts...); err != nil {
		return nil, err
	}
	return out, nil
}

type storefrontServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewStorefrontServiceClient создаёт клиент StorefrontService.
func NewStorefrontServiceClient(cc grpc.ClientConnInterface) StorefrontServiceClient {
	return &storefrontServiceClient{cc: cc}
}

func (c *storefrontServiceClient) ListProducts(ctx context.Context, in *ListProductsRequest, opts ...grpc.CallOption) (*ListProductsResponse, error) {
	return invoke[ListProductsResponse](ctx, c.cc, StorefrontService_ListProducts_FullMethodName, in, opts)
}

func (c *storefrontServiceClient) Checkout(ctx context.Context, in *CheckoutRequest, opts ...grpc.CallOption) (*CheckoutResponse, error) {
	return invoke[CheckoutResponse](ctx, c.cc, StorefrontService_Checkout_FullMethodName, in, opts)
}

func (c *storefrontServiceClient) GetOrder(ctx context.Context, in *GetOrderRequest, opts ...grpc.CallOption) (*GetOrderResponse, error) {
	return invoke[GetOrderResponse](ctx, c.cc, StorefrontService_GetOrder_FullMethodName, in, opts)
}

func (c *storefrontServiceClient) GetSettings(ctx context.Context, in *GetSettingsRequest, opts ...grpc.CallOption) (*SettingsResponse, error) {
	return invoke[SettingsResponse](ctx, c.cc, StorefrontService_GetSettings_FullMethodName, in, opts)
}

type adminServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewAdminServiceClient создаёт клиент AdminService.
func NewAdminServiceClient(cc grpc.ClientConnInterface) AdminServiceClient {
	return &adminServiceClient{cc: cc}
}

func (c *adminServiceClient) UpsertProduct(ctx context.Context, in *UpsertProductRequest, opts ...grpc.CallOption) (*UpsertProductResponse, error) {
	return invoke[UpsertProductResponse](ctx, c.cc, AdminService_UpsertProduct_FullMethodName, in, opts)
}

func (c *adminServiceClient) DeleteProduct(ctx context.Context, in *DeleteProductRequest, opts ...grpc.CallOption) (*DeleteProductResponse, error) {
	return invoke[DeleteProductResponse](ctx, c.cc, AdminService_DeleteProduct_FullMethodName, in, opts)
}

func (c *adminServiceClient) AdjustStock(ctx context.Context, in *AdjustStockRequest, opts ...grpc.CallOption) (*AdjustStockResponse, error) {
	return invoke[AdjustStockResponse](ctx, c.cc, AdminService_AdjustStock_FullMethodName, in, opts)
}

func (c *adminServiceClient) ListOrders(ctx context.Context, in *ListOrdersRequest, opts ...grpc.CallOption) (*ListOrdersResponse, error) {
	return invoke[ListOrdersResponse](ctx, c.cc, AdminService_ListOrders_FullMethodName, in, opts)
}

func (c *adminServiceClient) MarkCompleted(ctx context.Context, in *OrderActionRequest, opts ...grpc.CallOption) (*OrderActionResponse, error) {
	return invoke[OrderActionResponse](ctx, c.cc, AdminService_MarkCompleted_FullMethodName, in, opts)
}

func (c *adminServiceClient) CancelOrder(ctx context.Context, in *OrderActionRequest, opts ...grpc.CallOption) (*OrderActionResponse, error) {
	return invoke[OrderActionResponse](ctx, c.cc, AdminService_CancelOrder_FullMethodName, in, opts)
}

func (c *adminServiceClient) DeleteOrder(ctx context.Context, in *OrderActionRequest, opts ...grpc.CallOption) (*OrderActionResponse, error) {
	return invoke[OrderActionResponse](ctx, c.cc, AdminService_DeleteOrder_FullMethodName, in, opts)
}

func (c *adminServiceClient) GetStats(ctx context.Context, in *GetStatsRequest, opts ...grpc.CallOption) (*Stats, error) {
	return invoke[Stats](ctx, c.cc, AdminService_GetStats_FullMethodName, in, opts)
}

func (c *adminServiceClient) UpdateSettings(ctx context.Context, in *UpdateSettingsRequest, opts ...grpc.CallOption) (*SettingsResponse, error) {
	return invoke[SettingsResponse](ctx, c.cc, AdminService_UpdateSettings_FullMethodName, in, opts)
}

// WithIdempotencyKey добавляет ключ идемпотентности в исходящую metadata.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, IdempotencyKeyHeader, key)
}

// WithBasicAuth добавляет учётные данные администратора в исходящую metadata.
func WithBasicAuth(ctx context.Context, user, password string) context.Context {
	token := base64.StdEncoding.EncodeToString([]byte(user + ":" + password))
	return metadata.AppendToOutgoingContext(ctx, AuthorizationHeader, "Basic "+token)
}
