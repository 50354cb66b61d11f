package grpc

import (
	"context"

	"github.com/example/lensshop/pkg/models"
	"google.golang.org/grpc"
)

const ServiceName = "lens.storefront.v1.Storefront"

// Method names of the storefront service.
const (
	MethodGetAllProducts               = "GetAllProducts"
	MethodGetProductsByCategory        = "GetProductsByCategory"
	MethodGetProduct                   = "GetProduct"
	MethodSaveCallerUserProfile        = "SaveCallerUserProfile"
	MethodGetCallerUserProfile         = "GetCallerUserProfile"
	MethodRequestPhoneVerification     = "RequestPhoneVerification"
	MethodVerifyPhoneVerificationCode  = "VerifyPhoneVerificationCode"
	MethodIsPhoneVerified              = "IsPhoneVerified"
	MethodCreateOrder                  = "CreateOrder"
	MethodGetOrder                     = "GetOrder"
	MethodGetCallerOrders              = "GetCallerOrders"
	MethodIsCallerAdmin                = "IsCallerAdmin"
	MethodAdminGetAllProducts          = "AdminGetAllProducts"
	MethodAdminCreateProduct           = "AdminCreateProduct"
	MethodAdminUpdateProduct           = "AdminUpdateProduct"
	MethodAdminSetProductPublishStatus = "AdminSetProductPublishStatus"
	MethodInitializeShop               = "InitializeShop"
)

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

type Empty struct{}

type ProductList struct {
	Products []models.Product `json:"products"`
}

type CategoryRequest struct {
	Category models.Category `json:"category"`
}

type ProductRequest struct {
	ID string `json:"id"`
}

type ProfileResponse struct {
	Profile *models.UserProfile `json:"profile,omitempty"`
}

type PhoneRequest struct {
	Phone string `json:"phone"`
}

type VerifyCodeRequest struct {
	Phone string `json:"phone"`
	Code  string `json:"code"`
}

type BoolResponse struct {
	Value bool `json:"value"`
}

type CreateOrderRequest struct {
	Items []models.OrderItem `json:"items"`
}

type OrderIDResponse struct {
	ID string `json:"id"`
}

type OrderRequest struct {
	ID string `json:"id"`
}

type OrderList struct {
	Orders []models.Order `json:"orders"`
}

type PublishRequest struct {
	ID        string `json:"id"`
	Published bool   `json:"published"`
}

// StorefrontServer is the server API of the storefront service.
type StorefrontServer interface {
	GetAllProducts(context.Context, *Empty) (*ProductList, error)
	GetProductsByCategory(context.Context, *CategoryRequest) (*ProductList, error)
	GetProduct(context.Context, *ProductRequest) (*models.Product, error)
	SaveCallerUserProfile(context.Context, *models.UserProfile) (*Empty, error)
	GetCallerUserProfile(context.Context, *Empty) (*ProfileResponse, error)
	RequestPhoneVerification(context.Context, *PhoneRequest) (*Empty, error)
	VerifyPhoneVerificationCode(context.Context, *VerifyCodeRequest) (*BoolResponse, error)
	IsPhoneVerified(context.Context, *PhoneRequest) (*BoolResponse, error)
	CreateOrder(context.Context, *CreateOrderRequest) (*OrderIDResponse, error)
	GetOrder(context.Context, *OrderRequest) (*models.Order, error)
	GetCallerOrders(context.Context, *Empty) (*OrderList, error)
	IsCallerAdmin(context.Context, *Empty) (*BoolResponse, error)
	AdminGetAllProducts(context.Context, *Empty) (*ProductList, error)
	AdminCreateProduct(context.Context, *models.Product) (*Empty, error)
	AdminUpdateProduct(context.Context, *models.Product) (*Empty, error)
	AdminSetProductPublishStatus(context.Context, *PublishRequest) (*Empty, error)
	InitializeShop(context.Context, *Empty) (*Empty, error)
}

func RegisterStorefrontServer(s grpc.ServiceRegistrar, srv StorefrontServer) {
	s.RegisterService(&StorefrontServiceDesc, srv)
}

func unary[Req, Resp any](name string, call func(StorefrontServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(StorefrontServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(StorefrontServer), ctx, req.(*Req))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var StorefrontServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*StorefrontServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodGetAllProducts, StorefrontServer.GetAllProducts),
		unary(MethodGetProductsByCategory, StorefrontServer.GetProductsByCategory),
		unary(MethodGetProduct, StorefrontServer.GetProduct),
		unary(MethodSaveCallerUserProfile, StorefrontServer.SaveCallerUserProfile),
		unary(MethodGetCallerUserProfile, StorefrontServer.GetCallerUserProfile),
		unary(MethodRequestPhoneVerification, StorefrontServer.RequestPhoneVerification),
		unary(MethodVerifyPhoneVerificationCode, StorefrontServer.VerifyPhoneVerificationCode),
		unary(MethodIsPhoneVerified, StorefrontServer.IsPhoneVerified),
		unary(MethodCreateOrder, StorefrontServer.CreateOrder),
		unary(MethodGetOrder, StorefrontServer.GetOrder),
		unary(MethodGetCallerOrders, StorefrontServer.GetCallerOrders),
		unary(MethodIsCallerAdmin, StorefrontServer.IsCallerAdmin),
		unary(MethodAdminGetAllProducts, StorefrontServer.AdminGetAllProducts),
		unary(MethodAdminCreateProduct, StorefrontServer.AdminCreateProduct),
		unary(MethodAdminUpdateProduct, StorefrontServer.AdminUpdateProduct),
		unary(MethodAdminSetProductPublishStatus, StorefrontServer.AdminSetProductPublishStatus),
		unary(MethodInitializeShop, StorefrontServer.InitializeShop),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lens/storefront/v1/storefront.json",
}
