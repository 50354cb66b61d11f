package grpc

import (
	"context"
	"errors"
	"strings"

	"github.com/example/lensshop/pkg/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

var errProductNotFound = status.Error(codes.NotFound, "Product not found")

func (s *BackendServer) GetAllProducts(ctx context.Context, _ *Empty) (*ProductList, error) {
	var products []models.Product
	if err := s.db.WithContext(ctx).Where("published = ?", true).Order("id").Find(&products).Error; err != nil {
		return nil, internalError(s.logger, "failed to list products", err)
	}
	return &ProductList{Products: products}, nil
}

func (s *BackendServer) GetProductsByCategory(ctx context.Context, req *CategoryRequest) (*ProductList, error) {
	if !req.Category.Valid() {
		return nil, status.Errorf(codes.InvalidArgument, "unknown category %q", req.Category)
	}
	var products []models.Product
	err := s.db.WithContext(ctx).
		Where("published = ? AND category = ?", true, req.Category).
		Order("id").
		Find(&products).Error
	if err != nil {
		return nil, internalError(s.logger, "failed to list products", err)
	}
	return &ProductList{Products: products}, nil
}

// GetProduct hides unpublished products from everyone but admins.
func (s *BackendServer) GetProduct(ctx context.Context, req *ProductRequest) (*models.Product, error) {
	var p models.Product
	if err := s.db.WithContext(ctx).Where("id = ?", req.ID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errProductNotFound
		}
		return nil, internalError(s.logger, "failed to get product", err)
	}
	if !p.Published && !s.isAdmin(ctx) {
		return nil, errProductNotFound
	}
	return &p, nil
}

func (s *BackendServer) IsCallerAdmin(ctx context.Context, _ *Empty) (*BoolResponse, error) {
	return &BoolResponse{Value: s.isAdmin(ctx)}, nil
}

func (s *BackendServer) AdminGetAllProducts(ctx context.Context, _ *Empty) (*ProductList, error) {
	if _, err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	var products []models.Product
	if err := s.db.WithContext(ctx).Order("id").Find(&products).Error; err != nil {
		return nil, internalError(s.logger, "failed to list products", err)
	}
	return &ProductList{Products: products}, nil
}

func (s *BackendServer) AdminCreateProduct(ctx context.Context, req *models.Product) (*Empty, error) {
	id, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkProduct(req); err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Product{}).Where("id = ?", req.ID).Count(&count).Error; err != nil {
		return nil, internalError(s.logger, "failed to create product", err)
	}
	if count > 0 {
		return nil, status.Errorf(codes.AlreadyExists, "Product %s already exists", req.ID)
	}
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, internalError(s.logger, "failed to create product", err)
	}

	s.logger.Info("Product created", zap.String("product_id", req.ID), zap.String("principal", id.Principal))
	s.recordAudit("create_product", id.Principal, req.ID, bson.M{"name": req.Name, "price": req.Price, "stock": req.Stock})
	return &Empty{}, nil
}

func (s *BackendServer) AdminUpdateProduct(ctx context.Context, req *models.Product) (*Empty, error) {
	id, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkProduct(req); err != nil {
		return nil, err
	}

	var existing models.Product
	if err := s.db.WithContext(ctx).Where("id = ?", req.ID).First(&existing).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errProductNotFound
		}
		return nil, internalError(s.logger, "failed to update product", err)
	}

	updates := map[string]interface{}{
		"name":        req.Name,
		"description": req.Description,
		"price":       req.Price,
		"stock":       req.Stock,
		"category":    req.Category,
		"published":   req.Published,
	}
	if err := s.db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
		return nil, internalError(s.logger, "failed to update product", err)
	}

	s.recordAudit("update_product", id.Principal, req.ID, bson.M{"name": req.Name, "price": req.Price, "stock": req.Stock})
	return &Empty{}, nil
}

func (s *BackendServer) AdminSetProductPublishStatus(ctx context.Context, req *PublishRequest) (*Empty, error) {
	id, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	var p models.Product
	if err := s.db.WithContext(ctx).Where("id = ?", req.ID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errProductNotFound
		}
		return nil, internalError(s.logger, "failed to update product", err)
	}
	if err := s.db.WithContext(ctx).Model(&p).Update("published", req.Published).Error; err != nil {
		return nil, internalError(s.logger, "failed to update product", err)
	}

	s.recordAudit("set_publish_status", id.Principal, req.ID, bson.M{"published": req.Published})
	return &Empty{}, nil
}

// InitializeShop seeds the catalog with sample products. It does nothing
// once any product exists.
func (s *BackendServer) InitializeShop(ctx context.Context, _ *Empty) (*Empty, error) {
	id, err := s.requireAdmin(ctx)
	if err != nil {
		return nil, err
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Product{}).Count(&count).Error; err != nil {
		return nil, internalError(s.logger, "failed to initialize shop", err)
	}
	if count > 0 {
		return &Empty{}, nil
	}
	products := sampleProducts()
	if err := s.db.WithContext(ctx).Create(&products).Error; err != nil {
		return nil, internalError(s.logger, "failed to initialize shop", err)
	}

	s.logger.Info("Shop initialized", zap.Int("products", len(products)))
	s.recordAudit("initialize_shop", id.Principal, "", bson.M{"products": len(products)})
	return &Empty{}, nil
}

func checkProduct(p *models.Product) error {
	p.ID = strings.TrimSpace(p.ID)
	switch {
	case p.ID == "":
		return status.Error(codes.InvalidArgument, "Product ID is required")
	case strings.TrimSpace(p.Name) == "":
		return status.Error(codes.InvalidArgument, "Product name is required")
	case p.Price < 0:
		return status.Error(codes.InvalidArgument, "Price cannot be negative")
	case p.Stock < 0:
		return status.Error(codes.InvalidArgument, "Stock cannot be negative")
	case !p.Category.Valid():
		return status.Errorf(codes.InvalidArgument, "unknown category %q", p.Category)
	}
	return nil
}

func sampleProducts() []models.Product {
	return []models.Product{
		{
			ID:          "cmf-earbuds",
			Name:        "CMF Buds",
			Description: "True wireless earbuds with active noise cancellation and a 35 hour battery.",
			Price:       2499,
			Stock:       25,
			Category:    models.CategoryElectronics,
			Published:   true,
		},
		{
			ID:          "gan-charger-65w",
			Name:        "65W GaN Charger",
			Description: "Compact dual-port charger for laptops and phones.",
			Price:       1999,
			Stock:       40,
			Category:    models.CategoryElectronics,
			Published:   true,
		},
		{
			ID:          "smart-lamp",
			Name:        "Smart Desk Lamp",
			Description: "Dimmable LED lamp with adjustable colour temperature.",
			Price:       3299,
			Stock:       15,
			Category:    models.CategoryElectronics,
			Published:   true,
		},
		{
			ID:          "ceramic-vase",
			Name:        "Ceramic Vase",
			Description: "Hand-glazed stoneware vase in matte sand.",
			Price:       1299,
			Stock:       12,
			Category:    models.CategoryHomeDecor,
			Published:   true,
		},
		{
			ID:          "jute-rug",
			Name:        "Jute Rug",
			Description: "Handwoven natural jute rug, 4 by 6 feet.",
			Price:       4499,
			Stock:       6,
			Category:    models.CategoryHomeDecor,
			Published:   true,
		},
		{
			ID:          "linen-cushion",
			Name:        "Linen Cushion Cover",
			Description: "Stonewashed linen cover with a hidden zip.",
			Price:       799,
			Stock:       30,
			Category:    models.CategoryHomeDecor,
			Published:   true,
		},
	}
}
