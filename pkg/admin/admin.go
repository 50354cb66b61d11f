// Package admin is the product management console. Every operation asks
// the backend whether the caller is an admin before doing anything else.
package admin

import (
	"context"
	"strings"

	"github.com/example/lensshop/pkg/identity"
	"github.com/example/lensshop/pkg/models"
	"github.com/example/lensshop/pkg/usererr"
	"github.com/example/lensshop/pkg/validation"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	MsgNoPermission  = "You do not have permission to perform this action."
	MsgDuplicateID   = "A product with this ID already exists."
	MsgRequiredField = "Please fill in all required fields."
)

type Backend interface {
	IsCallerAdmin(ctx context.Context) (bool, error)
	AdminGetAllProducts(ctx context.Context) ([]models.Product, error)
	AdminCreateProduct(ctx context.Context, p models.Product) error
	AdminUpdateProduct(ctx context.Context, p models.Product) error
	AdminSetProductPublishStatus(ctx context.Context, id string, published bool) error
	InitializeShop(ctx context.Context) error
}

// Invalidator drops cached catalog reads after a change.
type Invalidator interface {
	Invalidate()
}

// ProductForm is the create/edit dialog. Price and stock are pointers so a
// missing value is told apart from zero.
type ProductForm struct {
	ID          string          `json:"id" validate:"trimmed_required"`
	Name        string          `json:"name" validate:"trimmed_required"`
	Description string          `json:"description" validate:"trimmed_required"`
	Price       *int64          `json:"price" validate:"required,gte=0"`
	Stock       *int64          `json:"stock" validate:"required,gte=0"`
	Category    models.Category `json:"category" validate:"oneof=electronics homeDecor"`
	Published   bool            `json:"published"`
}

var productMessages = validation.Messages{
	"id":          {"*": MsgRequiredField},
	"name":        {"*": MsgRequiredField},
	"description": {"*": MsgRequiredField},
	"price":       {"*": "Price must be a valid positive number."},
	"stock":       {"*": "Stock must be a valid positive number."},
	"category":    {"*": "Category must be Electronics or Home Decor."},
}

func (f ProductForm) Validate() error {
	if fields := validation.Struct(f, productMessages); fields != nil {
		return usererr.Validation(fields)
	}
	return nil
}

// Product returns the trimmed product described by a valid form.
func (f ProductForm) Product() models.Product {
	p := models.Product{
		ID:          strings.TrimSpace(f.ID),
		Name:        strings.TrimSpace(f.Name),
		Description: strings.TrimSpace(f.Description),
		Category:    f.Category,
		Published:   f.Published,
	}
	if f.Price != nil {
		p.Price = *f.Price
	}
	if f.Stock != nil {
		p.Stock = *f.Stock
	}
	return p
}

// FormFrom fills the edit dialog from an existing product.
func FormFrom(p models.Product) ProductForm {
	price, stock := p.Price, p.Stock
	return ProductForm{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       &price,
		Stock:       &stock,
		Category:    p.Category,
		Published:   p.Published,
	}
}

type Console struct {
	backend Backend
	catalog Invalidator
	logger  *zap.Logger
}

func New(backend Backend, catalog Invalidator, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{backend: backend, catalog: catalog, logger: logger.Named("admin")}
}

// IsAdmin reports whether the caller may use the console. Anonymous
// callers are never admins and cost no backend call.
func (c *Console) IsAdmin(ctx context.Context) (bool, error) {
	if _, ok := identity.FromContext(ctx); !ok {
		return false, nil
	}
	ok, err := c.backend.IsCallerAdmin(ctx)
	if err != nil {
		return false, c.sanitize(err)
	}
	return ok, nil
}

func (c *Console) authorize(ctx context.Context) error {
	if _, ok := identity.FromContext(ctx); !ok {
		return usererr.New(usererr.KindAuthenticationRequired, usererr.MsgSignIn)
	}
	ok, err := c.IsAdmin(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return usererr.New(usererr.KindForbidden, usererr.MsgAccessDenied)
	}
	return nil
}

func (c *Console) List(ctx context.Context) ([]models.Product, error) {
	if err := c.authorize(ctx); err != nil {
		return nil, err
	}
	products, err := c.backend.AdminGetAllProducts(ctx)
	if err != nil {
		return nil, c.sanitize(err)
	}
	return products, nil
}

func (c *Console) Create(ctx context.Context, form ProductForm) error {
	return c.mutate(ctx, "create", form, c.backend.AdminCreateProduct)
}

func (c *Console) Update(ctx context.Context, form ProductForm) error {
	return c.mutate(ctx, "update", form, c.backend.AdminUpdateProduct)
}

func (c *Console) mutate(ctx context.Context, op string, form ProductForm, call func(context.Context, models.Product) error) error {
	if err := c.authorize(ctx); err != nil {
		return err
	}
	if err := form.Validate(); err != nil {
		return err
	}
	p := form.Product()
	if err := call(ctx, p); err != nil {
		c.logger.Warn("Product change failed", zap.String("op", op), zap.String("product_id", p.ID), zap.Error(err))
		return c.sanitize(err)
	}
	c.catalog.Invalidate()
	return nil
}

func (c *Console) SetPublished(ctx context.Context, id string, published bool) error {
	if err := c.authorize(ctx); err != nil {
		return err
	}
	if err := c.backend.AdminSetProductPublishStatus(ctx, id, published); err != nil {
		return c.sanitize(err)
	}
	c.catalog.Invalidate()
	return nil
}

// InitializeShop seeds the sample catalog.
func (c *Console) InitializeShop(ctx context.Context) error {
	if err := c.authorize(ctx); err != nil {
		return err
	}
	if err := c.backend.InitializeShop(ctx); err != nil {
		return c.sanitize(err)
	}
	c.catalog.Invalidate()
	return nil
}

func (c *Console) sanitize(err error) error {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return usererr.Wrap(usererr.KindForbidden, err, MsgNoPermission)
	case codes.AlreadyExists:
		return usererr.Wrap(usererr.KindConflict, err, MsgDuplicateID)
	}
	return usererr.SanitizeStorefront(err)
}
