// Package checkout turns a session cart into an order.
package checkout

import (
	"context"
	"strings"

	"github.com/example/lensshop/pkg/cart"
	"github.com/example/lensshop/pkg/models"
	"github.com/example/lensshop/pkg/usererr"
	"github.com/example/lensshop/pkg/validation"
	"go.uber.org/zap"
)

const MsgEmptyCart = "Your cart is empty."

type Backend interface {
	CreateOrder(ctx context.Context, items []models.OrderItem) (string, error)
}

// Basket is the shopper's cart as checkout sees it. Snapshot and Clear are
// separate steps so the order call never holds the cart.
type Basket interface {
	Snapshot(ctx context.Context) (cart.Cart, error)
	Clear(ctx context.Context) error
}

// Invalidator drops cached product reads once stock has changed.
type Invalidator interface {
	Invalidate()
}

// ShippingForm is what the shopper fills in on the checkout page. Phone
// and notes are optional.
type ShippingForm struct {
	Name    string `json:"name" validate:"trimmed_required"`
	Email   string `json:"email" validate:"trimmed_required,shipping_email"`
	Phone   string `json:"phone"`
	Address string `json:"address" validate:"trimmed_required"`
	City    string `json:"city" validate:"trimmed_required"`
	ZipCode string `json:"zipCode" validate:"trimmed_required"`
	Notes   string `json:"notes"`
}

var shippingMessages = validation.Messages{
	"name": {"*": "Name is required"},
	"email": {
		"trimmed_required": "Email is required",
		"shipping_email":   "Email is invalid",
	},
	"address": {"*": "Address is required"},
	"city":    {"*": "City is required"},
	"zipCode": {"*": "ZIP code is required"},
}

// Validate returns a validation error carrying one message per bad field.
func (f ShippingForm) Validate() error {
	if fields := validation.Struct(f, shippingMessages); fields != nil {
		return usererr.Validation(fields)
	}
	return nil
}

func (f ShippingForm) trimmed() ShippingForm {
	f.Name = strings.TrimSpace(f.Name)
	f.Email = strings.TrimSpace(f.Email)
	f.Phone = strings.TrimSpace(f.Phone)
	f.Address = strings.TrimSpace(f.Address)
	f.City = strings.TrimSpace(f.City)
	f.ZipCode = strings.TrimSpace(f.ZipCode)
	f.Notes = strings.TrimSpace(f.Notes)
	return f
}

// Receipt describes a placed order.
type Receipt struct {
	OrderID   string       `json:"orderId"`
	Subtotal  int64        `json:"subtotal"`
	ItemCount int64        `json:"itemCount"`
	Shipping  ShippingForm `json:"shipping"`
}

type Service struct {
	backend Backend
	catalog Invalidator
	logger  *zap.Logger
}

func New(backend Backend, catalog Invalidator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{backend: backend, catalog: catalog, logger: logger.Named("checkout")}
}

// PlaceOrder validates the form, submits the cart and clears it once the
// backend has accepted the order. A failed order leaves the cart as it was.
func (s *Service) PlaceOrder(ctx context.Context, basket Basket, form ShippingForm) (Receipt, error) {
	current, err := basket.Snapshot(ctx)
	if err != nil {
		return Receipt{}, err
	}
	if current.IsEmpty() {
		return Receipt{}, usererr.New(usererr.KindConflict, MsgEmptyCart)
	}
	if err := form.Validate(); err != nil {
		return Receipt{}, err
	}

	orderID, err := s.backend.CreateOrder(ctx, current.OrderItems())
	if err != nil {
		s.logger.Warn("Order creation failed", zap.Int("lines", len(current.Items)), zap.Error(err))
		return Receipt{}, usererr.SanitizeStorefront(err)
	}
	if s.catalog != nil {
		s.catalog.Invalidate()
	}

	// The order exists now; the cart must be cleared even if the shopper
	// has gone away.
	if err := basket.Clear(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error("Failed to clear cart after order", zap.String("order_id", orderID), zap.Error(err))
	}
	s.logger.Info("Order placed", zap.String("order_id", orderID), zap.Int64("subtotal", current.Subtotal()))
	return Receipt{
		OrderID:   orderID,
		Subtotal:  current.Subtotal(),
		ItemCount: current.ItemCount(),
		Shipping:  form.trimmed(),
	}, nil
}
