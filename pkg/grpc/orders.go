package grpc

import (
	"context"
	"errors"

	"github.com/example/lensshop/pkg/models"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

// CreateOrder checks stock, takes it, and stores a pending order priced
// from the catalog. Either every line is taken or none is.
func (s *BackendServer) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*OrderIDResponse, error) {
	id, err := callerIdentity(ctx)
	if err != nil {
		return nil, err
	}
	items, err := mergeOrderItems(req.Items)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:     uuid.NewString(),
		UserID: id.Principal,
		Items:  items,
		Status: models.OrderPending,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, it := range items {
			var p models.Product
			if err := tx.Where("id = ? AND published = ?", it.ProductID, true).First(&p).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return status.Errorf(codes.NotFound, "Product not found: %s", it.ProductID)
				}
				return err
			}
			res := tx.Model(&models.Product{}).
				Where("id = ? AND stock >= ?", p.ID, it.Quantity).
				UpdateColumn("stock", gorm.Expr("stock - ?", it.Quantity))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return status.Errorf(codes.FailedPrecondition, "Insufficient stock for %s", p.Name)
			}
			order.Total += p.Price * it.Quantity
		}
		return tx.Create(order).Error
	})
	if err != nil {
		if _, ok := status.FromError(err); ok {
			return nil, err
		}
		return nil, internalError(s.logger, "failed to create order", err)
	}

	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("principal", id.Principal),
		zap.Int64("total", order.Total))
	s.recordAudit("create_order", id.Principal, order.ID, bson.M{"total": order.Total, "items": len(items)})
	return &OrderIDResponse{ID: order.ID}, nil
}

// GetOrder returns an order to its owner or to an admin.
func (s *BackendServer) GetOrder(ctx context.Context, req *OrderRequest) (*models.Order, error) {
	id, err := callerIdentity(ctx)
	if err != nil {
		return nil, err
	}
	var order models.Order
	if err := s.db.WithContext(ctx).Where("id = ?", req.ID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, status.Error(codes.NotFound, "Order not found")
		}
		return nil, internalError(s.logger, "failed to get order", err)
	}
	if order.UserID != id.Principal && !s.admins[id.Principal] {
		return nil, status.Error(codes.NotFound, "Order not found")
	}
	return &order, nil
}

func (s *BackendServer) GetCallerOrders(ctx context.Context, _ *Empty) (*OrderList, error) {
	id, err := callerIdentity(ctx)
	if err != nil {
		return nil, err
	}
	var orders []models.Order
	err = s.db.WithContext(ctx).
		Where("user_id = ?", id.Principal).
		Order("created_at desc").
		Find(&orders).Error
	if err != nil {
		return nil, internalError(s.logger, "failed to list orders", err)
	}
	return &OrderList{Orders: orders}, nil
}

// mergeOrderItems folds repeated product ids into one line, keeping the
// order of first appearance.
func mergeOrderItems(in []models.OrderItem) ([]models.OrderItem, error) {
	if len(in) == 0 {
		return nil, status.Error(codes.InvalidArgument, "Order must contain at least one item")
	}
	out := make([]models.OrderItem, 0, len(in))
	index := make(map[string]int, len(in))
	for _, it := range in {
		if it.ProductID == "" || it.Quantity <= 0 {
			return nil, status.Error(codes.InvalidArgument, "Each order item needs a product and a positive quantity")
		}
		if i, ok := index[it.ProductID]; ok {
			out[i].Quantity += it.Quantity
			continue
		}
		index[it.ProductID] = len(out)
		out = append(out, it)
	}
	return out, nil
}
