package orderstate

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/beadshop-backend/internal/orders"
	"github.com/angelmondragon/beadshop-backend/internal/shipments"
	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
)

// ShipmentTrigger creates the carrier shipment for orders that contained an
// item with no stock when they were placed.
type ShipmentTrigger struct {
	orders    orders.Repository
	shipments *shipments.Repository
	carrier   shipments.Carrier
}

// NewShipmentTrigger validates dependencies.
func NewShipmentTrigger(ordersRepo orders.Repository, shipmentRepo *shipments.Repository, carrier shipments.Carrier) (*ShipmentTrigger, error) {
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if shipmentRepo == nil {
		return nil, fmt.Errorf("shipment repository required")
	}
	if carrier == nil {
		return nil, fmt.Errorf("carrier required")
	}
	return &ShipmentTrigger{orders: ordersRepo, shipments: shipmentRepo, carrier: carrier}, nil
}

// OnFullyPaid requests at most one shipment per order and moves a PAID order
// to PROCESSING. It reports whether a shipment was created.
func (s *ShipmentTrigger) OnFullyPaid(ctx context.Context, tx *gorm.DB, order *models.Order) (bool, error) {
	if !order.HasOutOfStockItem() {
		return false, nil
	}
	repo := s.shipments.WithTx(tx)
	existing, err := repo.FindByOrderID(ctx, order.ID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	shipment := &models.Shipment{
		OrderID:       order.ID,
		PickupPointID: order.PickupPointID,
		Status:        enums.ShipmentStatusRequested,
	}
	if err := repo.Create(ctx, shipment); err != nil {
		// a unique violation aborts the transaction, so it cannot be absorbed here
		return false, fmt.Errorf("create shipment: %w", err)
	}
	if err := s.carrier.RequestShipment(ctx, tx, order, shipment); err != nil {
		return false, err
	}

	if order.Status == enums.OrderStatusPaid {
		ok, err := s.orders.WithTx(tx).AdvanceStatus(ctx, order.ID, enums.OrderStatusPaid, map[string]any{
			"status": enums.OrderStatusProcessing,
		})
		if err != nil {
			return false, err
		}
		if ok {
			order.Status = enums.OrderStatusProcessing
		}
	}
	return true, nil
}
