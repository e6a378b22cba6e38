package shipments

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/beadshop-backend/pkg/db/models"
	"github.com/angelmondragon/beadshop-backend/pkg/enums"
	"github.com/angelmondragon/beadshop-backend/pkg/outbox"
	"github.com/angelmondragon/beadshop-backend/pkg/outbox/payloads"
)

// Carrier creates labels and tracking with the shipping provider.
type Carrier interface {
	RequestShipment(ctx context.Context, tx *gorm.DB, order *models.Order, shipment *models.Shipment) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// OutboxCarrier hands the request to the carrier integration through a
// shipment_requested event committed with the shipment row.
type OutboxCarrier struct {
	outbox outboxPublisher
}

// NewOutboxCarrier builds a Carrier backed by the outbox.
func NewOutboxCarrier(publisher outboxPublisher) (*OutboxCarrier, error) {
	if publisher == nil {
		return nil, errors.New("outbox publisher required")
	}
	return &OutboxCarrier{outbox: publisher}, nil
}

func (c *OutboxCarrier) RequestShipment(ctx context.Context, tx *gorm.DB, order *models.Order, shipment *models.Shipment) error {
	addr := order.ShippingAddress
	return c.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventShipmentRequested,
		AggregateType: enums.AggregateShipment,
		AggregateID:   shipment.ID,
		Actor:         &outbox.ActorRef{Role: "system", Source: "shipments"},
		Data: payloads.ShipmentRequestedEvent{
			ShipmentID:      shipment.ID,
			OrderID:         order.ID,
			OrderNumber:     order.OrderNumber,
			CustomerName:    order.CustomerName,
			CustomerEmail:   order.CustomerEmail,
			CustomerPhone:   order.CustomerPhone,
			PickupPointID:   shipment.PickupPointID,
			ShippingCountry: addr.CountryCode(),
			ShippingCity:    addr.City,
			ShippingPostal:  addr.PostalCode,
			ShippingLine1:   addr.Line1,
		},
	})
}
