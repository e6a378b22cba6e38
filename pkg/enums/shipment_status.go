package enums

// ShipmentStatus tracks the carrier-side lifecycle of a shipment.
type ShipmentStatus string

const (
	ShipmentStatusRequested ShipmentStatus = "requested"
	ShipmentStatusCreated   ShipmentStatus = "created"
	ShipmentStatusFailed    ShipmentStatus = "failed"
)
