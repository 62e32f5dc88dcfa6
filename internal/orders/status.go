package orders

type Status string

const (
	StatusPending        Status = "pending"
	StatusPreparing      Status = "preparing"
	StatusReadyForPickup Status = "ready_for_pickup"
	StatusInDelivery     Status = "in_delivery"
	StatusDelivered      Status = "delivered"
	StatusCancelled      Status = "cancelled"
	// StatusCompleted is reserved for in-person sales fulfilled at creation.
	StatusCompleted Status = "completed"
)

// validNext is a single linear chain; no step may be skipped.
var validNext = map[Status]map[Status]bool{
	StatusPending:        {StatusPreparing: true, StatusCancelled: true},
	StatusPreparing:      {StatusReadyForPickup: true, StatusCancelled: true},
	StatusReadyForPickup: {StatusInDelivery: true, StatusCancelled: true},
	StatusInDelivery:     {StatusDelivered: true, StatusCancelled: true},
	StatusDelivered:      {},
	StatusCancelled:      {},
	StatusCompleted:      {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(validNext[s]) == 0
}

// initialPending lists the statuses a pickup/delivery order may start in.
var initialPending = map[Status]bool{
	StatusPending:        true,
	StatusPreparing:      true,
	StatusReadyForPickup: true,
	StatusInDelivery:     true,
}

// ResolveInitialStatus picks the status an order is created with. An
// in-person sale is always completed; a fulfillment order keeps the
// requested status only when it is a pending-fulfillment state.
func ResolveInitialStatus(hasFulfillmentBranch bool, requested Status) Status {
	if !hasFulfillmentBranch {
		return StatusCompleted
	}
	if initialPending[requested] {
		return requested
	}
	return StatusPending
}
