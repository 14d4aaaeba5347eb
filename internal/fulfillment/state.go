package fulfillment

// State names where a notification ended up in the reconciliation pipeline.
// Duplicate and Rejected are successful terminal outcomes: the notification is
// acknowledged without creating an order.
type State string

const (
	StateReceived  State = "RECEIVED"
	StateDuplicate State = "DUPLICATE"
	StateRejected  State = "REJECTED"
	StateValidated State = "VALIDATED"
	StateReserved  State = "RESERVED"
	StateCommitted State = "COMMITTED"
)
