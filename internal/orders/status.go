package orders

type Status string

const (
	StatusPending   Status = "Pending"
	StatusPreparing Status = "Preparing"
	StatusShipping  Status = "Shipping"
	StatusShipped   Status = "Shipped"
	StatusDone      Status = "Done"
	StatusCancelled Status = "Cancelled"
	StatusApproved  Status = "Approved"
)

var knownStatuses = map[Status]bool{
	StatusPending:   true,
	StatusPreparing: true,
	StatusShipping:  true,
	StatusShipped:   true,
	StatusDone:      true,
	StatusCancelled: true,
	StatusApproved:  true,
}

// Valid reports whether s is a known status. There is no transition table:
// admins may move an order from any status to any other.
func (s Status) Valid() bool {
	return knownStatuses[s]
}

// StampsShipped reports whether entering s records the shipped timestamp.
func (s Status) StampsShipped() bool {
	return s == StatusShipped || s == StatusDone
}
